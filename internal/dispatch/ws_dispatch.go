package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/tracking"
)

const writeWait = 5 * time.Second

// Conn is the part of *websocket.Conn the registry writes through.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WSSession represents one subscriber of a booking's tracking stream.
type WSSession struct {
	conn Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(snap tracking.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(snap)
}

func (s *WSSession) close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

// WSRegistry holds tracking subscribers keyed by booking id. It is a
// tracking.Sink.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]map[*WSSession]struct{})}
}

func (r *WSRegistry) Add(bookingID string, conn Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.sessions[bookingID]
	if !ok {
		subs = make(map[*WSSession]struct{})
		r.sessions[bookingID] = subs
	}
	subs[s] = struct{}{}
	return s
}

func (r *WSRegistry) Remove(bookingID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.sessions[bookingID]
	delete(subs, s)
	if len(subs) == 0 {
		delete(r.sessions, bookingID)
	}
}

// Finish drops s and ends its stream with a normal-closure frame.
func (r *WSRegistry) Finish(bookingID string, s *WSSession, reason string) {
	r.Remove(bookingID, s)
	s.close(reason)
	_ = s.conn.Close()
}

// TerminalReason reports whether snap ends a stream and the close reason
// sent with it.
func TerminalReason(snap tracking.Snapshot) (string, bool) {
	if snap.Cancelled {
		return "cancelled", true
	}
	if snap.Status != models.StatusEnRoute {
		return string(snap.Status), true
	}
	return "", false
}

func (r *WSRegistry) Subscribers(bookingID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[bookingID])
}

// Publish sends snap to every subscriber of its booking. Subscribers that
// fail a write are dropped. Terminal snapshots close the stream.
func (r *WSRegistry) Publish(_ context.Context, snap tracking.Snapshot) error {
	r.mu.RLock()
	subs := make([]*WSSession, 0, len(r.sessions[snap.BookingID]))
	for s := range r.sessions[snap.BookingID] {
		subs = append(subs, s)
	}
	r.mu.RUnlock()
	if len(subs) == 0 {
		return nil
	}

	reason, terminal := TerminalReason(snap)
	var errs []error
	for _, s := range subs {
		err := s.Send(snap)
		if err != nil {
			errs = append(errs, err)
			r.Remove(snap.BookingID, s)
			_ = s.conn.Close()
			continue
		}
		if terminal {
			r.Finish(snap.BookingID, s, reason)
		}
	}
	return errors.Join(errs...)
}
