package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/roadside-assist/internal/booking"
	"github.com/example/roadside-assist/internal/dispatch"
	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/matcher"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
	"github.com/example/roadside-assist/internal/storage"
	"github.com/example/roadside-assist/internal/tracking"
)

// ProviderPublisher forwards accepted provider positions downstream.
type ProviderPublisher interface {
	PublishProvider(ctx context.Context, p models.ProviderRecord) error
}

type Deps struct {
	Geo       geo.Geo
	Matcher   *matcher.Service
	Bookings  *booking.Service
	Publisher ProviderPublisher // optional
	WSReg     *dispatch.WSRegistry
	Logger    *slog.Logger
	Ready     func(ctx context.Context) error // optional readiness probe
}

type Server struct {
	Geo       geo.Geo
	Matcher   *matcher.Service
	Bookings  *booking.Service
	Publisher ProviderPublisher
	WSReg     *dispatch.WSRegistry
	ready     func(ctx context.Context) error
	logger    *slog.Logger
	mux       *mux.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{
		Geo:       d.Geo,
		Matcher:   d.Matcher,
		Bookings:  d.Bookings,
		Publisher: d.Publisher,
		WSReg:     d.WSReg,
		ready:     d.Ready,
		logger:    d.Logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/providers/locations", s.handleProviderLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/providers/nearby", s.handleNearby).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings", s.handleCreateBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{id}", s.handleGetBooking).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings/{id}/tracking", s.handleTracking).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings/{id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/bookings/{id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleProviderLocation(w http.ResponseWriter, r *http.Request) {
	var p models.ProviderRecord
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if p.ID == "" {
		s.writeError(w, r, models.NewValidationError("id", "required"))
		return
	}
	if err := s.Geo.Upsert(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	// publish to kafka if configured
	if s.Publisher != nil {
		if err := s.Publisher.PublishProvider(r.Context(), p); err != nil {
			observability.PublishErrors.WithLabelValues("positions").Inc()
			s.logger.Warn("provider publish failed", "provider_id", p.ID, "error", err)
		}
	}
	observability.ProviderUpdates.Inc()
	w.WriteHeader(204)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q, err := parseMatchQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ranked, err := s.Matcher.Nearby(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"providers": ranked})
}

func parseMatchQuery(r *http.Request) (models.MatchQuery, error) {
	v := r.URL.Query()
	var q models.MatchQuery
	var err error
	if q.Origin.Lat, err = strconv.ParseFloat(v.Get("lat"), 64); err != nil {
		return q, models.NewValidationError("lat", "must be a number")
	}
	if q.Origin.Lon, err = strconv.ParseFloat(v.Get("lon"), 64); err != nil {
		return q, models.NewValidationError("lon", "must be a number")
	}
	q.NameContains = v.Get("q")
	q.AreaName = v.Get("area")
	q.ServiceType = v.Get("service")
	if raw := v.Get("max_distance"); raw != "" {
		if q.MaxDistanceMeters, err = strconv.ParseFloat(raw, 64); err != nil {
			return q, models.NewValidationError("max_distance", "must be a number")
		}
	}
	if raw := v.Get("limit"); raw != "" {
		if q.MaxResults, err = strconv.Atoi(raw); err != nil {
			return q, models.NewValidationError("limit", "must be an integer")
		}
	}
	return q, nil
}

type bookingResponse struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	ProviderID       string               `json:"provider_id"`
	ProviderPosition models.GeoPoint      `json:"provider_position"`
	UserPosition     models.GeoPoint      `json:"user_position"`
	Status           models.BookingStatus `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	DurationMs       int64                `json:"duration_ms"`
}

func toBookingResponse(b *models.Booking) bookingResponse {
	return bookingResponse{
		ID:               b.ID,
		UserID:           b.UserID,
		ProviderID:       b.ProviderID,
		ProviderPosition: b.ProviderPosition,
		UserPosition:     b.UserPosition,
		Status:           b.Status,
		StartedAt:        b.StartedAt,
		DurationMs:       b.Duration.Milliseconds(),
	}
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	b, sess, err := s.Bookings.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 201, map[string]any{
		"booking":  toBookingResponse(b),
		"tracking": tracking.NewSnapshot(sess, b.StartedAt),
	})
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, toBookingResponse(b))
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Bookings.Tracking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, tracking.NewSnapshot(sess, time.Now()))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Bookings.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, 200, tracking.NewSnapshot(sess, time.Now()))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			http.Error(w, "not ready", 503)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

var upgrader = websocket.Upgrader{}

// handleWS streams tracking snapshots of one booking. The current state is
// sent right after the upgrade; a booking that already ended gets its final
// snapshot and a close frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.Bookings.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		return
	}
	// subscribe before reading state so no terminal publish slips between
	sub := s.WSReg.Add(id, conn)
	sess, err := s.Bookings.Tracking(r.Context(), id)
	if err != nil {
		s.logger.Warn("load tracking for stream", "booking_id", id, "error", err)
		s.WSReg.Finish(id, sub, "unavailable")
		return
	}
	snap := tracking.NewSnapshot(sess, time.Now())
	if err := sub.Send(snap); err != nil {
		s.WSReg.Remove(id, sub)
		conn.Close()
		return
	}
	if reason, done := dispatch.TerminalReason(snap); done {
		s.WSReg.Finish(id, sub, reason)
		return
	}
	// drain client frames until the peer or the registry closes the socket
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.WSReg.Remove(id, sub)
			conn.Close()
			return
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := 500
	switch {
	case models.IsValidation(err):
		status = 400
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, tracking.ErrUnknownSession):
		status = 404
	case errors.Is(err, booking.ErrNotActive), errors.Is(err, tracking.ErrAlreadyTracking):
		status = 409
	}
	if status == 500 {
		s.logger.Error("request failed", "route", routeTemplate(r), "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newID() string { return uuid.NewString() }
