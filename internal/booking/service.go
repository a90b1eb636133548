// Package booking ties a confirmed provider assignment to its persisted
// record and its live tracking session.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/notify"
	"github.com/example/roadside-assist/internal/observability"
	"github.com/example/roadside-assist/internal/storage"
	"github.com/example/roadside-assist/internal/tracking"
)

var ErrNotActive = errors.New("booking is not en route")

type CreateRequest struct {
	UserID           string          `json:"user_id"`
	ProviderID       string          `json:"provider_id"`
	UserPosition     models.GeoPoint `json:"user_position"`
	ProviderPosition models.GeoPoint `json:"provider_position"`
}

type Options struct {
	Store                storage.BookingStore
	Runner               *tracking.Runner
	Notifier             notify.Notifier
	Duration             time.Duration
	DurationFromDistance bool
	SpeedKmh             float64
	Logger               *slog.Logger
}

type Service struct {
	store    storage.BookingStore
	runner   *tracking.Runner
	notifier notify.Notifier
	duration time.Duration
	seeded   bool
	speedKmh float64
	logger   *slog.Logger

	// mu serializes status transitions between Cancel and arrival.
	mu sync.Mutex

	// base outlives requests; sessions are started under it.
	base  context.Context
	now   func() time.Time
	newID func() string
}

func NewService(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		runner:   opts.Runner,
		notifier: opts.Notifier,
		duration: opts.Duration,
		seeded:   opts.DurationFromDistance,
		speedKmh: opts.SpeedKmh,
		logger:   opts.Logger,
		base:     context.Background(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	if s.duration <= 0 {
		s.duration = tracking.DefaultDuration
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.runner.OnArrival = s.handleArrival
	return s
}

// Resume sets ctx as the lifetime of every tracking session and restarts
// tracking for bookings that were en route when the process stopped.
// Bookings whose countdown ran out meanwhile are marked arrived.
func (s *Service) Resume(ctx context.Context) (int, error) {
	s.base = ctx
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active bookings: %w", err)
	}
	resumed := 0
	for _, b := range active {
		sess, err := tracking.FromBooking(*b)
		if err != nil {
			s.logger.Warn("skipping unresumable booking", "booking_id", b.ID, "error", err)
			continue
		}
		if tracking.Tick(sess, s.now()).Status == models.StatusArrived {
			s.mu.Lock()
			s.markArrived(ctx, b)
			s.mu.Unlock()
			continue
		}
		if err := s.runner.Start(s.base, sess); err != nil && !errors.Is(err, tracking.ErrAlreadyTracking) {
			s.logger.Warn("resume tracking failed", "booking_id", b.ID, "error", err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Create persists a booking for a confirmed provider and starts tracking it.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Booking, models.TrackingSession, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, models.TrackingSession{}, models.NewValidationError("user_id", "required")
	}
	if strings.TrimSpace(req.ProviderID) == "" {
		return nil, models.TrackingSession{}, models.NewValidationError("provider_id", "required")
	}
	if err := geo.Validate(req.UserPosition, "user_position"); err != nil {
		return nil, models.TrackingSession{}, err
	}
	if err := geo.Validate(req.ProviderPosition, "provider_position"); err != nil {
		return nil, models.TrackingSession{}, err
	}

	duration := s.duration
	if s.seeded {
		duration = tracking.PlannedDuration(req.ProviderPosition, req.UserPosition, s.speedKmh)
	}
	now := s.now()
	b := &models.Booking{
		ID:               s.newID(),
		UserID:           req.UserID,
		ProviderID:       req.ProviderID,
		ProviderPosition: req.ProviderPosition,
		UserPosition:     req.UserPosition,
		StartedAt:        now,
		Duration:         duration,
		Status:           models.BookingEnRoute,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	sess, err := tracking.FromBooking(*b)
	if err != nil {
		return nil, models.TrackingSession{}, err
	}
	if err := s.store.SaveBooking(ctx, b); err != nil {
		return nil, models.TrackingSession{}, fmt.Errorf("save booking: %w", err)
	}
	if err := s.runner.Start(s.base, sess); err != nil {
		return nil, models.TrackingSession{}, err
	}
	s.notify(ctx, b, notify.BookingAssigned, eta.FormatLabel(duration))
	s.logger.Info("booking created", "booking_id", b.ID, "provider_id", b.ProviderID, "duration", duration.String())
	return b, sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// Tracking derives the session of a booking at the current time from its
// persisted record, so it answers the same before and after a restart.
func (s *Service) Tracking(ctx context.Context, id string) (models.TrackingSession, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return models.TrackingSession{}, err
	}
	sess, err := tracking.FromBooking(*b)
	if err != nil {
		return models.TrackingSession{}, err
	}
	if b.Status == models.BookingCancelled {
		return tracking.Cancel(tracking.Tick(sess, b.UpdatedAt)), nil
	}
	return tracking.Tick(sess, s.now()), nil
}

// Cancel stops the tick schedule first and only then records the
// cancellation. The returned session is frozen at the cancellation time. A
// booking whose countdown already ran out is marked arrived instead and
// ErrNotActive is returned.
func (s *Service) Cancel(ctx context.Context, id string) (models.TrackingSession, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return models.TrackingSession{}, err
	}
	if b.Status != models.BookingEnRoute {
		return models.TrackingSession{}, ErrNotActive
	}

	// ErrUnknownSession: not ticking here, or the arrival hook owns it now
	if _, err := s.runner.Cancel(id); err != nil && !errors.Is(err, tracking.ErrUnknownSession) {
		return models.TrackingSession{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err = s.store.GetBooking(ctx, id)
	if err != nil {
		return models.TrackingSession{}, err
	}
	if b.Status != models.BookingEnRoute {
		return models.TrackingSession{}, ErrNotActive
	}
	// the frozen view comes from the record, like Tracking
	base, err := tracking.FromBooking(*b)
	if err != nil {
		return models.TrackingSession{}, err
	}
	now := s.now()
	ticked := tracking.Tick(base, now)
	if ticked.Status == models.StatusArrived {
		s.markArrived(ctx, b)
		return models.TrackingSession{}, ErrNotActive
	}
	sess := tracking.Cancel(ticked)

	b.Status = models.BookingCancelled
	b.UpdatedAt = now
	if err := s.store.UpdateBooking(ctx, b); err != nil {
		return models.TrackingSession{}, fmt.Errorf("update booking: %w", err)
	}
	s.runner.Publish(ctx, tracking.NewSnapshot(sess, now))
	s.notify(ctx, b, notify.BookingCancelled, "")
	s.logger.Info("booking cancelled", "booking_id", id)
	return sess, nil
}

func (s *Service) handleArrival(ctx context.Context, sess models.TrackingSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.store.GetBooking(ctx, sess.BookingID)
	if err != nil {
		s.logger.Error("load arrived booking", "booking_id", sess.BookingID, "error", err)
		return
	}
	if b.Status != models.BookingEnRoute {
		return
	}
	s.markArrived(ctx, b)
}

func (s *Service) markArrived(ctx context.Context, b *models.Booking) {
	b.Status = models.BookingArrived
	b.UpdatedAt = s.now()
	if err := s.store.UpdateBooking(ctx, b); err != nil {
		s.logger.Error("mark booking arrived", "booking_id", b.ID, "error", err)
		return
	}
	s.notify(ctx, b, notify.BookingArrived, "")
}

func (s *Service) notify(ctx context.Context, b *models.Booking, t notify.EventType, etaLabel string) {
	err := s.notifier.Notify(ctx, notify.Event{
		Type:       t,
		BookingID:  b.ID,
		UserID:     b.UserID,
		ProviderID: b.ProviderID,
		ETALabel:   etaLabel,
		At:         s.now(),
	})
	if err != nil {
		observability.PublishErrors.WithLabelValues("notify").Inc()
		s.logger.Warn("notify failed", "booking_id", b.ID, "event", string(t), "error", err)
	}
}
