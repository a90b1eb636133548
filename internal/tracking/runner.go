package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
)

// Sink receives every snapshot a Runner computes.
type Sink interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap Snapshot) error

func (f SinkFunc) Publish(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// ArrivalFunc is called once from the session goroutine when a session
// reaches its destination.
type ArrivalFunc func(ctx context.Context, s models.TrackingSession)

// Runner owns the recurring tick schedule of every active session. Each
// session is ticked by exactly one goroutine, which is the single owner
// Tick relies on.
type Runner struct {
	mu       sync.Mutex
	runs     map[string]*run
	wg       sync.WaitGroup
	interval time.Duration
	now      func() time.Time
	sinks    []Sink
	logger   *slog.Logger

	OnArrival ArrivalFunc
}

type run struct {
	session models.TrackingSession
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRunner(interval time.Duration, logger *slog.Logger, sinks ...Sink) *Runner {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		runs:     make(map[string]*run),
		interval: interval,
		now:      time.Now,
		sinks:    sinks,
		logger:   logger,
	}
}

// SetClock replaces the wall clock read on every tick.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Start begins ticking s until it arrives, is cancelled or ctx ends. The
// first tick happens immediately.
func (r *Runner) Start(ctx context.Context, s models.TrackingSession) error {
	if s.TotalDuration <= 0 {
		return models.NewValidationError("total_duration", "must be positive, got %s", s.TotalDuration)
	}
	r.mu.Lock()
	if _, ok := r.runs[s.BookingID]; ok {
		r.mu.Unlock()
		return ErrAlreadyTracking
	}
	ctx, cancel := context.WithCancel(ctx)
	rn := &run{session: s, cancel: cancel, done: make(chan struct{})}
	r.runs[s.BookingID] = rn
	r.wg.Add(1)
	r.mu.Unlock()

	observability.TrackingActive.Inc()
	r.logger.Info("tracking started", "booking_id", s.BookingID, "duration", s.TotalDuration.String())
	go r.loop(ctx, rn)
	return nil
}

func (r *Runner) loop(ctx context.Context, rn *run) {
	defer r.wg.Done()
	defer close(rn.done)
	defer observability.TrackingActive.Dec()
	defer r.forget(rn)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if r.step(ctx, rn) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// step ticks rn once and reports whether the session reached its end.
func (r *Runner) step(ctx context.Context, rn *run) bool {
	now := r.now()

	r.mu.Lock()
	next := Tick(rn.session, now)
	rn.session = next
	r.mu.Unlock()

	observability.TrackingTicksTotal.Inc()
	r.Publish(ctx, NewSnapshot(next, now))
	if next.Status != models.StatusArrived {
		return false
	}

	if !r.forget(rn) {
		// cancelled while this tick was in flight
		return true
	}
	observability.TrackingArrivals.Inc()
	r.logger.Info("provider arrived", "booking_id", next.BookingID)
	if r.OnArrival != nil {
		r.OnArrival(ctx, next)
	}
	return true
}

// forget unregisters rn and reports whether it was still registered.
func (r *Runner) forget(rn *run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.runs[rn.session.BookingID]; ok && cur == rn {
		delete(r.runs, rn.session.BookingID)
		return true
	}
	return false
}

// Publish hands snap to every sink. Sink failures are logged and never stop
// a session.
func (r *Runner) Publish(ctx context.Context, snap Snapshot) {
	for _, s := range r.sinks {
		if err := s.Publish(ctx, snap); err != nil {
			observability.PublishErrors.WithLabelValues("tracking").Inc()
			r.logger.Warn("tracking publish failed", "booking_id", snap.BookingID, "error", err)
		}
	}
}

// Snapshot returns the latest computed state of an active session.
func (r *Runner) Snapshot(bookingID string) (models.TrackingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runs[bookingID]
	if !ok {
		return models.TrackingSession{}, false
	}
	return rn.session, true
}

// Cancel stops the tick schedule of a session, waits for its goroutine to
// exit and only then discards the session.
func (r *Runner) Cancel(bookingID string) (models.TrackingSession, error) {
	r.mu.Lock()
	rn, ok := r.runs[bookingID]
	if ok {
		delete(r.runs, bookingID)
	}
	r.mu.Unlock()
	if !ok {
		return models.TrackingSession{}, ErrUnknownSession
	}

	rn.cancel()
	<-rn.done

	observability.TrackingCancellations.Inc()
	r.logger.Info("tracking cancelled", "booking_id", bookingID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return Cancel(rn.session), nil
}

func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// Stop halts every session without discarding it; bookings stay en route
// and are resumed from the store on the next start.
func (r *Runner) Stop() {
	r.mu.Lock()
	for id, rn := range r.runs {
		rn.cancel()
		delete(r.runs, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
