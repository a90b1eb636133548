package tracking

import (
	"errors"
	"time"

	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
)

// DefaultDuration is the planned en-route time of a session when it is not
// seeded from distance.
const DefaultDuration = 20 * time.Minute

// MinPlannedDuration bounds distance-seeded durations from below so that a
// provider parked next to the user still shows a countdown.
const MinPlannedDuration = time.Minute

var (
	ErrUnknownSession  = errors.New("no active tracking session")
	ErrAlreadyTracking = errors.New("tracking session already active")
)

// NewSession builds the initial en-route snapshot for a provider leaving
// origin towards destination at startedAt.
func NewSession(bookingID string, origin, destination models.GeoPoint, startedAt time.Time, total time.Duration) (models.TrackingSession, error) {
	if total <= 0 {
		return models.TrackingSession{}, models.NewValidationError("total_duration", "must be positive, got %s", total)
	}
	if err := geo.Validate(origin, "origin"); err != nil {
		return models.TrackingSession{}, err
	}
	if err := geo.Validate(destination, "destination"); err != nil {
		return models.TrackingSession{}, err
	}
	return models.TrackingSession{
		BookingID:       bookingID,
		Origin:          origin,
		Destination:     destination,
		StartedAt:       startedAt,
		TotalDuration:   total,
		CurrentPosition: origin,
		Remaining:       total,
		Status:          models.StatusEnRoute,
	}, nil
}

// FromBooking re-derives a session from a persisted booking.
func FromBooking(b models.Booking) (models.TrackingSession, error) {
	return NewSession(b.ID, b.ProviderPosition, b.UserPosition, b.StartedAt, b.Duration)
}

// Tick recomputes the derived fields of s at now. Elapsed time is clamped to
// [0, TotalDuration]; a clock reading before the start counts as not
// started. Arrived and cancelled sessions are returned unchanged.
func Tick(s models.TrackingSession, now time.Time) models.TrackingSession {
	if s.Cancelled || s.Status == models.StatusArrived || s.TotalDuration <= 0 {
		return s
	}
	elapsed := now.Sub(s.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= s.TotalDuration {
		s.Progress = 1
		s.Remaining = 0
		s.CurrentPosition = s.Destination
		s.Status = models.StatusArrived
		return s
	}
	s.Progress = float64(elapsed) / float64(s.TotalDuration)
	s.Remaining = s.TotalDuration - elapsed
	s.CurrentPosition = geo.Interpolate(s.Origin, s.Destination, s.Progress)
	return s
}

// Cancel discards s. The caller must have stopped its tick schedule first.
func Cancel(s models.TrackingSession) models.TrackingSession {
	s.Cancelled = true
	return s
}

// PlannedDuration seeds a session duration from the heuristic ETA between
// the provider and the user.
func PlannedDuration(origin, destination models.GeoPoint, speedKmh float64) time.Duration {
	d := eta.Between(origin, destination, speedKmh).Round(time.Second)
	if d < MinPlannedDuration {
		return MinPlannedDuration
	}
	return d
}

// Snapshot is the wire view of a session published to subscribers.
type Snapshot struct {
	BookingID       string                `json:"booking_id"`
	Status          models.TrackingStatus `json:"status"`
	Cancelled       bool                  `json:"cancelled,omitempty"`
	Position        models.GeoPoint       `json:"position"`
	Origin          models.GeoPoint       `json:"origin"`
	Destination     models.GeoPoint       `json:"destination"`
	Progress        float64               `json:"progress"`
	RemainingMs     float64               `json:"remaining_ms"`
	RemainingLabel  string                `json:"remaining_label"`
	TotalDurationMs float64               `json:"total_duration_ms"`
	StartedAt       time.Time             `json:"started_at"`
	At              time.Time             `json:"at"`
}

func NewSnapshot(s models.TrackingSession, at time.Time) Snapshot {
	return Snapshot{
		BookingID:       s.BookingID,
		Status:          s.Status,
		Cancelled:       s.Cancelled,
		Position:        s.CurrentPosition,
		Origin:          s.Origin,
		Destination:     s.Destination,
		Progress:        s.Progress,
		RemainingMs:     s.RemainingMs(),
		RemainingLabel:  eta.FormatLabel(s.Remaining),
		TotalDurationMs: float64(s.TotalDuration) / float64(time.Millisecond),
		StartedAt:       s.StartedAt,
		At:              at,
	}
}
