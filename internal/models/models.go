package models

import "time"

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ProviderRecord is a service area or an individual mechanic as supplied by
// a catalog source. Position is nil when the source had no coordinates.
type ProviderRecord struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Area     string    `json:"area"`
	Position *GeoPoint `json:"position,omitempty"`
	Services []string  `json:"services"`
	Rating   float64   `json:"rating"` // 0..5
	Verified bool      `json:"verified"`
}

// RankedProvider is a ProviderRecord with fields derived for one query.
type RankedProvider struct {
	ProviderRecord
	DistanceMeters float64 `json:"distance_meters"`
	ETALabel       string  `json:"eta_label"`
}

// AllFilter disables the area and service filters of a MatchQuery.
const AllFilter = "all"

const (
	DefaultMaxDistanceMeters = 50000.0
	DefaultMaxResults        = 5
)

type MatchQuery struct {
	Origin            GeoPoint `json:"origin"`
	NameContains      string   `json:"name_contains,omitempty"`
	AreaName          string   `json:"area_name,omitempty"`
	ServiceType       string   `json:"service_type,omitempty"`
	MaxDistanceMeters float64  `json:"max_distance_meters,omitempty"`
	MaxResults        int      `json:"max_results,omitempty"`
}

type TrackingStatus string

const (
	StatusEnRoute TrackingStatus = "en_route"
	StatusArrived TrackingStatus = "arrived"
)

type TrackingSession struct {
	BookingID       string         `json:"booking_id,omitempty"`
	Origin          GeoPoint       `json:"origin"`
	Destination     GeoPoint       `json:"destination"`
	StartedAt       time.Time      `json:"started_at"`
	TotalDuration   time.Duration  `json:"-"`
	CurrentPosition GeoPoint       `json:"current_position"`
	Remaining       time.Duration  `json:"-"`
	Progress        float64        `json:"progress"`
	Status          TrackingStatus `json:"status"`
	Cancelled       bool           `json:"cancelled"`
}

// RemainingMs is the remaining countdown in milliseconds.
func (s TrackingSession) RemainingMs() float64 {
	return float64(s.Remaining) / float64(time.Millisecond)
}

type BookingStatus string

const (
	BookingEnRoute   BookingStatus = "en_route"
	BookingArrived   BookingStatus = "arrived"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is the persisted assignment of a provider to a user. Tracking is
// always re-derived from it.
type Booking struct {
	ID               string
	UserID           string
	ProviderID       string
	ProviderPosition GeoPoint
	UserPosition     GeoPoint
	StartedAt        time.Time
	Duration         time.Duration
	Status           BookingStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
