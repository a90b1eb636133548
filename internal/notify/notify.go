// Package notify publishes booking lifecycle events for the external
// notification service. Delivery to devices happens elsewhere.
package notify

import (
	"context"
	"time"
)

type EventType string

const (
	BookingAssigned  EventType = "booking.assigned"
	BookingArrived   EventType = "booking.arrived"
	BookingCancelled EventType = "booking.cancelled"
)

type Event struct {
	Type       EventType `json:"type"`
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	ProviderID string    `json:"provider_id"`
	ETALabel   string    `json:"eta_label,omitempty"`
	At         time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
