package storage

import (
	"context"
	"testing"
	"time"

	"github.com/example/roadside-assist/internal/models"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	late := &models.Booking{ID: "late", Status: models.BookingEnRoute, StartedAt: t0.Add(time.Minute)}
	early := &models.Booking{ID: "early", Status: models.BookingEnRoute, StartedAt: t0}
	done := &models.Booking{ID: "done", Status: models.BookingArrived, StartedAt: t0}
	for _, b := range []*models.Booking{late, early, done} {
		if err := m.SaveBooking(ctx, b); err != nil {
			t.Fatalf("save %s: %v", b.ID, err)
		}
	}

	active, err := m.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].ID != "early" || active[1].ID != "late" {
		t.Fatalf("unexpected active bookings: %+v", active)
	}

	got, err := m.GetBooking(ctx, "late")
	if err != nil {
		t.Fatal(err)
	}
	got.Status = models.BookingCancelled
	if again, _ := m.GetBooking(ctx, "late"); again.Status != models.BookingEnRoute {
		t.Fatalf("store must hand out copies")
	}
	if err := m.UpdateBooking(ctx, got); err != nil {
		t.Fatal(err)
	}
	if active, _ := m.ListActive(ctx); len(active) != 1 {
		t.Fatalf("expected 1 active booking, got %d", len(active))
	}

	if _, err := m.GetBooking(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.UpdateBooking(ctx, &models.Booking{ID: "missing"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
