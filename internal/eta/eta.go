package eta

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
)

// DefaultSpeedKmh is the assumed average urban speed for heuristic ETAs.
const DefaultSpeedKmh = 40.0

// Client returns routed travel times. The heuristic in this package is the
// fallback whenever a Client is missing or fails.
type Client interface {
	EstimateSeconds(ctx context.Context, from, to models.GeoPoint) (float64, error)
}

// Cache is a tiny in-memory cache for ETA lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func keyFor(a, b models.GeoPoint) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.GeoPoint) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.GeoPoint) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.GeoPoint, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: c.now()}
	c.mu.Unlock()
}

// EstimateDuration is a naive distance / speed estimate. It ignores roads
// and traffic; a routed Client can replace it.
func EstimateDuration(distanceMeters, speedKmh float64) time.Duration {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	if distanceMeters <= 0 || math.IsNaN(distanceMeters) {
		return 0
	}
	hours := distanceMeters / 1000 / speedKmh
	return time.Duration(hours * float64(time.Hour))
}

// EstimateLabel formats the heuristic ETA for distanceMeters as "N min" or
// "N hr".
func EstimateLabel(distanceMeters, speedKmh float64) string {
	return FormatLabel(EstimateDuration(distanceMeters, speedKmh))
}

// FormatLabel renders d in whole minutes below an hour and in rounded whole
// hours from there on.
func FormatLabel(d time.Duration) string {
	if d <= 0 {
		return "0 min"
	}
	minutes := math.Round(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d min", int(minutes))
	}
	return fmt.Sprintf("%d hr", int(math.Round(d.Hours())))
}

// Between is the heuristic ETA between two points.
func Between(from, to models.GeoPoint, speedKmh float64) time.Duration {
	return EstimateDuration(geo.DistanceMeters(from, to), speedKmh)
}
