package geo

import (
	"context"
	"math"
	"sync"

	"github.com/example/roadside-assist/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// Geo is the provider index used by the HTTP layer and the matcher's catalog.
type Geo interface {
	Providers(ctx context.Context, origin models.GeoPoint, radiusMeters float64) ([]models.ProviderRecord, error)
	Upsert(ctx context.Context, p models.ProviderRecord) error
}

type Index struct {
	mu        sync.RWMutex
	providers map[string]models.ProviderRecord
}

func NewIndex() *Index {
	return &Index{providers: make(map[string]models.ProviderRecord)}
}

func (g *Index) Upsert(_ context.Context, p models.ProviderRecord) error {
	if p.Position == nil {
		return models.NewValidationError("position", "provider %q has no position", p.ID)
	}
	if err := Validate(*p.Position, "position"); err != nil {
		return err
	}
	pos := *p.Position
	p.Position = &pos
	p.Services = append([]string(nil), p.Services...)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[p.ID] = p
	return nil
}

func (g *Index) Remove(id string) {
	g.mu.Lock()
	delete(g.providers, id)
	g.mu.Unlock()
}

// Providers returns copies of every indexed provider within radiusMeters of
// origin. A non-positive radius returns everything. Order is unspecified.
func (g *Index) Providers(_ context.Context, origin models.GeoPoint, radiusMeters float64) ([]models.ProviderRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.ProviderRecord, 0, len(g.providers))
	for _, p := range g.providers {
		if radiusMeters > 0 && DistanceMeters(origin, *p.Position) > radiusMeters {
			continue
		}
		pos := *p.Position
		p.Position = &pos
		p.Services = append([]string(nil), p.Services...)
		out = append(out, p)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a just past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

func DistanceMeters(a, b models.GeoPoint) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Validate checks the coordinate ranges of p. field names the offending
// input in the returned ValidationError.
func Validate(p models.GeoPoint, field string) error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return models.NewValidationError(field, "latitude %v out of range [-90, 90]", p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return models.NewValidationError(field, "longitude %v out of range [-180, 180]", p.Lon)
	}
	return nil
}

// Interpolate moves linearly from a towards b on latitude and longitude
// independently. Good enough for city-scale journeys only.
func Interpolate(a, b models.GeoPoint, ratio float64) models.GeoPoint {
	return models.GeoPoint{
		Lat: a.Lat + (b.Lat-a.Lat)*ratio,
		Lon: a.Lon + (b.Lon-a.Lon)*ratio,
	}
}
