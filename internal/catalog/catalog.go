// Package catalog supplies provider records to the matcher. Every source
// normalizes its records at the boundary so the matcher only ever sees
// well-formed ProviderRecords.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
)

var ErrUnavailable = errors.New("catalog unavailable")

type Source interface {
	Providers(ctx context.Context, origin models.GeoPoint, radiusMeters float64) ([]models.ProviderRecord, error)
}

// Normalize drops records without an id, a position or valid coordinates
// and trims service labels.
func Normalize(in []models.ProviderRecord) []models.ProviderRecord {
	out := make([]models.ProviderRecord, 0, len(in))
	for _, p := range in {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || p.Position == nil {
			continue
		}
		if err := geo.Validate(*p.Position, "position"); err != nil {
			continue
		}
		services := make([]string, 0, len(p.Services))
		for _, s := range p.Services {
			if s = strings.TrimSpace(s); s != "" {
				services = append(services, s)
			}
		}
		p.Services = services
		p.Name = strings.TrimSpace(p.Name)
		out = append(out, p)
	}
	return out
}

// Fallback serves from Secondary whenever Primary fails or has nothing
// around the origin.
type Fallback struct {
	Primary   Source
	Secondary Source
	Logger    *slog.Logger
}

func (f *Fallback) Providers(ctx context.Context, origin models.GeoPoint, radiusMeters float64) ([]models.ProviderRecord, error) {
	if f.Primary != nil {
		out, err := f.Primary.Providers(ctx, origin, radiusMeters)
		if err == nil && len(out) > 0 {
			return out, nil
		}
		if err != nil && f.Logger != nil {
			f.Logger.Warn("primary catalog failed, using fallback", "error", err)
		}
	}
	if f.Secondary == nil {
		return nil, fmt.Errorf("%w: no fallback configured", ErrUnavailable)
	}
	return f.Secondary.Providers(ctx, origin, radiusMeters)
}
