package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
)

// Match ranks catalog against query using the default urban speed for ETA
// labels. See MatchWithSpeed.
func Match(catalog []models.ProviderRecord, query models.MatchQuery) ([]models.RankedProvider, error) {
	return MatchWithSpeed(catalog, query, eta.DefaultSpeedKmh)
}

// MatchWithSpeed filters catalog by area, name and service type, drops
// providers beyond the distance cap, sorts by distance (then name) and keeps
// at most MaxResults entries. Zero caps take the package defaults. The
// catalog is never modified and an empty result is not an error.
func MatchWithSpeed(catalog []models.ProviderRecord, query models.MatchQuery, speedKmh float64) ([]models.RankedProvider, error) {
	if err := geo.Validate(query.Origin, "origin"); err != nil {
		return nil, err
	}
	maxDist := query.MaxDistanceMeters
	if maxDist < 0 {
		return nil, models.NewValidationError("max_distance_meters", "must not be negative, got %v", maxDist)
	}
	if maxDist == 0 {
		maxDist = models.DefaultMaxDistanceMeters
	}
	limit := query.MaxResults
	if limit < 0 {
		return nil, models.NewValidationError("max_results", "must not be negative, got %d", limit)
	}
	if limit == 0 {
		limit = models.DefaultMaxResults
	}

	nameNeedle := strings.ToLower(strings.TrimSpace(query.NameContains))
	serviceNeedle := ""
	if st := strings.TrimSpace(query.ServiceType); st != "" && !strings.EqualFold(st, models.AllFilter) {
		serviceNeedle = strings.ToLower(st)
	}
	area := query.AreaName
	if area == models.AllFilter {
		area = ""
	}

	out := make([]models.RankedProvider, 0, limit)
	for _, p := range catalog {
		if p.Position == nil {
			continue
		}
		if area != "" && p.Area != area {
			continue
		}
		if nameNeedle != "" && !strings.Contains(strings.ToLower(p.Name), nameNeedle) {
			continue
		}
		if serviceNeedle != "" && !offers(p.Services, serviceNeedle) {
			continue
		}
		d := geo.DistanceMeters(query.Origin, *p.Position)
		if d > maxDist {
			continue
		}
		rp := models.RankedProvider{ProviderRecord: p, DistanceMeters: d}
		pos := *p.Position
		rp.Position = &pos
		rp.Services = append([]string(nil), p.Services...)
		out = append(out, rp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].ETALabel = eta.EstimateLabel(out[i].DistanceMeters, speedKmh)
	}
	return out, nil
}

func offers(services []string, needle string) bool {
	for _, s := range services {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Catalog supplies candidate providers around an origin.
type Catalog interface {
	Providers(ctx context.Context, origin models.GeoPoint, radiusMeters float64) ([]models.ProviderRecord, error)
}

type Service struct {
	Catalog           Catalog
	SpeedKmh          float64
	MaxDistanceMeters float64
	MaxResults        int
	ETAClient         eta.Client // optional OSRM client
	ETACache          *eta.Cache // optional ETA cache
	Logger            *slog.Logger
}

// Nearby fetches the catalog around the query origin and ranks it. Zero caps
// in the query are filled from the service configuration.
func (s *Service) Nearby(ctx context.Context, q models.MatchQuery) ([]models.RankedProvider, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if err := geo.Validate(q.Origin, "origin"); err != nil {
		return nil, err
	}
	if q.MaxDistanceMeters == 0 {
		q.MaxDistanceMeters = s.MaxDistanceMeters
	}
	if q.MaxResults == 0 {
		q.MaxResults = s.MaxResults
	}
	radius := q.MaxDistanceMeters
	if radius == 0 {
		radius = models.DefaultMaxDistanceMeters
	}

	catalog, err := s.Catalog.Providers(ctx, q.Origin, radius)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	ranked, err := MatchWithSpeed(catalog, q, s.SpeedKmh)
	if err != nil {
		return nil, err
	}
	if s.ETAClient != nil {
		s.refineETA(ctx, q.Origin, ranked)
	}
	observability.MatchesTotal.Inc()
	observability.MatchResults.Observe(float64(len(ranked)))
	return ranked, nil
}

// refineETA replaces heuristic labels with routed ones where the router
// answers. Providers travel to the user, so routes start at the provider.
func (s *Service) refineETA(ctx context.Context, user models.GeoPoint, ranked []models.RankedProvider) {
	for i := range ranked {
		from := *ranked[i].Position
		if s.ETACache != nil {
			if v, ok := s.ETACache.Get(from, user); ok {
				ranked[i].ETALabel = eta.FormatLabel(time.Duration(v * float64(time.Second)))
				continue
			}
		}
		secs, err := s.ETAClient.EstimateSeconds(ctx, from, user)
		if err != nil {
			observability.RoutedETAFailures.Inc()
			if s.Logger != nil {
				s.Logger.Warn("routed eta failed, keeping heuristic", "provider_id", ranked[i].ID, "error", err)
			}
			continue
		}
		if s.ETACache != nil {
			s.ETACache.Set(from, user, secs)
		}
		ranked[i].ETALabel = eta.FormatLabel(time.Duration(secs * float64(time.Second)))
	}
}
