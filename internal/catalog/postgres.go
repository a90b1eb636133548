package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
)

// metersPerDegreeLat is used for the latitude band prefilter.
const metersPerDegreeLat = 111320.0

// PostgresCatalog reads service areas from the service_areas table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresCatalog{pool: pool}, nil
}

func (c *PostgresCatalog) Close() { c.pool.Close() }

func (c *PostgresCatalog) Providers(ctx context.Context, origin models.GeoPoint, radiusMeters float64) ([]models.ProviderRecord, error) {
	const op = "PostgresCatalog.Providers"
	query := `
		SELECT id, name, area, lat, lon, services, rating, verified
		FROM service_areas
		WHERE lat IS NOT NULL AND lon IS NOT NULL`
	args := []any{}
	if radiusMeters > 0 {
		band := radiusMeters / metersPerDegreeLat
		query += ` AND lat BETWEEN $1 AND $2`
		args = append(args, origin.Lat-band, origin.Lat+band)
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []models.ProviderRecord
	for rows.Next() {
		var (
			p        models.ProviderRecord
			lat, lon *float64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Area, &lat, &lon, &p.Services, &p.Rating, &p.Verified); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if lat != nil && lon != nil {
			p.Position = &models.GeoPoint{Lat: *lat, Lon: *lon}
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := Normalize(records)
	if radiusMeters <= 0 {
		return out, nil
	}
	n := 0
	for _, p := range out {
		if geo.DistanceMeters(origin, *p.Position) <= radiusMeters {
			out[n] = p
			n++
		}
	}
	return out[:n], nil
}
