package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/roadside-assist/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisGeo implements Geo using Redis GEO commands. Provider metadata lives
// in a hash next to the geo set.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, p models.ProviderRecord) error {
	if p.Position == nil {
		return models.NewValidationError("position", "provider %q has no position", p.ID)
	}
	if err := Validate(*p.Position, "position"); err != nil {
		return err
	}
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: p.Position.Lon, Latitude: p.Position.Lat, Name: p.ID}).Err(); err != nil {
		return fmt.Errorf("geo add %s: %w", p.ID, err)
	}
	if err := r.client.HSet(ctx, MetaKey(p.ID), MetaFields(p)).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", p.ID, err)
	}
	return nil
}

func (r *RedisGeo) Providers(ctx context.Context, origin models.GeoPoint, radiusMeters float64) ([]models.ProviderRecord, error) {
	res, err := r.client.GeoRadius(ctx, r.key, origin.Lon, origin.Lat, &redis.GeoRadiusQuery{Radius: radiusMeters, Unit: "m", WithCoord: true, Sort: "ASC"}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo radius: %w", err)
	}
	out := make([]models.ProviderRecord, 0, len(res))
	for _, g := range res {
		p := models.ProviderRecord{ID: g.Name, Position: &models.GeoPoint{Lat: g.Latitude, Lon: g.Longitude}}
		if m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result(); err == nil {
			ApplyMeta(&p, m)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *RedisGeo) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisGeo) Close() error { return r.client.Close() }

func MetaKey(id string) string { return "provider:meta:" + id }

// MetaFields flattens the non-positional fields of p for HSET. Services are
// stored as a JSON array so labels may contain commas.
func MetaFields(p models.ProviderRecord) map[string]interface{} {
	services, _ := json.Marshal(p.Services)
	return map[string]interface{}{
		"name":     p.Name,
		"area":     p.Area,
		"services": string(services),
		"rating":   strconv.FormatFloat(p.Rating, 'f', -1, 64),
		"verified": strconv.FormatBool(p.Verified),
		"updated":  time.Now().Format(time.RFC3339),
	}
}

func ApplyMeta(p *models.ProviderRecord, m map[string]string) {
	p.Name = m["name"]
	p.Area = m["area"]
	if v := m["services"]; v != "" {
		var services []string
		if err := json.Unmarshal([]byte(v), &services); err == nil {
			p.Services = services
		} else {
			// entries written before services were JSON encoded
			p.Services = strings.Split(v, ",")
		}
	}
	if v, ok := m["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Rating = f
		}
	}
	p.Verified = m["verified"] == "true"
}
