package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/roadside-assist/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	geoKeys  []string
	hashKeys []string
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	f.geoKeys = append(f.geoKeys, key)
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	f.hashKeys = append(f.hashKeys, key)
	f.lastMeta = values
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	return nil
}

func testProvider() models.ProviderRecord {
	return models.ProviderRecord{
		ID:       "mech-1",
		Name:     "Gotri Garage",
		Area:     "Gotri",
		Position: &models.GeoPoint{Lat: 22.32, Lon: 73.14},
		Services: []string{"Towing", "Flat Tyre"},
		Rating:   4.5,
	}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	start := time.Now()
	if err := updateRedisWithRetry(context.Background(), f, "providers_geo", testProvider(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.geoKeys[0] != "providers_geo" || f.hashKeys[0] != "provider:meta:mech-1" {
		t.Fatalf("unexpected keys geo=%v hash=%v", f.geoKeys, f.hashKeys)
	}
	if f.lastMeta["services"] != `["Towing","Flat Tyre"]` {
		t.Fatalf("unexpected meta %v", f.lastMeta)
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	if err := updateRedisWithRetry(context.Background(), f, "providers_geo", testProvider(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.geoCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.geoCalls)
	}
}

func TestUpdateRedisWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := updateRedisWithRetry(ctx, f, "providers_geo", testProvider(), 3, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.geoCalls != 1 {
		t.Fatalf("expected a single attempt, got %d", f.geoCalls)
	}
}

func TestDecodeProvider(t *testing.T) {
	p, err := decodeProvider([]byte(`{"id":"m1","name":"x","position":{"lat":22.3,"lon":73.1},"services":["Towing"]}`))
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if p.ID != "m1" || p.Position.Lat != 22.3 {
		t.Fatalf("unexpected record %+v", p)
	}

	for _, raw := range []string{
		`not json`,
		`{"name":"no id","position":{"lat":1,"lon":1}}`,
		`{"id":"m2"}`,
		`{"id":"m3","position":{"lat":120,"lon":1}}`,
	} {
		if _, err := decodeProvider([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestSleepCtx(t *testing.T) {
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Fatalf("expected full sleep")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sleepCtx(ctx, 30*time.Second) {
		t.Fatalf("expected early return on cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep ignored cancellation")
	}
}
