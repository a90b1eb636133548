package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = models.GeoPoint{Lat: 22.3072, Lon: 73.1812}

func pt(lat, lon float64) *models.GeoPoint { return &models.GeoPoint{Lat: lat, Lon: lon} }

func fixture() []models.ProviderRecord {
	return []models.ProviderRecord{
		{ID: "alk", Name: "Alkapuri Auto Care", Area: "Alkapuri", Position: pt(22.3100, 73.1700), Services: []string{"Towing", "Tyre Change"}, Rating: 4.2, Verified: true},
		{ID: "got", Name: "Gotri Garage", Area: "Gotri", Position: pt(22.3200, 73.1400), Services: []string{"Battery Jump", "Towing"}, Rating: 4.8},
		{ID: "man", Name: "Manjalpur Motors", Area: "Manjalpur", Position: pt(22.2650, 73.1900), Services: []string{"Fuel Delivery"}, Rating: 3.9},
		{ID: "ahm", Name: "Ahmedabad Rescue", Area: "Ahmedabad", Position: pt(23.0225, 72.5714), Services: []string{"Towing"}, Rating: 5},
		{ID: "ghost", Name: "Ghost Garage", Area: "Alkapuri", Services: []string{"Towing"}},
		{ID: "ako", Name: "Akota Mechanics", Area: "Akota", Position: pt(22.3100, 73.1700), Services: []string{"Lockout"}, Rating: 4.0},
	}
}

func ids(r []models.RankedProvider) []string {
	out := make([]string, 0, len(r))
	for _, p := range r {
		out = append(out, p.ID)
	}
	return out
}

func TestMatchRanksByDistanceThenName(t *testing.T) {
	got, err := Match(fixture(), models.MatchQuery{Origin: origin})
	require.NoError(t, err)
	assert.Equal(t, []string{"ako", "alk", "got", "man"}, ids(got))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].DistanceMeters, got[i].DistanceMeters)
	}
	for _, p := range got {
		assert.Equal(t, eta.EstimateLabel(p.DistanceMeters, eta.DefaultSpeedKmh), p.ETALabel)
	}
}

func TestMatchCaps(t *testing.T) {
	got, err := Match(fixture(), models.MatchQuery{Origin: origin, MaxDistanceMeters: 2000})
	require.NoError(t, err)
	assert.Equal(t, []string{"ako", "alk"}, ids(got))
	for _, p := range got {
		assert.LessOrEqual(t, p.DistanceMeters, 2000.0)
	}

	got, err = Match(fixture(), models.MatchQuery{Origin: origin, MaxResults: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"ako"}, ids(got))

	got, err = Match(fixture(), models.MatchQuery{Origin: origin, MaxDistanceMeters: 200000, MaxResults: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"ako", "alk", "got", "man", "ahm"}, ids(got))
}

func TestMatchServiceFilterExcludesNearest(t *testing.T) {
	got, err := Match(fixture(), models.MatchQuery{Origin: origin, ServiceType: "battery"})
	require.NoError(t, err)
	assert.Equal(t, []string{"got"}, ids(got))

	got, err = Match(fixture(), models.MatchQuery{Origin: origin, ServiceType: "all"})
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestMatchAreaAndNameFilters(t *testing.T) {
	got, err := Match(fixture(), models.MatchQuery{Origin: origin, AreaName: "Gotri"})
	require.NoError(t, err)
	assert.Equal(t, []string{"got"}, ids(got))

	got, err = Match(fixture(), models.MatchQuery{Origin: origin, AreaName: "gotri"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Match(fixture(), models.MatchQuery{Origin: origin, AreaName: models.AllFilter, NameContains: "MOTORS"})
	require.NoError(t, err)
	assert.Equal(t, []string{"man"}, ids(got))

	got, err = Match(fixture(), models.MatchQuery{Origin: origin, AreaName: "Alkapuri", ServiceType: "tyre", NameContains: "auto"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alk"}, ids(got))
}

func TestMatchValidation(t *testing.T) {
	_, err := Match(fixture(), models.MatchQuery{Origin: models.GeoPoint{Lat: 91}})
	assert.True(t, models.IsValidation(err))

	_, err = Match(fixture(), models.MatchQuery{Origin: origin, MaxResults: -1})
	assert.True(t, models.IsValidation(err))

	_, err = Match(fixture(), models.MatchQuery{Origin: origin, MaxDistanceMeters: -1})
	assert.True(t, models.IsValidation(err))
}

func TestMatchEmptyCatalog(t *testing.T) {
	got, err := Match(nil, models.MatchQuery{Origin: origin})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchDeterministicAndPure(t *testing.T) {
	catalog := fixture()
	before := fixture()
	first, err := Match(catalog, models.MatchQuery{Origin: origin})
	require.NoError(t, err)
	second, err := Match(catalog, models.MatchQuery{Origin: origin})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, before, catalog)

	first[0].Position.Lat = 0
	first[0].Services[0] = "changed"
	assert.Equal(t, before, catalog)
}

type fakeCatalog struct {
	providers []models.ProviderRecord
	err       error
	radius    float64
}

func (f *fakeCatalog) Providers(_ context.Context, _ models.GeoPoint, radius float64) ([]models.ProviderRecord, error) {
	f.radius = radius
	return f.providers, f.err
}

type fakeRouter struct {
	secs  float64
	err   error
	calls int
}

func (f *fakeRouter) EstimateSeconds(context.Context, models.GeoPoint, models.GeoPoint) (float64, error) {
	f.calls++
	return f.secs, f.err
}

func TestServiceNearbyUsesConfiguredCaps(t *testing.T) {
	cat := &fakeCatalog{providers: fixture()}
	s := &Service{Catalog: cat, SpeedKmh: 40, MaxDistanceMeters: 5000, MaxResults: 2}
	got, err := s.Nearby(context.Background(), models.MatchQuery{Origin: origin})
	require.NoError(t, err)
	assert.Equal(t, []string{"ako", "alk"}, ids(got))
	assert.Equal(t, 5000.0, cat.radius)
}

func TestServiceNearbyCatalogError(t *testing.T) {
	s := &Service{Catalog: &fakeCatalog{err: errors.New("db down")}}
	_, err := s.Nearby(context.Background(), models.MatchQuery{Origin: origin})
	require.Error(t, err)
	assert.False(t, models.IsValidation(err))

	_, err = s.Nearby(context.Background(), models.MatchQuery{Origin: models.GeoPoint{Lon: 200}})
	assert.True(t, models.IsValidation(err))
}

func TestServiceNearbyRoutedETA(t *testing.T) {
	router := &fakeRouter{secs: 600}
	s := &Service{Catalog: &fakeCatalog{providers: fixture()}, ETAClient: router, ETACache: eta.NewCache(time.Minute)}
	got, err := s.Nearby(context.Background(), models.MatchQuery{Origin: origin, MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10 min", got[0].ETALabel)
	assert.Equal(t, 1, router.calls)

	_, err = s.Nearby(context.Background(), models.MatchQuery{Origin: origin, MaxResults: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, router.calls, "second lookup should hit the cache")
}

func TestServiceNearbyRoutedETAFallsBack(t *testing.T) {
	s := &Service{Catalog: &fakeCatalog{providers: fixture()}, ETAClient: &fakeRouter{err: errors.New("no route")}}
	got, err := s.Nearby(context.Background(), models.MatchQuery{Origin: origin, MaxResults: 1})
	require.NoError(t, err)
	assert.Equal(t, eta.EstimateLabel(got[0].DistanceMeters, eta.DefaultSpeedKmh), got[0].ETALabel)
}
