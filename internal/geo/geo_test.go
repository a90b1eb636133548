package geo

import (
	"context"
	"math"
	"testing"

	"github.com/example/roadside-assist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
	p := models.GeoPoint{Lat: 22.3072, Lon: 73.1812}
	if d := DistanceMeters(p, p); d != 0 {
		t.Fatalf("expected 0 for identical points, got %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pts := []models.GeoPoint{
		{Lat: 22.3072, Lon: 73.1812},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 51.5074, Lon: -0.1278},
		{Lat: 89.9, Lon: 179.9},
		{Lat: -90, Lon: -180},
	}
	for _, a := range pts {
		for _, b := range pts {
			ab, ba := DistanceMeters(a, b), DistanceMeters(b, a)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.InEpsilon(t, ab+1, ba+1, 1e-6, "a=%v b=%v", a, b)
		}
	}
}

func TestDistanceVadodaraLandmark(t *testing.T) {
	d := DistanceMeters(models.GeoPoint{Lat: 22.3072, Lon: 73.1812}, models.GeoPoint{Lat: 22.2928, Lon: 73.2081})
	// two points roughly 3.2 km apart
	assert.GreaterOrEqual(t, d, 3100.0)
	assert.LessOrEqual(t, d, 3300.0)
}

func TestDistanceAntipodal(t *testing.T) {
	d := DistanceMeters(models.GeoPoint{Lat: 0, Lon: 0}, models.GeoPoint{Lat: 0, Lon: 180})
	require.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusMeters, d, 1)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(models.GeoPoint{Lat: 90, Lon: -180}, "origin"))

	for _, p := range []models.GeoPoint{{Lat: 90.1}, {Lat: -91}, {Lon: 180.5}, {Lon: -181}, {Lat: math.NaN()}} {
		err := Validate(p, "origin")
		require.Error(t, err, "point %v", p)
		assert.True(t, models.IsValidation(err))
	}
}

func TestInterpolate(t *testing.T) {
	a := models.GeoPoint{Lat: 22.3150, Lon: 73.1900}
	b := models.GeoPoint{Lat: 22.3072, Lon: 73.1812}
	assert.Equal(t, a, Interpolate(a, b, 0))
	mid := Interpolate(a, b, 0.5)
	assert.InDelta(t, (a.Lat+b.Lat)/2, mid.Lat, 1e-12)
	assert.InDelta(t, (a.Lon+b.Lon)/2, mid.Lon, 1e-12)
}

func TestIndexProvidersWithinRadius(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	near := models.ProviderRecord{ID: "near", Name: "Alkapuri", Position: &models.GeoPoint{Lat: 22.3100, Lon: 73.1700}}
	far := models.ProviderRecord{ID: "far", Name: "Ahmedabad", Position: &models.GeoPoint{Lat: 23.0225, Lon: 72.5714}}
	require.NoError(t, idx.Upsert(ctx, near))
	require.NoError(t, idx.Upsert(ctx, far))

	err := idx.Upsert(ctx, models.ProviderRecord{ID: "nopos"})
	assert.True(t, models.IsValidation(err))

	got, err := idx.Providers(ctx, models.GeoPoint{Lat: 22.3072, Lon: 73.1812}, 10000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].ID)

	// returned records are copies
	got[0].Position.Lat = 0
	again, _ := idx.Providers(ctx, models.GeoPoint{Lat: 22.3072, Lon: 73.1812}, 0)
	assert.Len(t, again, 2)
	for _, p := range again {
		assert.NotZero(t, p.Position.Lat)
	}

	idx.Remove("far")
	again, _ = idx.Providers(ctx, models.GeoPoint{}, 0)
	assert.Len(t, again, 1)
}

func TestMetaRoundTrip(t *testing.T) {
	p := models.ProviderRecord{ID: "m1", Name: "Sharma Motors", Area: "Gotri", Services: []string{"Towing", "Battery Jump"}, Rating: 4.5, Verified: true}
	fields := MetaFields(p)
	m := make(map[string]string, len(fields))
	for k, v := range fields {
		m[k] = v.(string)
	}
	var out models.ProviderRecord
	ApplyMeta(&out, m)
	assert.Equal(t, p.Name, out.Name)
	assert.Equal(t, p.Area, out.Area)
	assert.Equal(t, p.Services, out.Services)
	assert.Equal(t, p.Rating, out.Rating)
	assert.True(t, out.Verified)
}

func TestMetaKeepsCommasInServiceLabels(t *testing.T) {
	p := models.ProviderRecord{ID: "m2", Services: []string{"Tyre, Tube Repair", "Towing"}}
	fields := MetaFields(p)
	var out models.ProviderRecord
	ApplyMeta(&out, map[string]string{"services": fields["services"].(string)})
	assert.Equal(t, p.Services, out.Services)

	var legacy models.ProviderRecord
	ApplyMeta(&legacy, map[string]string{"services": "Towing,Flat Tyre"})
	assert.Equal(t, []string{"Towing", "Flat Tyre"}, legacy.Services)
}
