package eta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/roadside-assist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateLabel(t *testing.T) {
	cases := []struct {
		meters float64
		speed  float64
		want   string
	}{
		{0, 40, "0 min"},
		{-5, 40, "0 min"},
		{3200, 40, "5 min"},     // 4.8 min
		{10000, 40, "15 min"},   // 15 min
		{38000, 40, "57 min"},   // 57 min
		{40000, 40, "1 hr"},     // 60 min
		{100000, 40, "3 hr"},    // 2.5 hr rounds half away from zero
		{10000, 0, "15 min"},    // falls back to the default speed
		{10000, 20, "30 min"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, EstimateLabel(c.meters, c.speed), "meters=%v speed=%v", c.meters, c.speed)
	}
}

func TestFormatLabelRoundsIntoHours(t *testing.T) {
	assert.Equal(t, "1 hr", FormatLabel(59*time.Minute+40*time.Second))
	assert.Equal(t, "20 min", FormatLabel(20*time.Minute))
	assert.Equal(t, "1 min", FormatLabel(31*time.Second))
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 15*time.Minute, EstimateDuration(10000, 40))
	assert.Equal(t, time.Duration(0), EstimateDuration(0, 40))
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }
	a, b := models.GeoPoint{Lat: 1, Lon: 2}, models.GeoPoint{Lat: 3, Lon: 4}

	c.Set(a, b, 42)
	v, ok := c.Get(a, b)
	require.True(t, ok)
	assert.Equal(t, 42.0, v)

	_, ok = c.Get(b, a)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(a, b)
	assert.False(t, ok)
}

func TestOSRMClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/route/v1/driving/73.181200,22.307200;") {
			w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
			return
		}
		w.Write([]byte(`{"code":"Ok","routes":[{"duration":312.5}]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL)
	secs, err := c.EstimateSeconds(context.Background(), models.GeoPoint{Lat: 22.3072, Lon: 73.1812}, models.GeoPoint{Lat: 22.2928, Lon: 73.2081})
	require.NoError(t, err)
	assert.Equal(t, 312.5, secs)

	_, err = c.EstimateSeconds(context.Background(), models.GeoPoint{}, models.GeoPoint{})
	assert.Error(t, err)
}
