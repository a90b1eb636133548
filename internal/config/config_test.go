package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 40.0, cfg.AvgSpeedKmh)
	assert.Equal(t, 50000.0, cfg.MaxDistanceMeters)
	assert.Equal(t, 5, cfg.MaxResults)
	assert.Equal(t, 20*time.Minute, cfg.TrackingDuration)
	assert.False(t, cfg.DurationFromDistance)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("TRACKING_DURATION", "90s")
	t.Setenv("TRACKING_DURATION_FROM_DISTANCE", "TRUE")
	t.Setenv("MATCHER_MAX_RESULTS", "10")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.TrackingDuration)
	assert.True(t, cfg.DurationFromDistance)
	assert.Equal(t, 10, cfg.MaxResults)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("TRACKING_INTERVAL", "soon")
	t.Setenv("MATCHER_AVG_SPEED_KMH", "-3")
	t.Setenv("MATCHER_MAX_RESULTS", "x")

	_, err := LoadServerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACKING_INTERVAL")
	assert.Contains(t, err.Error(), "MATCHER_AVG_SPEED_KMH must be > 0")
	assert.Contains(t, err.Error(), "MATCHER_MAX_RESULTS")
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092")
	t.Setenv("REDIS_ATTEMPTS", "0")

	cfg, err := LoadConsumerConfig()
	require.Error(t, err)
	assert.Equal(t, []string{"b1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "provider-locations", cfg.KafkaTopic)
}
