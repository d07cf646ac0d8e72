package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisRegistry) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	registry := NewRedisRegistry(client, logger, 5*time.Minute)

	return mr, client, registry
}

func TestRedisRegistry_Register(t *testing.T) {
	mr, client, registry := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	p := &Pipeline{
		ID:         "test-pipeline-1",
		Detector:   "luminance",
		Source:     "pattern",
		Status:     StatusRunning,
		Resolution: "640x480",
		FrameRate:  30,
		CreatedAt:  time.Now(),
	}

	// Test successful registration
	err := registry.Register(ctx, p)
	assert.NoError(t, err)

	// Verify in Redis
	key := "visionpipe:pipelines:test-pipeline-1"
	exists, err := client.Exists(ctx, key).Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	// Re-registering should succeed as an update that preserves CreatedAt
	originalCreatedAt := p.CreatedAt
	time.Sleep(1 * time.Millisecond)
	err = registry.Register(ctx, p)
	assert.NoError(t, err)

	updated, err := registry.Get(ctx, p.ID)
	assert.NoError(t, err)
	assert.Equal(t, originalCreatedAt.Unix(), updated.CreatedAt.Unix())
	assert.True(t, updated.LastHeartbeat.After(originalCreatedAt))
}

func TestRedisRegistry_Get(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()

	p := &Pipeline{
		ID:         "test-pipeline-2",
		Detector:   "motion",
		Source:     "pattern",
		Status:     StatusRunning,
		Resolution: "1280x720",
		FrameRate:  15,
	}

	err := registry.Register(ctx, p)
	require.NoError(t, err)

	retrieved, err := registry.Get(ctx, "test-pipeline-2")
	assert.NoError(t, err)
	assert.Equal(t, p.ID, retrieved.ID)
	assert.Equal(t, p.Detector, retrieved.Detector)
	assert.Equal(t, p.Status, retrieved.Status)
	assert.Equal(t, p.Resolution, retrieved.Resolution)

	_, err = registry.Get(ctx, "non-existent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRedisRegistry_UpdateStatus(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()

	p := &Pipeline{
		ID:       "test-pipeline-3",
		Detector: "luminance",
		Status:   StatusStarting,
	}

	err := registry.Register(ctx, p)
	require.NoError(t, err)

	err = registry.UpdateStatus(ctx, p.ID, StatusRunning)
	assert.NoError(t, err)

	retrieved, err := registry.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, retrieved.Status)
}

func TestRedisRegistry_Unregister(t *testing.T) {
	mr, client, registry := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	p := &Pipeline{
		ID:       "test-pipeline-4",
		Detector: "motion",
		Status:   StatusRunning,
	}

	err := registry.Register(ctx, p)
	require.NoError(t, err)

	err = registry.Unregister(ctx, p.ID)
	assert.NoError(t, err)

	key := "visionpipe:pipelines:test-pipeline-4"
	exists, err := client.Exists(ctx, key).Result()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	err = registry.Unregister(ctx, "non-existent")
	assert.Error(t, err)
}

func TestRedisRegistry_List(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()

	pipelines := []*Pipeline{
		{
			ID:       "test-pipeline-5",
			Detector: "luminance",
			Status:   StatusRunning,
		},
		{
			ID:       "test-pipeline-6",
			Detector: "motion",
			Status:   StatusRunning,
		},
		{
			ID:       "test-pipeline-7",
			Detector: "luminance",
			Status:   StatusStopped,
		},
	}

	for _, p := range pipelines {
		err := registry.Register(ctx, p)
		require.NoError(t, err)
	}

	list, err := registry.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, list, 3)

	byID := make(map[string]*Pipeline)
	for _, p := range list {
		byID[p.ID] = p
	}

	for _, expected := range pipelines {
		actual, ok := byID[expected.ID]
		assert.True(t, ok)
		assert.Equal(t, expected.Detector, actual.Detector)
		assert.Equal(t, expected.Status, actual.Status)
	}
}

func TestRedisRegistry_UpdateHeartbeat(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()

	p := &Pipeline{
		ID:       "test-pipeline-8",
		Detector: "luminance",
		Status:   StatusRunning,
	}

	err := registry.Register(ctx, p)
	require.NoError(t, err)

	retrieved1, err := registry.Get(ctx, p.ID)
	require.NoError(t, err)
	initialHeartbeat := retrieved1.LastHeartbeat

	time.Sleep(100 * time.Millisecond)

	err = registry.UpdateHeartbeat(ctx, p.ID)
	assert.NoError(t, err)

	retrieved2, err := registry.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, retrieved2.LastHeartbeat.After(initialHeartbeat))
}

func TestRedisRegistry_UpdateStats(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()

	p := &Pipeline{
		ID:       "test-pipeline-stats",
		Detector: "motion",
		Status:   StatusRunning,
	}

	err := registry.Register(ctx, p)
	require.NoError(t, err)

	stats := &Stats{
		FramesSubmitted:      1000,
		FramesDropped:        120,
		FramesProcessed:      880,
		DetectorErrors:       3,
		FPS:                  28,
		AvgFrameLatencyMs:    42,
		AvgDetectorLatencyMs: 35,
	}

	err = registry.UpdateStats(ctx, p.ID, stats)
	assert.NoError(t, err)

	retrieved, err := registry.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, stats.FramesSubmitted, retrieved.FramesSubmitted)
	assert.Equal(t, stats.FramesDropped, retrieved.FramesDropped)
	assert.Equal(t, stats.FramesProcessed, retrieved.FramesProcessed)
	assert.Equal(t, stats.DetectorErrors, retrieved.DetectorErrors)
	assert.Equal(t, stats.FPS, retrieved.FPS)
	assert.Equal(t, stats.AvgFrameLatencyMs, retrieved.AvgFrameLatencyMs)

	err = registry.UpdateStats(ctx, "non-existent", stats)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRedisRegistry_Update(t *testing.T) {
	mr, _, registry := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()

	original := &Pipeline{
		ID:         "test-pipeline-update",
		Detector:   "luminance",
		Status:     StatusRunning,
		Resolution: "640x480",
		FrameRate:  30,
	}

	err := registry.Register(ctx, original)
	require.NoError(t, err)

	updated := &Pipeline{
		ID:              "test-pipeline-update",
		Detector:        "luminance",
		Status:          StatusRunning,
		Resolution:      "1920x1080", // Changed
		FrameRate:       60,          // Changed
		FramesSubmitted: 500,
		FramesProcessed: 480,
	}

	err = registry.Update(ctx, updated)
	assert.NoError(t, err)

	retrieved, err := registry.Get(ctx, updated.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Resolution, retrieved.Resolution)
	assert.Equal(t, updated.FrameRate, retrieved.FrameRate)
	assert.Equal(t, updated.FramesSubmitted, retrieved.FramesSubmitted)

	// Update uses the XX flag, so it never creates new records
	err = registry.Update(ctx, &Pipeline{
		ID:       "non-existent",
		Detector: "motion",
		Status:   StatusRunning,
	})
	assert.Error(t, err)
}

func TestGeneratePipelineID(t *testing.T) {
	id1 := GeneratePipelineID("luminance")
	id2 := GeneratePipelineID("luminance")

	assert.NotEqual(t, id1, id2)
	assert.Contains(t, id1, "luminance_")
}

func TestStatsFromSnapshot(t *testing.T) {
	s := StatsFromSnapshot(snapshotFixture())
	assert.Equal(t, uint64(10), s.FramesSubmitted)
	assert.Equal(t, uint64(2), s.FramesDropped)
	assert.Equal(t, uint64(8), s.FramesProcessed)
	assert.Equal(t, 7, s.FPS)
	assert.Equal(t, int64(40), s.AvgFrameLatencyMs)
	assert.Equal(t, int64(30), s.AvgDetectorLatencyMs)
}
