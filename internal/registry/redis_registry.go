package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisRegistry implements Registry using Redis as the backend. Records
// carry a TTL so pipelines whose process dies without unregistering
// expire on their own; heartbeats and stats publishes refresh the TTL.
type RedisRegistry struct {
	client *redis.Client
	logger *logrus.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a new Redis-backed registry
func NewRedisRegistry(client *redis.Client, logger *logrus.Logger, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisRegistry{
		client: client,
		logger: logger,
		prefix: "visionpipe:pipelines:",
		ttl:    ttl,
	}
}

// Register adds a new pipeline to the registry
func (r *RedisRegistry) Register(ctx context.Context, p *Pipeline) error {
	// Check if the pipeline already exists to preserve CreatedAt
	key := r.prefix + p.ID
	existingData, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var existing Pipeline
		if err := json.Unmarshal(existingData, &existing); err == nil {
			p.CreatedAt = existing.CreatedAt
		}
	} else if err == redis.Nil {
		p.CreatedAt = time.Now()
		existingData = nil
	} else {
		return fmt.Errorf("failed to check existing pipeline: %w", err)
	}
	p.LastHeartbeat = time.Now()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline: %w", err)
	}

	if existingData == nil {
		// New pipeline: atomic SetNX + SAdd into the active set
		registerScript := redis.NewScript(`
			local key = KEYS[1]
			local active_key = KEYS[2]
			local data = ARGV[1]
			local ttl = tonumber(ARGV[2])
			local pipeline_id = ARGV[3]
			local ok = redis.call('SET', key, data, 'PX', ttl, 'NX')
			if not ok then
				return 0
			end
			redis.call('SADD', active_key, pipeline_id)
			return 1
		`)

		result, err := registerScript.Run(ctx, r.client,
			[]string{key, r.prefix + "active"},
			data, r.ttl.Milliseconds(), p.ID).Int()
		if err != nil {
			return fmt.Errorf("failed to register pipeline: %w", err)
		}
		if result == 0 {
			return fmt.Errorf("pipeline %s already exists", p.ID)
		}

		r.logger.WithFields(logrus.Fields{
			"pipeline_id": p.ID,
			"detector":    p.Detector,
			"source":      p.Source,
		}).Info("Pipeline registered")
	} else {
		// Existing pipeline: refresh record and TTL
		if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
			return fmt.Errorf("failed to update pipeline: %w", err)
		}

		r.logger.WithFields(logrus.Fields{
			"pipeline_id": p.ID,
		}).Debug("Pipeline updated")
	}

	return nil
}

// Unregister removes a pipeline from the registry
func (r *RedisRegistry) Unregister(ctx context.Context, pipelineID string) error {
	key := r.prefix + pipelineID

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to unregister pipeline: %w", err)
	}

	if deleted == 0 {
		return fmt.Errorf("pipeline %s not found", pipelineID)
	}

	if err := r.client.SRem(ctx, r.prefix+"active", pipelineID).Err(); err != nil {
		r.logger.Warnf("Failed to remove pipeline %s from active set: %v", pipelineID, err)
	}

	r.logger.WithField("pipeline_id", pipelineID).Info("Pipeline unregistered")

	return nil
}

// Get retrieves a pipeline by ID
func (r *RedisRegistry) Get(ctx context.Context, pipelineID string) (*Pipeline, error) {
	key := r.prefix + pipelineID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("pipeline %s not found", pipelineID)
		}
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}

	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline: %w", err)
	}

	return &p, nil
}

// List returns all active pipelines, pruning expired entries from the
// active set as a side effect.
func (r *RedisRegistry) List(ctx context.Context) ([]*Pipeline, error) {
	script := redis.NewScript(`
		local active_key = KEYS[1]
		local prefix = ARGV[1]
		local active = redis.call('SMEMBERS', active_key)
		local result = {}
		local to_remove = {}

		for i, id in ipairs(active) do
			local record = redis.call('GET', prefix .. id)
			if record then
				table.insert(result, record)
			else
				table.insert(to_remove, id)
			end
		end

		for i, id in ipairs(to_remove) do
			redis.call('SREM', active_key, id)
		end

		return result
	`)

	res, err := script.Run(ctx, r.client, []string{r.prefix + "active"}, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type from script")
	}

	pipelines := make([]*Pipeline, 0, len(values))
	for _, val := range values {
		data, ok := val.(string)
		if !ok {
			r.logger.Warn("Invalid data type in result")
			continue
		}

		var p Pipeline
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			r.logger.WithError(err).Warn("Failed to unmarshal pipeline")
			continue
		}

		pipelines = append(pipelines, &p)
	}

	return pipelines, nil
}

// ListPaginated returns a page of active pipelines using SSCAN.
func (r *RedisRegistry) ListPaginated(ctx context.Context, cursor uint64, count int64) ([]*Pipeline, uint64, error) {
	ids, nextCursor, err := r.client.SScan(ctx, r.prefix+"active", cursor, "*", count).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan pipelines: %w", err)
	}

	if len(ids) == 0 {
		return []*Pipeline{}, nextCursor, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.prefix + id
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}

	_, err = pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, 0, fmt.Errorf("failed to get pipelines: %w", err)
	}

	pipelines := make([]*Pipeline, 0, len(cmds))
	toRemove := make([]string, 0)

	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			toRemove = append(toRemove, ids[i])
			continue
		} else if err != nil {
			r.logger.WithError(err).Warnf("Failed to get pipeline %s", ids[i])
			continue
		}

		var p Pipeline
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			r.logger.WithError(err).Warnf("Failed to unmarshal pipeline %s", ids[i])
			continue
		}

		pipelines = append(pipelines, &p)
	}

	if len(toRemove) > 0 {
		toRemoveInterface := make([]interface{}, len(toRemove))
		for i, id := range toRemove {
			toRemoveInterface[i] = id
		}
		if err := r.client.SRem(ctx, r.prefix+"active", toRemoveInterface...).Err(); err != nil {
			r.logger.WithError(err).Warn("Failed to remove expired pipelines from active set")
		}
	}

	return pipelines, nextCursor, nil
}

// UpdateHeartbeat updates the heartbeat timestamp for a pipeline
func (r *RedisRegistry) UpdateHeartbeat(ctx context.Context, pipelineID string) error {
	key := r.prefix + pipelineID

	script := redis.NewScript(`
		local key = KEYS[1]
		local ttl = tonumber(ARGV[1])
		local now = ARGV[2]
		local data = redis.call('GET', key)
		if not data then
			return redis.error_reply("pipeline not found")
		end
		local record = cjson.decode(data)
		record.last_heartbeat = now
		local updated = cjson.encode(record)
		redis.call('SET', key, updated, 'PX', ttl)
		return "OK"
	`)

	ttlMs := r.ttl.Milliseconds()
	now := time.Now().Format(time.RFC3339Nano)

	_, err := script.Run(ctx, r.client, []string{key}, ttlMs, now).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("pipeline %s not found", pipelineID)
		}
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}

	return nil
}

// UpdateStatus updates the status of a pipeline
func (r *RedisRegistry) UpdateStatus(ctx context.Context, pipelineID string, status Status) error {
	key := r.prefix + pipelineID

	script := redis.NewScript(`
		local key = KEYS[1]
		local ttl = tonumber(ARGV[1])
		local status = ARGV[2]
		local now = ARGV[3]
		local data = redis.call('GET', key)
		if not data then
			return redis.error_reply("pipeline not found")
		end
		local record = cjson.decode(data)
		record.status = status
		record.last_heartbeat = now
		local updated = cjson.encode(record)
		redis.call('SET', key, updated, 'PX', ttl)
		return "OK"
	`)

	ttlMs := r.ttl.Milliseconds()
	now := time.Now().Format(time.RFC3339Nano)

	_, err := script.Run(ctx, r.client, []string{key}, ttlMs, string(status), now).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("pipeline %s not found", pipelineID)
		}
		return fmt.Errorf("failed to update status: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"pipeline_id": pipelineID,
		"status":      status,
	}).Debug("Pipeline status updated")

	return nil
}

// UpdateStats updates the statistics for a pipeline
func (r *RedisRegistry) UpdateStats(ctx context.Context, pipelineID string, stats *Stats) error {
	key := r.prefix + pipelineID

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Stats fields live at the top level of the record, not nested
	script := redis.NewScript(`
		local key = KEYS[1]
		local ttl = tonumber(ARGV[1])
		local stats_json = ARGV[2]
		local now = ARGV[3]
		local data = redis.call('GET', key)
		if not data then
			return redis.error_reply("pipeline not found")
		end
		local record = cjson.decode(data)
		local stats = cjson.decode(stats_json)
		record.frames_submitted = stats.FramesSubmitted
		record.frames_dropped = stats.FramesDropped
		record.frames_processed = stats.FramesProcessed
		record.detector_errors = stats.DetectorErrors
		record.fps = stats.FPS
		record.avg_frame_latency_ms = stats.AvgFrameLatencyMs
		record.avg_detector_latency_ms = stats.AvgDetectorLatencyMs
		record.last_heartbeat = now
		local updated = cjson.encode(record)
		redis.call('SET', key, updated, 'PX', ttl)
		return "OK"
	`)

	ttlMs := r.ttl.Milliseconds()
	now := time.Now().Format(time.RFC3339Nano)

	_, err = script.Run(ctx, r.client, []string{key}, ttlMs, string(statsJSON), now).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("pipeline %s not found", pipelineID)
		}
		return fmt.Errorf("failed to update stats: %w", err)
	}

	return nil
}

// Update updates an existing pipeline record in the registry
func (r *RedisRegistry) Update(ctx context.Context, p *Pipeline) error {
	if p == nil {
		return fmt.Errorf("pipeline cannot be nil")
	}

	key := r.prefix + p.ID

	p.LastHeartbeat = time.Now()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline: %w", err)
	}

	// XX flag: only update existing records, never resurrect expired ones
	ok, err := r.client.SetXX(ctx, key, data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update pipeline: %w", err)
	}
	if !ok {
		return fmt.Errorf("pipeline %s not found", p.ID)
	}

	r.logger.WithField("pipeline_id", p.ID).Debug("Pipeline updated")
	return nil
}

// Close closes the Redis client connection
func (r *RedisRegistry) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
