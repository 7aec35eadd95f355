package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kiranshivaraju/imgjobs/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID string) (models.JobStatus, bool, error)
	SetJobOutcome(ctx context.Context, outcome *JobOutcome, ttl time.Duration) error
	GetJobOutcome(ctx context.Context, jobID string) (*JobOutcome, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// JobOutcome is the cached terminal state of a job.
type JobOutcome struct {
	JobID       string           `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	ResultURL   string           `json:"result_url,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(jobID), string(status), ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID string) (models.JobStatus, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return models.JobStatus(val), true, nil
}

// SetJobOutcome stores a terminal outcome and the matching status in one transaction.
func (c *RedisCache) SetJobOutcome(ctx context.Context, outcome *JobOutcome, ttl time.Duration) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, JobOutcomeKey(outcome.JobID), payload, ttl)
	pipe.Set(ctx, JobStatusKey(outcome.JobID), string(outcome.Status), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) GetJobOutcome(ctx context.Context, jobID string) (*JobOutcome, bool, error) {
	data, found, err := c.Get(ctx, JobOutcomeKey(jobID))
	if err != nil || !found {
		return nil, false, err
	}
	var out JobOutcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Nop is a Cache that stores nothing. It is used when no Redis URL is configured.
type Nop struct{}

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Delete(context.Context, string) error                     { return nil }
func (Nop) Ping(context.Context) error                               { return nil }
func (Nop) SetJobStatus(context.Context, string, models.JobStatus, time.Duration) error {
	return nil
}
func (Nop) GetJobStatus(context.Context, string) (models.JobStatus, bool, error) {
	return "", false, nil
}
func (Nop) SetJobOutcome(context.Context, *JobOutcome, time.Duration) error { return nil }
func (Nop) GetJobOutcome(context.Context, string) (*JobOutcome, bool, error) {
	return nil, false, nil
}
func (Nop) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) { return 0, nil }

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = Nop{}
)
