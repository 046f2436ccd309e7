package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/pkg/utils"
)

// ErrRunNotFound is returned when no status exists for a run ID.
var ErrRunNotFound = errors.New("run not found")

// runTTL bounds how long finished run statuses stay queryable.
const runTTL = 7 * 24 * time.Hour

// RedisStore caches detail pages and tracks API-submitted runs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func detailKey(url string) string {
	return fmt.Sprintf("detail:%s", utils.HashURL(url))
}

func runKey(id string) string {
	return fmt.Sprintf("run:%s", id)
}

// GetDetail returns a cached detail page, if one has not expired.
func (s *RedisStore) GetDetail(ctx context.Context, url string) (domain.Detail, bool, error) {
	raw, err := s.client.Get(ctx, detailKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Detail{}, false, nil
	}
	if err != nil {
		return domain.Detail{}, false, err
	}
	var d domain.Detail
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.Detail{}, false, fmt.Errorf("decode cached detail: %w", err)
	}
	return d, true, nil
}

// PutDetail caches a parsed detail page for ttl.
func (s *RedisStore) PutDetail(ctx context.Context, url string, d domain.Detail, ttl time.Duration) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, detailKey(url), raw, ttl).Err()
}

func (s *RedisStore) SaveRun(ctx context.Context, run *domain.RunStatus) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, runKey(run.ID), raw, runTTL).Err()
}

func (s *RedisStore) GetRun(ctx context.Context, id string) (*domain.RunStatus, error) {
	raw, err := s.client.Get(ctx, runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var run domain.RunStatus
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}
