package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"emusync/models"
)

const (
	connectAttempts = 5
	connectDelay    = 500 * time.Millisecond
	connectMaxDelay = 5 * time.Second

	// Optimistic transactions only collide with other writers of the same job,
	// which are few, so retries are quick and bounded.
	txAttempts = 50
	txDelay    = 5 * time.Millisecond
	txMaxDelay = 100 * time.Millisecond
)

// RedisStore keeps records as JSON strings under the job id.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore connects to url and waits for the server to answer a ping.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	err = retry.Do(func() error {
		return client.Ping(ctx).Err()
	}, retry.Attempts(connectAttempts), retry.Delay(connectDelay), retry.MaxDelay(connectMaxDelay),
		retry.Context(ctx), retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Str("addr", opts.Addr).Msg("redis not ready, retrying")
		}))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	logger.Info().Str("addr", opts.Addr).Msg("job store connected to redis")
	return NewRedisStoreFromClient(client, ttl, logger), nil
}

func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisStore) Create(ctx context.Context, id string, rec models.DeviceSyncRecord) error {
	data, err := json.Marshal(cloneRecord(rec))
	if err != nil {
		return fmt.Errorf("encode job %s: %w", id, err)
	}
	if err := s.client.Set(ctx, id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.DeviceSyncRecord, error) {
	data, err := s.client.Get(ctx, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.DeviceSyncRecord{}, ErrNotFound
		}
		return models.DeviceSyncRecord{}, fmt.Errorf("load job %s: %w", id, err)
	}
	return decode(id, data)
}

// Update runs fn inside WATCH/MULTI and retries when another writer touched the key.
func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (models.DeviceSyncRecord, error) {
	var result models.DeviceSyncRecord

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		rec, err := decode(id, data)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		out, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, id, out, s.ttl)
			return nil
		})
		if err == nil {
			result = rec
		}
		return err
	}

	err := retry.Do(func() error {
		return s.client.Watch(ctx, txf, id)
	}, retry.Attempts(txAttempts), retry.Delay(txDelay), retry.MaxDelay(txMaxDelay),
		retry.Context(ctx), retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, redis.TxFailedErr)
		}))
	if err != nil {
		return models.DeviceSyncRecord{}, err
	}
	return result, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decode(id string, data []byte) (models.DeviceSyncRecord, error) {
	var rec models.DeviceSyncRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode job %s: %w", id, err)
	}
	return rec, nil
}
