package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "call:record:"
	recordTTL       = 7 * 24 * time.Hour

	// updateRetries bounds optimistic retries when concurrent writers touch
	// the same record.
	updateRetries = 5
)

// RedisStore persists call records in Redis. Per-record atomicity comes from
// WATCH-based optimistic transactions, so independent calls never contend.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a call record store backed by Redis.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ Store = (*RedisStore)(nil)

func recordKey(id string) string {
	return recordKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("calls: record id required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("calls: marshal record: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, recordKey(rec.ID), data, recordTTL).Result()
	if err != nil {
		return fmt.Errorf("calls: create record: %w", err)
	}
	if !ok {
		return fmt.Errorf("calls: record %s already exists", rec.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.rdb.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("calls: get record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("calls: unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*Record) error) (*Record, error) {
	key := recordKey(id)
	var updated *Record
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("calls: record %s not found", id)
			}
			return fmt.Errorf("calls: get record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("calls: unmarshal record: %w", err)
		}
		if err := mutate(&rec); err != nil {
			return err
		}
		out, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("calls: marshal record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, recordTTL)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &rec
		return nil
	}

	var err error
	for i := 0; i < updateRetries; i++ {
		err = s.rdb.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if err != redis.TxFailedErr {
			return nil, err
		}
	}
	return nil, fmt.Errorf("calls: record %s update contention: %w", id, err)
}
