package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "recurd"

// RedisStore keeps each record in a hash and indexes unfinished records in a
// sorted set scored by NextDueAt in Unix milliseconds.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects to addr and verifies the server answers.
func OpenRedis(ctx context.Context, addr string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStore(rdb, prefix), nil
}

// NewRedisStore wraps an existing client. Keys are namespaced by prefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) taskKey(id string) string { return s.prefix + ":task:" + id }
func (s *RedisStore) dueKey() string           { return s.prefix + ":due" }
func (s *RedisStore) tasksKey() string         { return s.prefix + ":tasks" }

// Save writes the record and updates the due index atomically.
func (s *RedisStore) Save(ctx context.Context, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.taskKey(r.TaskID), map[string]any{
			"record":      data,
			"next_due_at": r.NextDueAt.UnixMilli(),
		})
		pipe.SAdd(ctx, s.tasksKey(), r.TaskID)
		if r.Finished {
			pipe.ZRem(ctx, s.dueKey(), r.TaskID)
		} else {
			pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: float64(r.NextDueAt.UnixMilli()), Member: r.TaskID})
		}
		return nil
	})
	return err
}

// Delete removes the record and its index entries.
func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.taskKey(taskID))
		pipe.ZRem(ctx, s.dueKey(), taskID)
		pipe.SRem(ctx, s.tasksKey(), taskID)
		return nil
	})
	return err
}

// Get retrieves a record by task ID.
func (s *RedisStore) Get(ctx context.Context, taskID string) (*Record, error) {
	data, err := s.rdb.HGet(ctx, s.taskKey(taskID), "record").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", taskID, err)
	}
	return &r, nil
}

// Due reads the index up to now and loads the matching records.
func (s *RedisStore) Due(ctx context.Context, now time.Time) ([]*Record, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.dueKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids, func(r *Record) bool { return isDue(r, now) })
}

// All returns every stored record.
func (s *RedisStore) All(ctx context.Context) ([]*Record, error) {
	ids, err := s.rdb.SMembers(ctx, s.tasksKey()).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids, func(*Record) bool { return true })
}

// Count returns the size of the task set.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.tasksKey()).Result()
	return int(n), err
}

func (s *RedisStore) load(ctx context.Context, ids []string, keep func(*Record) bool) ([]*Record, error) {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil && keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
