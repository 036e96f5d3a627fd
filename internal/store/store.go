// Package store persists assigned schedules together with their next due
// instant. Two backends are provided: a local bbolt file for a single node and
// Redis for nodes sharing one schedule set.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doughall/recurd/internal/recurrence"
)

// Backend names accepted by Open.
const (
	BackendBolt  = "bolt"
	BackendRedis = "redis"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Record is one task's schedule and its position in the occurrence sequence.
type Record struct {
	TaskID    string              `json:"task_id"`
	Schedule  recurrence.Schedule `json:"schedule"`
	NextDueAt time.Time           `json:"next_due_at"`
	LastDueAt time.Time           `json:"last_due_at,omitzero"`
	Finished  bool                `json:"finished"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Store holds schedule records. Get returns (nil, nil) for an unknown task.
// Due returns unfinished records whose NextDueAt is at or before now, oldest
// first. Count reports the number of stored records without decoding them.
type Store interface {
	Save(ctx context.Context, r *Record) error
	Delete(ctx context.Context, taskID string) error
	Get(ctx context.Context, taskID string) (*Record, error)
	Due(ctx context.Context, now time.Time) ([]*Record, error)
	All(ctx context.Context) ([]*Record, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	BoltPath  string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendBolt, "":
		return OpenBolt(opts.BoltPath)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.KeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func isDue(r *Record, now time.Time) bool {
	return !r.Finished && !r.NextDueAt.After(now)
}
