package state

import (
	"context"
	"errors"
	"time"
)

// Store is the key/value store backing the order journal and cycle snapshots.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Pruner removes entries under a key prefix that were last written before cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int64, error)
}

// PruneExpired drops prefix entries older than retention. A non-positive
// retention keeps everything.
func PruneExpired(ctx context.Context, p Pruner, prefix string, retention time.Duration, now time.Time) (int64, error) {
	if p == nil || retention <= 0 {
		return 0, nil
	}
	if prefix == "" {
		return 0, errors.New("prune prefix is required")
	}
	return p.DeleteOlderThan(ctx, prefix, now.Add(-retention))
}
