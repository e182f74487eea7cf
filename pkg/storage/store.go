// Package storage caches computed forecast and explanation responses.
//
// A forecast is a pure function of the normalized request and the loaded
// model, so a response computed once can be served again until the model
// changes. Responses are stored as Snapshots addressed by a kind ("predict"
// or "explain") and the request key.
//
// Two implementations are provided:
//
//   - MemoryStore: a map guarded by a RWMutex with optional per-entry TTL.
//     Suited to a single replica and to tests.
//
//   - RedisStore: JSON-encoded snapshots in Redis with a server-side TTL.
//     Shared by every replica using the same Redis database.
//
// Callers treat the store as a cache. A failed Get or Put is not fatal to a
// request.
package storage

import (
	"context"
	"time"
)

// Snapshot is one cached response body.
type Snapshot struct {
	Key         string    `json:"key"`
	Kind        string    `json:"kind"`
	GeneratedAt time.Time `json:"generated_at"`
	Body        []byte    `json:"body"`
}

// Store persists snapshots.
//
// Put replaces any snapshot with the same kind and key. Get reports
// found=false, with a nil error, when the key is missing or has expired.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, kind, key string) (Snapshot, bool, error)
}

func storeKey(kind, key string) string {
	return kind + ":" + key
}
