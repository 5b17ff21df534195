package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session: key not found")

// Store holds transient per-browser state. Values expire after their TTL;
// nothing written here outlives it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Append adds value to the end of the list at key and refreshes its TTL.
	Append(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// List returns the list at key in insertion order; a missing key yields
	// an empty list.
	List(ctx context.Context, key string) ([][]byte, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
