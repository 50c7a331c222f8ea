// Package lock serializes work on a single key, in process or across
// instances through Redis.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context expired or the retry budget ran out.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive leases keyed by an arbitrary string. The returned
// release function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Driver names a Locker implementation.
type Driver string

const (
	DriverLocal Driver = "local"
	DriverRedis Driver = "redis"
)
