// Package lock serializes mutations of one account or loan across concurrent requests.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrTimeout is returned when the keys could not all be taken within the acquisition
// timeout. Nothing is held when it is returned.
var ErrTimeout = errors.New("lock: acquisition timed out")

// DefaultTimeout bounds lock acquisition when no timeout is configured
const DefaultTimeout = 5 * time.Second

type Locker interface {
	// Acquire takes every key in ascending order and returns a release func that frees
	// them all. Duplicate keys are taken once.
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

func AccountKey(id string) string { return "account:" + id }

func LoanKey(id string) string { return "loan:" + id }

type acquireFunc func(ctx context.Context, key string) (func(), error)

func normalize(keys []string) []string {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

// acquireAll takes keys one by one under a single deadline, unwinding on failure.
func acquireAll(ctx context.Context, timeout time.Duration, keys []string, one acquireFunc) (func(), error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	held := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, key := range normalize(keys) {
		release, err := one(ctx, key)
		if err != nil {
			releaseAll()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			if errors.Is(err, context.Canceled) {
				// caller went away while waiting; nothing is held
				return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			return nil, err
		}
		held = append(held, release)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
