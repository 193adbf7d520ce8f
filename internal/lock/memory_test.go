package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Acquire(t *testing.T) {
	ctx := context.Background()

	t.Run("release frees every key", func(t *testing.T) {
		l := NewMemory(time.Second)
		release, err := l.Acquire(ctx, AccountKey("b"), AccountKey("a"), AccountKey("a"))
		require.NoError(t, err)
		assert.Equal(t, 2, l.held())

		release()
		release()
		assert.Equal(t, 0, l.held())
	})

	t.Run("second caller waits for the first", func(t *testing.T) {
		l := NewMemory(time.Second)
		release, err := l.Acquire(ctx, LoanKey("1"))
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			r, err := l.Acquire(ctx, LoanKey("1"))
			if err == nil {
				close(acquired)
				r()
			}
		}()

		select {
		case <-acquired:
			t.Fatal("lock granted while still held")
		case <-time.After(30 * time.Millisecond):
		}

		release()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("waiter never admitted")
		}
	})

	t.Run("timeout holds nothing", func(t *testing.T) {
		l := NewMemory(20 * time.Millisecond)
		release, err := l.Acquire(ctx, AccountKey("b"))
		require.NoError(t, err)
		defer release()

		_, err = l.Acquire(ctx, AccountKey("a"), AccountKey("b"))
		assert.ErrorIs(t, err, ErrTimeout)

		// "a" was taken first and must have been given back
		r, err := l.Acquire(ctx, AccountKey("a"))
		require.NoError(t, err)
		r()
	})

	t.Run("cancelled caller", func(t *testing.T) {
		l := NewMemory(time.Second)
		release, err := l.Acquire(ctx, AccountKey("a"))
		require.NoError(t, err)
		defer release()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = l.Acquire(cctx, AccountKey("a"))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("caller cancelled while waiting", func(t *testing.T) {
		l := NewMemory(time.Second)
		release, err := l.Acquire(ctx, AccountKey("b"))
		require.NoError(t, err)
		defer release()

		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err = l.Acquire(cctx, AccountKey("b"), AccountKey("a"))
		assert.ErrorIs(t, err, ErrTimeout)

		// "a" was taken first and must have been given back
		r, err := l.Acquire(ctx, AccountKey("a"))
		require.NoError(t, err)
		r()
	})
}

func TestMemory_MutualExclusion(t *testing.T) {
	l := NewMemory(5 * time.Second)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, AccountKey("shared"))
			if err != nil {
				t.Error(err)
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.held())
}

func TestMemory_OppositeOrderDoesNotDeadlock(t *testing.T) {
	l := NewMemory(2 * time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r, err := l.Acquire(ctx, AccountKey("x"), AccountKey("y"))
			if err != nil {
				errs <- err
				return
			}
			r()
		}()
		go func() {
			defer wg.Done()
			r, err := l.Acquire(ctx, AccountKey("y"), AccountKey("x"))
			if err != nil {
				errs <- err
				return
			}
			r()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
}
