package lock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialTokens() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tok-%d", n)
	}
}

func TestRedis_Acquire(t *testing.T) {
	ctx := context.Background()
	ttl := 10 * time.Second

	t.Run("sorted acquisition and reverse release", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		l := NewRedis(client, time.Second, ttl, WithTokenSource(sequentialTokens()))

		mock.ExpectSetNX("lock:account:a", "tok-1", ttl).SetVal(true)
		mock.ExpectSetNX("lock:account:b", "tok-2", ttl).SetVal(true)

		release, err := l.Acquire(ctx, AccountKey("b"), AccountKey("a"))
		require.NoError(t, err)

		mock.ExpectEval(releaseScript, []string{"lock:account:b"}, "tok-2").SetVal(int64(1))
		mock.ExpectEval(releaseScript, []string{"lock:account:a"}, "tok-1").SetVal(int64(1))
		release()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries until the key is free", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		l := NewRedis(client, time.Second, ttl,
			WithTokenSource(sequentialTokens()), WithRetryInterval(time.Millisecond))

		mock.ExpectSetNX("lock:loan:1", "tok-1", ttl).SetVal(false)
		mock.ExpectSetNX("lock:loan:1", "tok-1", ttl).SetVal(true)

		release, err := l.Acquire(ctx, LoanKey("1"))
		require.NoError(t, err)

		mock.ExpectEval(releaseScript, []string{"lock:loan:1"}, "tok-1").SetVal(int64(0))
		release()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("times out while held elsewhere", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		l := NewRedis(client, 20*time.Millisecond, ttl,
			WithTokenSource(sequentialTokens()), WithRetryInterval(time.Second))

		mock.ExpectSetNX("lock:loan:1", "tok-1", ttl).SetVal(false)

		_, err := l.Acquire(ctx, LoanKey("1"))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure releases what was taken", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		l := NewRedis(client, time.Second, ttl, WithTokenSource(sequentialTokens()))

		down := errors.New("connection refused")
		mock.ExpectSetNX("lock:account:a", "tok-1", ttl).SetVal(true)
		mock.ExpectSetNX("lock:loan:9", "tok-2", ttl).SetErr(down)
		mock.ExpectEval(releaseScript, []string{"lock:account:a"}, "tok-1").SetVal(int64(1))

		_, err := l.Acquire(ctx, LoanKey("9"), AccountKey("a"))
		assert.ErrorIs(t, err, down)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
