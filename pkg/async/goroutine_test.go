package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/workbench/pkg/observability"
)

// lockedBuffer is written from the background goroutine and read by the test
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background task did not finish")
	}
}

func TestGo_RunsTask(t *testing.T) {
	done := make(chan struct{})

	Go(context.Background(), nil, 0, "test task", func(ctx context.Context) error {
		close(done)
		return nil
	})

	waitFor(t, done)
}

func TestGo_LogsError(t *testing.T) {
	out := &lockedBuffer{}
	logger := observability.NewLogger(observability.InfoLevel, out)
	done := make(chan struct{})

	Go(context.Background(), logger, 0, "pool stats", func(ctx context.Context) error {
		defer close(done)
		return errors.New("connection refused")
	})

	waitFor(t, done)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "connection refused")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "pool stats")
}

func TestGo_RecoversPanic(t *testing.T) {
	out := &lockedBuffer{}
	logger := observability.NewLogger(observability.InfoLevel, out)

	Go(context.Background(), logger, 0, "panicky", func(ctx context.Context) error {
		panic("boom")
	})

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "PANIC recovered")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "boom")
}

func TestGo_Timeout(t *testing.T) {
	done := make(chan error, 1)

	Go(context.Background(), nil, 20*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout was not applied")
	}
}

func TestGo_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	Go(ctx, nil, 0, "watcher", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	})

	cancel()
	waitFor(t, done)
}

func TestRun_ReturnsError(t *testing.T) {
	want := errors.New("list failed")

	err := Run(context.Background(), nil, 0, "sweep", func(ctx context.Context) error {
		return want
	})

	assert.ErrorIs(t, err, want)
}

func TestRun_PanicBecomesError(t *testing.T) {
	var out bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &out)

	err := Run(context.Background(), logger, 0, "sweep", func(ctx context.Context) error {
		panic("nil map")
	})

	require.Error(t, err)
	assert.Equal(t, "panic: nil map", err.Error())
	assert.Contains(t, out.String(), "PANIC recovered")
	assert.Contains(t, out.String(), "sweep")
}

func TestRun_AppliesTimeout(t *testing.T) {
	err := Run(context.Background(), nil, 10*time.Millisecond, "sweep", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, time.Second)
		return nil
	})

	assert.NoError(t, err)
}
