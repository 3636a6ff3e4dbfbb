package bitalloc //nolint:testpackage // it's OK to be just bitalloc

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseLogsStatsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := New(64, WithLogger(logger))
	for range 3 {
		_, ok := a.AllocBit()
		require.True(t, ok)
	}
	require.NoError(t, a.ClearBit(1))

	require.NoError(t, a.Close())
	out := buf.String()
	assert.Contains(t, out, `"msg":"allocator statistics"`)
	assert.Contains(t, out, `"allocs":3`)
	assert.Contains(t, out, `"clears":1`)

	buf.Reset()
	require.NoError(t, a.Close())
	assert.Empty(t, buf.String())

	// Still usable after Close
	idx, ok := a.AllocBit()
	require.True(t, ok)
	assert.Equal(t, uint64(1), idx)
}

func TestLogHintMiss(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := New(256, WithLogger(logger))
	h := a.hint.Load()
	a.retreatHint(0)
	a.advanceHint(h, 2)

	assert.Contains(t, buf.String(), "search hint update lost")
	assert.Contains(t, buf.String(), "word=2")
}

func TestLogRetry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := New(64, WithLogger(logger))
	a.retried(OpClear, 0, 1)

	assert.Contains(t, buf.String(), "compare-and-swap race, retrying")
	assert.Contains(t, buf.String(), "op=clear")
	assert.Equal(t, uint64(1), a.Stats().Retries)
}

func TestNilLoggerDisablesLogging(t *testing.T) {
	a := New(64, WithLogger(nil))
	require.NotNil(t, a.logger)
	assert.NoError(t, a.Close())
}

// blockingHandler parks every Handle call until release is closed
type blockingHandler struct {
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *blockingHandler) Handle(context.Context, slog.Record) error {
	h.entered <- struct{}{}
	<-h.release
	return nil
}

func (h *blockingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *blockingHandler) WithGroup(string) slog.Handler      { return h }

// TestRetryDoesNotWaitOnLogging ensures a retrying caller never waits for
// another caller's log write
func TestRetryDoesNotWaitOnLogging(t *testing.T) {
	h := &blockingHandler{entered: make(chan struct{}, 1), release: make(chan struct{})}
	a := New(64, WithLogger(NewLogger(h)))

	first := make(chan struct{})
	go func() {
		defer close(first)
		a.retried(OpAlloc, 0, 1)
	}()
	<-h.entered

	second := make(chan struct{})
	go func() {
		defer close(second)
		a.retried(OpClear, 0, 1)
	}()

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Error("retrying caller waited on another caller's log write")
	}

	close(h.release)
	<-first
	<-second
	assert.Equal(t, uint64(2), a.Stats().Retries)
}

func TestRetryLoggingDisabledBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a := New(64, WithLogger(logger))
	a.retried(OpAlloc, 0, 1)

	assert.Empty(t, buf.String())
	assert.False(t, a.logging.Load())
}
