package shutdown

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_ReverseOrderOnce(t *testing.T) {
	h := NewHandler(nil)

	var order []string
	h.Register("logger", func() error { order = append(order, "logger"); return nil })
	h.Register("index", func() error { order = append(order, "index"); return errors.New("locked") })
	h.Register("discovery-log", func() error { order = append(order, "discovery-log"); return nil })

	err := h.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index: locked")
	assert.Equal(t, []string{"discovery-log", "index", "logger"}, order)

	assert.Equal(t, err, h.Shutdown())
	assert.Len(t, order, 3, "hooks run once")

	select {
	case <-h.Done():
	default:
		t.Fatal("Done should be closed after Shutdown")
	}
}

func TestWaitForSignal_ContextDone(t *testing.T) {
	h := NewHandler(nil)
	called := false
	h.Register("x", func() error { called = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, h.WaitForSignal(ctx))
	assert.False(t, called)
}

func TestWaitForSignal_FlushesOnSignal(t *testing.T) {
	h := NewHandler(nil)
	registered := make(chan chan<- os.Signal, 1)
	h.notify = func(c chan<- os.Signal) { registered <- c }

	flushed := make(chan struct{})
	h.Register("flush", func() error { close(flushed); return nil })

	got := make(chan os.Signal, 1)
	go func() {
		got <- h.WaitForSignal(context.Background())
	}()

	(<-registered) <- syscall.SIGTERM

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("hooks did not run on SIGTERM")
	}
	assert.Equal(t, syscall.SIGTERM, <-got)
}

func TestShutdownWithTimeout(t *testing.T) {
	h := NewHandler(nil)
	h.Register("slow", func() error { time.Sleep(200 * time.Millisecond); return nil })

	err := h.ShutdownWithTimeout(20 * time.Millisecond)
	assert.Error(t, err)
}
