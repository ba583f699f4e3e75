package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
)

type hook struct {
	name string
	fn   func() error
}

// Handler runs registered close hooks once, in reverse registration order,
// either on a signal or when the caller finishes normally.
type Handler struct {
	mu     sync.Mutex
	hooks  []hook
	once   sync.Once
	err    error
	done   chan struct{}
	logger *logger.Logger

	notify func(c chan<- os.Signal)
}

// NewHandler creates a new graceful shutdown handler
func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		done:   make(chan struct{}),
		logger: log.WithComponent("shutdown"),
		notify: func(c chan<- os.Signal) {
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		},
	}
}

// Register adds a hook. Hooks registered later run first.
func (h *Handler) Register(name string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Shutdown runs every hook exactly once and returns their joined errors.
// Later calls return the first call's result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		h.mu.Lock()
		hooks := h.hooks
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(); err != nil {
				h.logger.Errorw("Error during shutdown", "hook", hooks[i].name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
			}
		}
		h.err = errors.Join(errs...)
		close(h.done)
	})
	return h.err
}

// Done returns a channel that's closed when shutdown is complete
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// WaitForSignal blocks until SIGINT/SIGTERM or ctx is done. On a signal it
// runs Shutdown and returns the signal; on ctx it returns nil without
// shutting down.
func (h *Handler) WaitForSignal(ctx context.Context) os.Signal {
	sigChan := make(chan os.Signal, 1)
	h.notify(sigChan)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		h.logger.Infow("Received signal, flushing before exit", "signal", sig.String())
		_ = h.Shutdown()
		return sig
	case <-ctx.Done():
		return nil
	}
}

// ShutdownWithTimeout executes shutdown with a timeout
func (h *Handler) ShutdownWithTimeout(timeout time.Duration) error {
	done := make(chan error, 1)

	go func() {
		done <- h.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
