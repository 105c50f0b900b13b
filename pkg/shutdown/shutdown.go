package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/dreamina/pkg/logging"
)

// SignalContext returns a context cancelled on SIGINT or SIGTERM. Long waits
// in the CLI are bound to it so Ctrl-C stops polling promptly.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Manager runs registered cleanup hooks in reverse order of registration.
type Manager struct {
	hooks   []hook
	mu      sync.Mutex
	timeout time.Duration
	logger  *logging.Logger
	once    sync.Once
}

type hook struct {
	name string
	fn   func(context.Context) error
}

func New(timeout time.Duration, logger *logging.Logger) *Manager {
	return &Manager{timeout: timeout, logger: logging.OrDiscard(logger)}
}

// Register adds a named hook.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Shutdown runs every hook once, LIFO, within the manager's timeout. It
// returns the first hook error.
func (m *Manager) Shutdown() error {
	var first error
	m.once.Do(func() {
		m.mu.Lock()
		hooks := append([]hook(nil), m.hooks...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.fn(ctx); err != nil {
				m.logger.Error().Err(err).Str("hook", h.name).Msg("shutdown hook failed")
				if first == nil {
					first = fmt.Errorf("%s: %w", h.name, err)
				}
				continue
			}
			m.logger.Debug().Str("hook", h.name).Msg("shutdown hook done")
		}
		m.logger.Debug().Msg("graceful shutdown complete")
	})
	return first
}

// WaitWithContext blocks until ctx is done, then runs Shutdown.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	<-ctx.Done()
	m.logger.Info().Msg("initiating graceful shutdown")
	return m.Shutdown()
}

// StopHTTPServer adapts an http.Server-like value to a hook.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// CloseResource adapts an io.Closer to a hook.
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
