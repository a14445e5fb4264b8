// Package shutdown coordinates graceful teardown of the service components.
package shutdown

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Manager collects teardown functions and runs them on SIGINT/SIGTERM.
// Functions run in reverse registration order, so components stop before
// their dependencies.
type Manager struct {
	mu      sync.Mutex
	funcs   []namedFunc
	timeout time.Duration
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a manager giving the whole teardown the given timeout.
func New(timeout time.Duration) *Manager {
	return &Manager{timeout: timeout}
}

// Register adds a named teardown function.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// Wait blocks until a termination signal arrives, then runs all registered
// teardown functions LIFO.
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("shutdown: received %v", sig)
	m.Shutdown()
}

// Shutdown runs all registered teardown functions immediately.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.funcs) - 1; i >= 0; i-- {
		nf := m.funcs[i]
		log.Printf("shutdown: stopping %s", nf.name)
		if err := nf.fn(ctx); err != nil {
			log.Printf("shutdown: %s: %v", nf.name, err)
		}
	}
	log.Println("shutdown: complete")
}

// StopHTTPServer adapts an http.Server-shaped value into a teardown function.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("stopping http server: %w", err)
		}
		return nil
	}
}

// CloseResource adapts an io.Closer into a teardown function.
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}

// StopComponent adapts a blocking Stop method into a teardown function.
func StopComponent(stop func()) func(context.Context) error {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			stop()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
