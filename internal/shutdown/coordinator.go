// Package shutdown stops the long-lived resources of an MVRP process within
// a grace period.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// DefaultGracePeriod is how long servers get to drain in-flight work.
const DefaultGracePeriod = 10 * time.Second

// Config configures graceful shutdown behavior.
type Config struct {
	// GracePeriod bounds phase 1. Default is 10 seconds if not specified.
	GracePeriod time.Duration

	Logger *slog.Logger

	// OnShutdownStart is called when shutdown begins.
	OnShutdownStart func()

	// OnShutdownComplete is called with the joined shutdown error.
	OnShutdownComplete func(err error)
}

// Server is anything that drains and stops when asked, such as the MVRP
// server or the metrics HTTP server.
type Server interface {
	Shutdown(ctx context.Context) error
}

// Coordinator stops registered servers, then runs cleanup functions.
type Coordinator struct {
	config       Config
	logger       *slog.Logger
	servers      []namedServer
	cleanupFuncs []func() error

	mu             sync.Mutex
	shutdownOnce   sync.Once
	isShuttingDown bool
	result         error
}

type namedServer struct {
	name   string
	server Server
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{config: config, logger: logger}
}

// RegisterServer registers a server for graceful shutdown. Registrations
// after shutdown has begun are ignored.
func (c *Coordinator) RegisterServer(name string, server Server) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if server != nil && !c.isShuttingDown {
		c.servers = append(c.servers, namedServer{name: name, server: server})
	}
}

// RegisterCleanupFunc registers a function to run after every server has
// stopped. Cleanup runs in reverse registration order.
func (c *Coordinator) RegisterCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fn != nil && !c.isShuttingDown {
		c.cleanupFuncs = append(c.cleanupFuncs, fn)
	}
}

// Shutdown stops all registered resources once. Later calls return the
// first call's result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.isShuttingDown = true
		servers := c.servers
		cleanups := c.cleanupFuncs
		c.mu.Unlock()

		if c.config.OnShutdownStart != nil {
			c.config.OnShutdownStart()
		}
		c.logger.Info("Starting graceful shutdown",
			"grace_period", c.config.GracePeriod,
			"servers", len(servers))

		graceCtx, cancel := context.WithTimeout(ctx, c.config.GracePeriod)
		defer cancel()

		var errs []error
		errs = append(errs, c.shutdownServers(graceCtx, servers)...)
		errs = append(errs, c.runCleanupFunctions(cleanups)...)

		c.result = errors.Join(errs...)
		if c.result != nil {
			c.logger.Error("Shutdown finished with errors", "error", c.result.Error())
		} else {
			c.logger.Info("Graceful shutdown completed successfully")
		}

		if c.config.OnShutdownComplete != nil {
			c.config.OnShutdownComplete(c.result)
		}
	})

	return c.result
}

func (c *Coordinator) shutdownServers(ctx context.Context, servers []namedServer) []error {
	var (
		wg   conc.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range servers {
		wg.Go(func() {
			if err := s.server.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("stop %s: %w", s.name, err))
				mu.Unlock()
				return
			}
			c.logger.Info("Stopped", "server", s.name)
		})
	}
	wg.Wait()
	return errs
}

func (c *Coordinator) runCleanupFunctions(cleanups []func() error) []error {
	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, fmt.Errorf("cleanup: %w", err))
		}
	}
	return errs
}
