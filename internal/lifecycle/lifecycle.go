// Package lifecycle implements Graceful Lifecycle (spec §4.8): startup
// dependency classification (CRITICAL vs NON-CRITICAL), degraded-mode
// entry, and cooperative shutdown. Aggregation of non-fatal startup
// failures uses hashicorp/go-multierror, the same library the teacher
// pack already depends on for exactly this purpose.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Dependency is one startup step.
type Dependency struct {
	Name     string
	Critical bool
	Start    func(ctx context.Context) error
}

// CriticalError wraps a CRITICAL dependency's startup failure. Startup
// returns it directly (never folded into the accumulated non-critical
// multierror) so callers can tell "abort the process" apart from
// "some subsystems are DEGRADED but traffic is still served" (spec
// §4.8) with a single errors.As check instead of guessing from a bare
// non-nil error.
type CriticalError struct {
	Dependency string
	Err        error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical dependency %q failed to start: %v", e.Dependency, e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }

// Runtime tracks degraded subsystems and coordinates shutdown.
type Runtime struct {
	logger hclog.Logger

	mu       sync.RWMutex
	degraded map[string]bool

	shutdownFns []func(ctx context.Context) error
}

func New(logger hclog.Logger) *Runtime {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Runtime{logger: logger.Named("lifecycle"), degraded: make(map[string]bool)}
}

// Startup runs each dependency's Start in order. A CRITICAL dependency's
// failure aborts startup immediately; a NON-CRITICAL dependency's
// failure marks it DEGRADED, is recorded, and startup continues (spec
// §4.8).
func (r *Runtime) Startup(ctx context.Context, deps []Dependency) error {
	var merr *multierror.Error

	for _, dep := range deps {
		err := dep.Start(ctx)
		if err == nil {
			r.setDegraded(dep.Name, false)
			continue
		}

		if dep.Critical {
			r.logger.Error("critical dependency failed to start", "dependency", dep.Name, "error", err)
			return &CriticalError{Dependency: dep.Name, Err: err}
		}

		r.logger.Warn("non-critical dependency failed to start, entering degraded mode", "dependency", dep.Name, "error", err)
		r.setDegraded(dep.Name, true)
		merr = multierror.Append(merr, err)
	}

	return merr.ErrorOrNil()
}

func (r *Runtime) setDegraded(name string, degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded[name] = degraded
}

// Degraded returns a snapshot of every tracked subsystem's degraded
// flag, for the health endpoint.
func (r *Runtime) Degraded() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.degraded))
	for k, v := range r.degraded {
		out[k] = v
	}
	return out
}

// RegisterShutdown adds a cleanup step run during Shutdown, in the
// order registered.
func (r *Runtime) RegisterShutdown(fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdownFns = append(r.shutdownFns, fn)
}

// Shutdown runs every registered cleanup step in order under one
// drainTimeout deadline and returns their aggregated errors (spec §4.8);
// it does not exit the process. Callers register the steps that cancel
// scheduled work, drain in-flight requests (typically a *http.Server's
// Shutdown) and close shared-store connections before calling this.
func (r *Runtime) Shutdown(drainTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	r.mu.RLock()
	fns := append([]func(ctx context.Context) error(nil), r.shutdownFns...)
	r.mu.RUnlock()

	var merr *multierror.Error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
