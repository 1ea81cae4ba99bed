// Package syncengine keeps the mirror eventually consistent with the
// backend by polling. Each refresh fetches all seven collections
// concurrently and installs them together, or not at all.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/gateway"
)

// DefaultInterval is the polling period.
const DefaultInterval = 5 * time.Second

var (
	// ErrStaleRefresh is returned when a refresh finished after the session
	// it was started for had ended; its result was discarded.
	ErrStaleRefresh = errors.New("refresh result is stale")
	// ErrNotRunning is returned by RefreshNow while no session is active.
	ErrNotRunning = errors.New("sync engine is not running")
)

// Source lists every shared collection. The gateway satisfies it.
type Source interface {
	ListUsers(ctx context.Context) ([]entity.User, error)
	ListAppointments(ctx context.Context) ([]entity.Appointment, error)
	ListMessages(ctx context.Context, appointmentID string) ([]entity.Message, error)
	ListPrescriptions(ctx context.Context) ([]entity.Prescription, error)
	ListMedications(ctx context.Context) ([]entity.Medication, error)
	ListVitals(ctx context.Context) ([]entity.VitalSign, error)
	ListAlerts(ctx context.Context) ([]entity.Alert, error)
}

// Sink receives a complete snapshot. The mirror satisfies it.
type Sink interface {
	Replace(snap entity.Snapshot)
}

// Engine is a cancellable polling scheduler. Every refresh captures the
// generation current when it starts and commits only if the generation is
// unchanged, so a Stop (logout) deterministically invalidates in-flight
// results.
type Engine struct {
	src            Source
	sink           Sink
	interval       time.Duration
	onUnauthorized func()
	logger         zerolog.Logger

	mu         sync.Mutex
	generation uint64
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	lastSync   time.Time
	lastErr    error

	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithUnauthorizedHandler registers fn to run when a current refresh fails
// because the credential is no longer valid.
func WithUnauthorizedHandler(fn func()) Option {
	return func(e *Engine) { e.onUnauthorized = fn }
}

func New(src Source, sink Sink, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		src:      src,
		sink:     sink,
		interval: DefaultInterval,
		logger:   logger.With().Str("component", "sync").Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetUnauthorizedHandler replaces the handler registered at construction.
func (e *Engine) SetUnauthorizedHandler(fn func()) {
	e.mu.Lock()
	e.onUnauthorized = fn
	e.mu.Unlock()
}

// Start begins polling: one refresh immediately, then one per interval.
// Starting a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.generation++
	gen := e.generation
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.running = true
	e.cancel = cancel
	e.done = done

	e.logger.Debug().Uint64("generation", gen).Dur("interval", e.interval).Msg("sync started")
	go e.loop(loopCtx, gen, done)
}

// Stop halts polling and invalidates every refresh still in flight. It
// returns once the scheduler goroutine has exited; refreshes already
// started may still be running but can no longer commit.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.generation++
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	gen := e.generation
	e.mu.Unlock()

	cancel()
	<-done
	e.logger.Debug().Uint64("generation", gen).Msg("sync stopped")
}

// Wait blocks until every started refresh has returned. Call it after Stop.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// SessionStarted implements session.Listener. Every session start begins a
// new generation, so refreshes started for an earlier identity are dropped
// even when no logout came in between.
func (e *Engine) SessionStarted(entity.User) {
	e.Stop()
	e.Start(context.Background())
}

// SessionEnded implements session.Listener.
func (e *Engine) SessionEnded() {
	e.Stop()
}

// Running reports whether the scheduler is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Generation returns the current session epoch.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// LastSync returns when a refresh last committed and the error of the most
// recent failed refresh since then, if any.
func (e *Engine) LastSync() (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync, e.lastErr
}

// RefreshNow runs one refresh synchronously under the current generation.
func (e *Engine) RefreshNow(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	gen := e.generation
	e.mu.Unlock()
	return e.refresh(ctx, gen)
}

func (e *Engine) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	e.spawn(ctx, gen)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks do not wait for the previous refresh; whichever
			// completes last wins.
			e.spawn(ctx, gen)
		}
	}
}

func (e *Engine) spawn(ctx context.Context, gen uint64) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		_ = e.refresh(ctx, gen)
	}()
}

func (e *Engine) refresh(ctx context.Context, gen uint64) error {
	start := time.Now()
	snap, err := e.fetchAll(ctx)
	if err != nil {
		return e.fail(gen, err)
	}

	e.mu.Lock()
	if gen != e.generation {
		current := e.generation
		e.mu.Unlock()
		e.logger.Debug().Uint64("generation", gen).Uint64("current", current).Msg("dropping stale refresh")
		return ErrStaleRefresh
	}
	e.sink.Replace(snap)
	e.lastSync = time.Now()
	e.lastErr = nil
	e.mu.Unlock()

	e.logger.Debug().
		Uint64("generation", gen).
		Dur("latency", time.Since(start)).
		Int("appointments", len(snap.Appointments)).
		Int("messages", len(snap.Messages)).
		Int("alerts", len(snap.Alerts)).
		Msg("mirror refreshed")
	return nil
}

func (e *Engine) fail(gen uint64, err error) error {
	e.mu.Lock()
	current := gen == e.generation
	if current {
		e.lastErr = err
	}
	handler := e.onUnauthorized
	e.mu.Unlock()

	if !current {
		e.logger.Debug().Err(err).Uint64("generation", gen).Msg("stale refresh failed")
		return ErrStaleRefresh
	}

	kind := gateway.KindOf(err)
	evt := e.logger.Warn().Err(err)
	if kind != nil {
		evt = evt.Str("kind", kind.Error())
	}
	evt.Uint64("generation", gen).Msg("refresh failed, keeping previous mirror")

	if errors.Is(err, gateway.ErrUnauthorized) && handler != nil {
		e.logger.Warn().Msg("credential rejected during refresh, ending session")
		handler()
	}
	return err
}

func (e *Engine) fetchAll(ctx context.Context) (entity.Snapshot, error) {
	var snap entity.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.Users, err = e.src.ListUsers(gctx)
		return wrap("users", err)
	})
	g.Go(func() (err error) {
		snap.Appointments, err = e.src.ListAppointments(gctx)
		return wrap("appointments", err)
	})
	g.Go(func() (err error) {
		snap.Messages, err = e.src.ListMessages(gctx, "")
		return wrap("messages", err)
	})
	g.Go(func() (err error) {
		snap.Prescriptions, err = e.src.ListPrescriptions(gctx)
		return wrap("prescriptions", err)
	})
	g.Go(func() (err error) {
		snap.Medications, err = e.src.ListMedications(gctx)
		return wrap("medications", err)
	})
	g.Go(func() (err error) {
		snap.Vitals, err = e.src.ListVitals(gctx)
		return wrap("vitals", err)
	})
	g.Go(func() (err error) {
		snap.Alerts, err = e.src.ListAlerts(gctx)
		return wrap("alerts", err)
	})

	if err := g.Wait(); err != nil {
		return entity.Snapshot{}, err
	}
	return snap, nil
}

func wrap(collection string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("list %s: %w", collection, err)
}
