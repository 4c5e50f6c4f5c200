// Package engine assembles the local store, auth gate and sync client into
// one running instance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/auth"
	"github.com/dvloznov/pocketbook/internal/cloudsync"
	"github.com/dvloznov/pocketbook/internal/config"
	"github.com/dvloznov/pocketbook/internal/localstore"
	kvmem "github.com/dvloznov/pocketbook/internal/localstore/inmemory"
	"github.com/dvloznov/pocketbook/internal/localstore/sqlite"
	"github.com/dvloznov/pocketbook/internal/logger"
	"github.com/dvloznov/pocketbook/internal/remote"
	"github.com/dvloznov/pocketbook/internal/remote/gcs"
	remotemem "github.com/dvloznov/pocketbook/internal/remote/inmemory"
	"github.com/dvloznov/pocketbook/internal/schedule"
	"github.com/dvloznov/pocketbook/internal/store"
)

// Engine owns the running components. Callers use Store for reads and
// mutations, Auth to report sign-in and sign-out, and Sync for status.
type Engine struct {
	kv     localstore.KV
	remote remote.DocumentStore
	store  *store.Store
	gate   *auth.Gate
	sync   *cloudsync.Client
	log    zerolog.Logger

	unsubscribeAuth func()
}

type options struct {
	log        zerolog.Logger
	sched      schedule.Scheduler
	clock      schedule.Clock
	debounce   time.Duration
	undoWindow time.Duration
}

// Option configures Assemble.
type Option func(*options)

// WithLogger sets the logger shared by all components.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithScheduler sets the scheduler for debounce and undo expiry.
func WithScheduler(s schedule.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithClock sets the clock used for remote timestamps.
func WithClock(c schedule.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDebounce sets the sync debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithUndoWindow sets how long a deletion can be undone. Zero means until
// the next deletion.
func WithUndoWindow(d time.Duration) Option {
	return func(o *options) { o.undoWindow = d }
}

// Assemble wires an engine from ready-made stores. A nil remote runs the
// engine local-only. The auth gate starts unresolved.
func Assemble(kv localstore.KV, rs remote.DocumentStore, opts ...Option) (*Engine, error) {
	o := options{
		log:      logger.New(),
		sched:    schedule.Real{},
		clock:    schedule.Real{},
		debounce: cloudsync.DefaultDebounce,
	}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.New(kv,
		store.WithLogger(o.log.With().Str("component", "store").Logger()),
		store.WithScheduler(o.sched),
		store.WithUndoWindow(o.undoWindow),
	)
	if err != nil {
		return nil, err
	}
	o.log.Info().
		Str("origin", st.Origin().String()).
		Int("transactions", len(st.Get().Transactions)).
		Msg("Local document loaded")

	client := cloudsync.NewClient(st, rs,
		cloudsync.WithLogger(o.log),
		cloudsync.WithScheduler(o.sched),
		cloudsync.WithClock(o.clock),
		cloudsync.WithDebounce(o.debounce),
	)

	gate := auth.NewGate()
	e := &Engine{
		kv:     kv,
		remote: rs,
		store:  st,
		gate:   gate,
		sync:   client,
		log:    o.log,
	}
	e.unsubscribeAuth = gate.Subscribe(client.HandleAuth)
	client.HandleAuth(gate.State())
	return e, nil
}

// Open builds the stores named by cfg and assembles an engine around them.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Engine, error) {
	kv, err := OpenLocal(cfg.Local)
	if err != nil {
		return nil, err
	}

	rs, err := OpenRemote(ctx, cfg.Remote, log)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	e, err := Assemble(kv, rs,
		WithLogger(log),
		WithDebounce(cfg.Sync.Debounce),
		WithUndoWindow(cfg.Undo.Window),
	)
	if err != nil {
		closeRemote(rs)
		_ = kv.Close()
		return nil, err
	}
	return e, nil
}

// OpenLocal opens the durable local store selected by cfg.
func OpenLocal(cfg config.LocalConfig) (localstore.KV, error) {
	switch cfg.Driver {
	case config.LocalMemory:
		return kvmem.NewStore(), nil
	case config.LocalSQLite, "":
		kv, err := sqlite.Open(config.ExpandHome(cfg.Path))
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown local driver %q", cfg.Driver)
	}
}

// OpenRemote opens the remote document store selected by cfg. It returns
// nil for the "none" driver.
func OpenRemote(ctx context.Context, cfg config.RemoteConfig, log zerolog.Logger) (remote.DocumentStore, error) {
	switch cfg.Driver {
	case config.RemoteNone, "":
		return nil, nil
	case config.RemoteMemory:
		return remotemem.NewStore(), nil
	case config.RemoteGCS:
		rs, err := gcs.New(ctx, gcs.Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("open remote store: %w", err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
	}
}

// Store returns the document store.
func (e *Engine) Store() *store.Store { return e.store }

// Auth returns the auth gate.
func (e *Engine) Auth() *auth.Gate { return e.gate }

// Sync returns the sync client.
func (e *Engine) Sync() *cloudsync.Client { return e.sync }

// Remote returns the remote document store, or nil when running local-only.
func (e *Engine) Remote() remote.DocumentStore { return e.remote }

// Logger returns the engine logger.
func (e *Engine) Logger() zerolog.Logger { return e.log }

// WaitSynced blocks until the sync client has finished seeding or ctx ends.
func (e *Engine) WaitSynced(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch e.sync.Status().State {
		case cloudsync.StateSyncing:
			return nil
		case cloudsync.StateDisabled:
			return errors.New("remote sync is disabled")
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for sync: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close pushes any pending change, stops the sync client and closes the
// stores.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if err := e.sync.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	e.unsubscribeAuth()
	e.sync.Close()
	closeRemote(e.remote)
	if err := e.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close local store: %w", err))
	}
	return errors.Join(errs...)
}

func closeRemote(rs remote.DocumentStore) {
	if c, ok := rs.(io.Closer); ok {
		_ = c.Close()
	}
}
