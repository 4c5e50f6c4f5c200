// Package cloudsync keeps the remote copy of the document in step with the
// local store for the signed-in user.
//
// On sign-in the client seeds once: an existing remote document replaces
// the local one, otherwise the local document is pushed as the seed. After
// that every local change is fingerprinted and pushed after a quiet period;
// changes inside one window are coalesced into a single push of the latest
// document. Nothing is pushed before the seed has completed.
package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/auth"
	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/logger"
	"github.com/dvloznov/pocketbook/internal/remote"
	"github.com/dvloznov/pocketbook/internal/schedule"
	"github.com/dvloznov/pocketbook/internal/store"
)

// DefaultDebounce is the quiet period before a change is pushed.
const DefaultDebounce = 3 * time.Second

// Remote metadata fields stored next to the document fields.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// State is the sync state machine position.
type State int

const (
	// StateDisabled means no remote store is configured. It is terminal.
	StateDisabled State = iota
	// StateAwaitingIdentity means there is no signed-in identity yet.
	StateAwaitingIdentity
	// StateSeeding means the one-time pull or seed push is in flight.
	StateSeeding
	// StateSyncing means local changes are pushed after the debounce window.
	StateSyncing
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateSeeding:
		return "seeding"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the client's state.
type Status struct {
	Identity       *auth.Identity `json:"identity"`
	AuthResolved   bool           `json:"authResolved"`
	RemoteLoaded   bool           `json:"remoteLoaded"`
	LastPushedHash string         `json:"lastPushedHash"`
	State          State          `json:"state"`
	PushPending    bool           `json:"pushPending"`
	LastPushAt     *time.Time     `json:"lastPushAt,omitempty"`
	LastError      string         `json:"lastError,omitempty"`
}

// DocumentSource is the part of the store the client works with.
type DocumentSource interface {
	Get() domain.Document
	ApplyRemote(fields map[string]json.RawMessage) (domain.Document, []domain.Rejection)
	Subscribe(l store.Listener) func()
}

// Option configures a Client.
type Option func(*Client)

// WithScheduler sets the scheduler that drives the debounce timer.
func WithScheduler(s schedule.Scheduler) Option {
	return func(c *Client) { c.sched = s }
}

// WithClock sets the clock used for createdAt and updatedAt.
func WithClock(clock schedule.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithDebounce sets the quiet period before a push. Non-positive values
// keep the default.
func WithDebounce(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client synchronizes one store with a remote document store.
type Client struct {
	src      DocumentSource
	remote   remote.DocumentStore
	sched    schedule.Scheduler
	clock    schedule.Clock
	debounce time.Duration
	log      zerolog.Logger

	// seedMu orders "apply remote document" against identity changes, so a
	// stale seed never overwrites local data after sign-out.
	seedMu sync.Mutex
	// pushMu serializes pushes.
	pushMu sync.Mutex

	mu             sync.Mutex
	state          State
	identity       *auth.Identity
	resolved       bool
	remoteLoaded   bool
	lastPushed     string
	dirty          bool
	held           map[domain.Field]heldField
	needsCreatedAt bool
	epoch          uint64
	timer          schedule.Timer
	timerSeq       uint64
	lastPushAt     *time.Time
	lastErr        string
	identityCtx    context.Context
	identityCancel context.CancelFunc
	closed         bool

	rootCtx     context.Context
	rootCancel  context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// heldField is a remote value the seed could not adopt as received.
type heldField struct {
	rejection domain.Rejection
	// adopted is the local encoding of the field right after the seed.
	adopted json.RawMessage
}

// NewClient returns a client for src. A nil remote yields a disabled client
// that never performs remote I/O.
func NewClient(src DocumentSource, rs remote.DocumentStore, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		src:        src,
		remote:     rs,
		sched:      schedule.Real{},
		clock:      schedule.Real{},
		debounce:   DefaultDebounce,
		log:        logger.New(),
		state:      StateAwaitingIdentity,
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "cloudsync").Logger()

	if rs == nil {
		c.state = StateDisabled
		c.log.Info().Msg("Remote sync disabled, running local-only")
		return c
	}

	c.unsubscribe = src.Subscribe(c.onChange)
	return c
}

// Status returns the current sync status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		AuthResolved:   c.resolved,
		RemoteLoaded:   c.remoteLoaded,
		LastPushedHash: c.lastPushed,
		State:          c.state,
		PushPending:    c.timer != nil,
		LastError:      c.lastErr,
	}
	if c.identity != nil {
		id := *c.identity
		st.Identity = &id
	}
	if c.lastPushAt != nil {
		t := *c.lastPushAt
		st.LastPushAt = &t
	}
	return st
}

// HandleAuth moves the state machine after an auth gate transition.
// Any change of identity cancels the pending push and the in-flight seed
// before the new identity is seeded.
func (c *Client) HandleAuth(st auth.State) {
	c.seedMu.Lock()
	defer c.seedMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolved = st.Resolved
	var next *auth.Identity
	if st.SignedIn() {
		id := *st.Identity
		next = &id
	}

	if c.state == StateDisabled || c.closed {
		c.identity = next
		return
	}

	if sameUID(c.identity, next) {
		if next != nil {
			c.identity = next
		}
		return
	}

	if c.identity != nil {
		c.log.Info().Str("uid", c.identity.UID).Msg("Identity ended, stopping sync")
	}
	c.resetLocked()

	if next == nil {
		return
	}

	c.identity = next
	c.state = StateSeeding
	c.identityCtx, c.identityCancel = context.WithCancel(c.rootCtx)

	c.log.Info().Str("uid", next.UID).Msg("Identity resolved, seeding")
	c.wg.Add(1)
	go c.seed(c.identityCtx, c.epoch, next.UID)
}

// resetLocked drops all per-identity state. Must be called with c.mu held.
func (c *Client) resetLocked() {
	c.epoch++
	c.stopTimerLocked()
	if c.identityCancel != nil {
		c.identityCancel()
		c.identityCancel = nil
		c.identityCtx = nil
	}
	c.identity = nil
	c.remoteLoaded = false
	c.lastPushed = ""
	c.dirty = false
	c.held = nil
	c.needsCreatedAt = false
	c.state = StateAwaitingIdentity
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// seed runs the one-time reconciliation for uid.
func (c *Client) seed(ctx context.Context, epoch uint64, uid string) {
	defer c.wg.Done()
	log := c.log.With().Str("uid", uid).Logger()

	fields, err := c.remote.Get(ctx, uid)
	switch {
	case err == nil:
		c.seedMu.Lock()
		if c.stale(epoch) {
			c.seedMu.Unlock()
			log.Debug().Msg("Identity changed during seed, discarding remote document")
			return
		}
		doc, rejected := c.src.ApplyRemote(fields)
		c.seedMu.Unlock()

		held := holdRejected(doc, rejected)
		for f := range held {
			log.Warn().Str("field", string(f)).Msg("Remote field kept out of pushes until edited locally")
		}

		hash, ferr := domain.Fingerprint(doc)
		if ferr != nil {
			log.Error().Err(ferr).Msg("Failed to fingerprint remote document")
		}
		c.mu.Lock()
		if epoch == c.epoch {
			c.lastPushed = hash
			c.held = held
		}
		c.mu.Unlock()
		log.Info().Str("hash", hash).Msg("Remote document applied")

	case errors.Is(err, remote.ErrNotFound):
		if c.stale(epoch) {
			return
		}
		log.Info().Msg("No remote document, seeding from local")
		c.mu.Lock()
		if epoch == c.epoch {
			c.needsCreatedAt = true
		}
		c.mu.Unlock()
		if perr := c.push(ctx, epoch, uid, true); perr != nil {
			log.Error().Err(perr).Msg("Seed push failed")
		}

	default:
		if c.stale(epoch) {
			log.Debug().Err(err).Msg("Seed fetch ended after identity change")
			return
		}
		fetchErr := &RemoteFetchError{UID: uid, Err: err}
		log.Error().Err(fetchErr).Msg("Failed to fetch remote document, local data wins")
		c.mu.Lock()
		if epoch == c.epoch {
			c.lastErr = fetchErr.Error()
		}
		c.mu.Unlock()
	}

	c.enterSyncing(epoch)
}

// enterSyncing completes the seed. Local changes made while seeding were
// held back; if they left the document different from what the remote
// holds, a push is scheduled now.
func (c *Client) enterSyncing(epoch uint64) {
	doc := c.src.Get()
	hash, err := domain.Fingerprint(doc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || epoch != c.epoch {
		return
	}
	c.remoteLoaded = true
	c.state = StateSyncing
	c.log.Info().Str("uid", c.identity.UID).Str("state", c.state.String()).Msg("Seed complete")

	if c.dirty && err == nil && hash != c.lastPushed {
		c.armLocked()
	}
	c.dirty = false
}

func (c *Client) stale(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || epoch != c.epoch
}

// onChange receives every store mutation.
func (c *Client) onChange(change store.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.state == StateSeeding && change.Source == store.SourceLocal {
		c.dirty = true
	}
	// No timer is armed before the remote document has been loaded.
	if c.state != StateSyncing || !c.remoteLoaded {
		return
	}

	hash, err := domain.Fingerprint(change.Document)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to fingerprint document")
		return
	}
	if hash == c.lastPushed {
		c.stopTimerLocked()
		return
	}
	c.armLocked()
}

// armLocked (re)starts the debounce timer. Must be called with c.mu held.
func (c *Client) armLocked() {
	c.stopTimerLocked()
	c.timerSeq++
	epoch, seq := c.epoch, c.timerSeq
	c.timer = c.sched.AfterFunc(c.debounce, func() { c.fire(epoch, seq) })
}

// fire pushes the current document when the debounce timer expires. A timer
// from an earlier identity or an earlier arm is a no-op.
func (c *Client) fire(epoch, seq uint64) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch || seq != c.timerSeq || c.timer == nil || !c.remoteLoaded || c.identity == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	uid := c.identity.UID
	ctx := c.identityCtx
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if err := c.push(ctx, epoch, uid, false); err != nil {
		c.log.Error().Err(err).Msg("Push failed, will retry on next change")
	}
}

// push sends the current document. The first push that creates the remote
// document also sets createdAt.
func (c *Client) push(ctx context.Context, epoch uint64, uid string, seed bool) error {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	if c.stale(epoch) {
		return nil
	}

	doc := c.src.Get()
	hash, err := domain.Fingerprint(doc)
	if err != nil {
		return &RemoteWriteError{UID: uid, Err: err}
	}
	fields, err := doc.ToMap()
	if err != nil {
		return &RemoteWriteError{UID: uid, Err: err}
	}

	c.mu.Lock()
	held := c.held
	create := c.needsCreatedAt
	c.mu.Unlock()

	replaced, err := applyHeld(fields, held)
	if err != nil {
		return &RemoteWriteError{UID: uid, Err: err}
	}

	now := c.clock.Now().UTC()
	stamp, _ := json.Marshal(now.Format(time.RFC3339Nano))
	fields[FieldUpdatedAt] = stamp
	if create {
		fields[FieldCreatedAt] = stamp
	}

	if err := c.remote.Merge(ctx, uid, fields); err != nil {
		werr := &RemoteWriteError{UID: uid, Err: err}
		c.mu.Lock()
		if epoch == c.epoch {
			c.lastErr = werr.Error()
		}
		c.mu.Unlock()
		return werr
	}

	c.mu.Lock()
	if epoch == c.epoch {
		c.lastPushed = hash
		c.lastPushAt = &now
		c.lastErr = ""
		c.needsCreatedAt = false
		c.releaseLocked(replaced)
	}
	c.mu.Unlock()

	c.log.Info().
		Str("uid", uid).
		Str("hash", hash).
		Bool("seed", seed).
		Int("transactions", len(doc.Transactions)).
		Msg("Pushed document")
	return nil
}

// Flush pushes immediately when a debounced push is pending.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.timer == nil || c.identity == nil {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.timerSeq++
	epoch, uid := c.epoch, c.identity.UID
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	return c.push(ctx, epoch, uid, false)
}

// Close stops the timer, cancels in-flight remote calls and waits for
// background work to finish. The client is inert afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	c.stopTimerLocked()
	c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.rootCancel()
	c.wg.Wait()
}

// holdRejected records the remote values doc could not adopt as received.
func holdRejected(doc domain.Document, rejected []domain.Rejection) map[domain.Field]heldField {
	if len(rejected) == 0 {
		return nil
	}
	held := make(map[domain.Field]heldField, len(rejected))
	for _, r := range rejected {
		adopted, err := doc.Raw(r.Field)
		if err != nil {
			continue
		}
		held[r.Field] = heldField{rejection: r, adopted: adopted}
	}
	return held
}

// applyHeld keeps a push from overwriting remote values the seed could not
// adopt. A field still as seeded is left out of the merge so the remote
// keeps its value. An edited list gets its undecodable remote entries
// appended. It returns the wholly rejected fields a local edit replaced.
func applyHeld(fields map[string]json.RawMessage, held map[domain.Field]heldField) ([]domain.Field, error) {
	var replaced []domain.Field
	for f, h := range held {
		key := string(f)
		cur := fields[key]
		if bytes.Equal(cur, h.adopted) {
			delete(fields, key)
			continue
		}
		if len(h.rejection.Entries) > 0 {
			merged, err := domain.AppendEntries(cur, h.rejection.Entries)
			if err != nil {
				return nil, fmt.Errorf("restore %s entries: %w", f, err)
			}
			fields[key] = merged
			continue
		}
		replaced = append(replaced, f)
	}
	return replaced, nil
}

// releaseLocked stops holding fields whose remote value has been replaced.
// Must be called with c.mu held.
func (c *Client) releaseLocked(fields []domain.Field) {
	if len(fields) == 0 {
		return
	}
	held := make(map[domain.Field]heldField, len(c.held))
	for f, h := range c.held {
		held[f] = h
	}
	for _, f := range fields {
		delete(held, f)
	}
	c.held = held
}

func sameUID(a, b *auth.Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UID == b.UID
}
