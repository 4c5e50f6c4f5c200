// Package store holds the in-memory document, persists it write-through to
// the durable local store and notifies subscribers of every change.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/localstore"
	"github.com/dvloznov/pocketbook/internal/logger"
	"github.com/dvloznov/pocketbook/internal/schedule"
)

// Source tells subscribers who caused a change.
type Source string

const (
	// SourceLocal marks changes made through the setters and transaction operations.
	SourceLocal Source = "local"
	// SourceRemote marks a document applied from the remote store at seed time.
	SourceRemote Source = "remote"
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Fields   []domain.Field
	Document domain.Document
	Source   Source
}

// Listener receives change events. Listeners run after the mutation has been
// applied and persisted, one at a time in mutation order. A listener may
// read the store but must not mutate it synchronously.
type Listener func(Change)

// Store is the single source of truth for the document.
type Store struct {
	mu  sync.Mutex
	kv  localstore.KV
	doc domain.Document

	origin          Origin
	persistFailures int

	undo    *undoSlot
	undoSeq uint64

	notifyMu     sync.Mutex
	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int

	log        zerolog.Logger
	sched      schedule.Scheduler
	undoWindow time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithScheduler sets the scheduler used for undo expiry.
func WithScheduler(sched schedule.Scheduler) Option {
	return func(s *Store) { s.sched = sched }
}

// WithUndoWindow clears the undo slot d after a deletion. Zero keeps the
// slot until the next deletion or undo.
func WithUndoWindow(d time.Duration) Option {
	return func(s *Store) { s.undoWindow = d }
}

// New loads the initial document from kv (migrating legacy keys on first
// run) and returns a ready Store. It fails only when kv cannot be read, so
// an unreadable store is never overwritten with defaults.
func New(kv localstore.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:        kv,
		listeners: make(map[int]Listener),
		log:       logger.New(),
		sched:     schedule.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, origin, err := Resolve(kv, s.log)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	s.doc = doc
	s.origin = origin
	return s, nil
}

// Origin reports where the initial document came from.
func (s *Store) Origin() Origin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

// Get returns a copy of the current document. It is always fully populated.
func (s *Store) Get() domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// PersistFailures returns how many snapshot writes have failed.
func (s *Store) PersistFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistFailures
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// SetField replaces one field with a JSON value.
func (s *Store) SetField(f domain.Field, value json.RawMessage) error {
	return s.UpdateField(f, func(json.RawMessage) (json.RawMessage, error) {
		return value, nil
	})
}

// UpdateField replaces one field with the result of fn applied to the
// latest in-memory value.
func (s *Store) UpdateField(f domain.Field, fn func(prev json.RawMessage) (json.RawMessage, error)) error {
	if _, err := domain.ParseField(string(f)); err != nil {
		return err
	}
	if f == domain.FieldTransactions {
		return fmt.Errorf("%w: %s", ErrReservedField, f)
	}

	return s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		prev, err := doc.Raw(f)
		if err != nil {
			return nil, err
		}
		next, err := fn(prev)
		if err != nil {
			return nil, err
		}
		if err := doc.Set(f, next); err != nil {
			return nil, err
		}
		return []domain.Field{f}, nil
	})
}

// SetTheme sets the theme field.
func (s *Store) SetTheme(theme string) {
	_ = s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		doc.Theme = theme
		return []domain.Field{domain.FieldTheme}, nil
	})
}

// SetHideAmounts sets hideAmounts from its previous value.
func (s *Store) SetHideAmounts(fn func(prev bool) bool) {
	_ = s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		doc.HideAmounts = fn(doc.HideAmounts)
		return []domain.Field{domain.FieldHideAmounts}, nil
	})
}

// SetFixedExpenses replaces the recurring charges. Entries without an id
// get one.
func (s *Store) SetFixedExpenses(fn func(prev []domain.FixedExpense) []domain.FixedExpense) {
	_ = s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		prev := append([]domain.FixedExpense(nil), doc.FixedExpenses...)
		next := fn(prev)
		if next == nil {
			next = []domain.FixedExpense{}
		}
		for i := range next {
			if next[i].ID == "" {
				next[i].ID = uuid.New().String()
			}
		}
		doc.FixedExpenses = next
		return []domain.Field{domain.FieldFixedExpenses}, nil
	})
}

// MarkBackup records the time of the last successful backup.
func (s *Store) MarkBackup(at time.Time) {
	_ = s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		t := at.UTC()
		doc.LastBackup = &t
		return []domain.Field{domain.FieldLastBackup}, nil
	})
}

// ReplaceDocument swaps the whole document, e.g. when restoring a backup.
func (s *Store) ReplaceDocument(doc domain.Document) {
	doc = domain.Normalize(doc.Clone())
	_ = s.mutate(SourceLocal, func(cur *domain.Document) ([]domain.Field, error) {
		*cur = doc
		s.clearUndoLocked()
		return domain.Fields, nil
	})
}

// ApplyRemote overwrites every field from a remote field map. Fields absent
// from the map take their default; keys outside the canonical set are
// ignored. List fields keep the entries that decode. It returns the applied
// document and the values that were not adopted as received.
func (s *Store) ApplyRemote(fields map[string]json.RawMessage) (domain.Document, []domain.Rejection) {
	doc, rejected := domain.Salvage(fields)
	for _, r := range rejected {
		s.log.Warn().
			Str("field", string(r.Field)).
			Int("bad_entries", len(r.Entries)).
			Msg("Remote field failed to decode")
	}

	_ = s.mutate(SourceRemote, func(cur *domain.Document) ([]domain.Field, error) {
		*cur = doc
		s.clearUndoLocked()
		return domain.Fields, nil
	})
	return doc.Clone(), rejected
}

// mutate applies fn to a copy of the document. On success the copy becomes
// current, the snapshot is written and listeners are notified.
func (s *Store) mutate(source Source, fn func(doc *domain.Document) ([]domain.Field, error)) error {
	s.mu.Lock()
	next := s.doc.Clone()
	fields, err := fn(&next)
	if err != nil || len(fields) == 0 {
		s.mu.Unlock()
		return err
	}
	s.doc = next
	s.persistLocked()
	change := Change{Fields: fields, Document: next.Clone(), Source: source}

	// Taking notifyMu before releasing mu keeps deliveries in mutation order.
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.notify(change)
	return nil
}

// persistLocked writes the full snapshot. Failures are logged and counted;
// the in-memory document stays authoritative. Must be called with s.mu held.
func (s *Store) persistLocked() {
	data, err := domain.Encode(s.doc)
	if err != nil {
		s.persistFailures++
		s.log.Error().Err(err).Msg("Failed to encode snapshot")
		return
	}
	if err := s.kv.Write(UnifiedKey, data); err != nil {
		s.persistFailures++
		s.log.Error().
			Err(&LocalIOError{Op: "write", Key: UnifiedKey, Err: err}).
			Int("bytes", len(data)).
			Msg("Failed to persist snapshot")
	}
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextListener; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(change)
	}
}
