package inmemory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/dvloznov/pocketbook/internal/remote"
)

// MergeCall records one Merge invocation.
type MergeCall struct {
	UID    string
	Fields remote.Fields
}

// Store is an in-memory implementation of remote.DocumentStore.
// It is safe for concurrent use and records every call, which makes it the
// remote of choice for tests and local development.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]remote.Fields
	gets   []string
	merges []MergeCall

	// GetFunc, when set, replaces the lookup. It still counts as a call.
	GetFunc func(ctx context.Context, uid string) (remote.Fields, error)

	// MergeFunc, when set, runs before the write; a non-nil error aborts it.
	MergeFunc func(ctx context.Context, uid string, fields remote.Fields) error
}

// NewStore creates a new, empty remote store.
func NewStore() *Store {
	return &Store{
		docs: make(map[string]remote.Fields),
	}
}

// Put replaces a user's document directly, bypassing call recording.
func (s *Store) Put(uid string, fields remote.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uid] = remote.MergeFields(nil, fields)
}

// Get implements remote.DocumentStore.
func (s *Store) Get(ctx context.Context, uid string) (remote.Fields, error) {
	s.mu.Lock()
	s.gets = append(s.gets, uid)
	hook := s.GetFunc
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, uid)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uid]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return remote.MergeFields(nil, doc), nil
}

// Merge implements remote.DocumentStore.
func (s *Store) Merge(ctx context.Context, uid string, fields remote.Fields) error {
	s.mu.Lock()
	s.merges = append(s.merges, MergeCall{UID: uid, Fields: remote.MergeFields(nil, fields)})
	hook := s.MergeFunc
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, uid, fields); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uid] = remote.MergeFields(s.docs[uid], fields)
	return nil
}

// List implements remote.Lister.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uids := make([]string, 0, len(s.docs))
	for uid := range s.docs {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids, nil
}

// Document returns a copy of the stored document for uid.
func (s *Store) Document(uid string) (remote.Fields, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uid]
	if !ok {
		return nil, false
	}
	return remote.MergeFields(nil, doc), true
}

// Field decodes one field of uid's document into v.
func (s *Store) Field(uid, name string, v any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.docs[uid][name]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// Gets returns the uids passed to Get, in call order.
func (s *Store) Gets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.gets...)
}

// Merges returns every Merge call, in call order.
func (s *Store) Merges() []MergeCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MergeCall(nil), s.merges...)
}

// Ensure Store implements the remote interfaces.
var (
	_ remote.DocumentStore = (*Store)(nil)
	_ remote.Lister        = (*Store)(nil)
)
