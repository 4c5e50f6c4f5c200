// Package remote defines the per-user document store the sync engine pushes
// to and seeds from.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when the user has no remote document yet.
var ErrNotFound = errors.New("remote document not found")

// Fields is a remote document: field name to JSON value.
type Fields = map[string]json.RawMessage

// DocumentStore holds one document per user.
type DocumentStore interface {
	// Get fetches the user's document, or ErrNotFound.
	Get(ctx context.Context, uid string) (Fields, error)

	// Merge upserts fields into the user's document. Keys not present in
	// fields keep their stored value.
	Merge(ctx context.Context, uid string, fields Fields) error
}

// Lister is implemented by stores that can enumerate the users they hold.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// MergeFields returns a new map holding base overlaid with fields.
func MergeFields(base, fields Fields) Fields {
	out := make(Fields, len(base)+len(fields))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
