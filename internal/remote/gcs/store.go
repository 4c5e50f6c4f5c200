// Package gcs stores one JSON document per user in a Google Cloud Storage
// bucket.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/pocketbook/internal/remote"
)

const (
	defaultPrefix = "users"
	objectSuffix  = ".json"

	// maxMergeAttempts bounds retries when another writer bumps the object
	// generation between our read and write.
	maxMergeAttempts = 5

	requestTimeout = 30 * time.Second
)

// Config selects the bucket and object layout.
type Config struct {
	Bucket string
	Prefix string
	// Endpoint points the client at an emulator, e.g. fake-gcs-server.
	// Requests to a custom endpoint are sent unauthenticated.
	Endpoint string
}

// Store is a remote.DocumentStore backed by GCS. Documents live at
// "<prefix>/<uid>.json".
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	owned  bool
	log    zerolog.Logger
}

// New creates a storage client and returns a Store for cfg.Bucket.
// It assumes Application Default Credentials are configured unless
// cfg.Endpoint is set.
func New(ctx context.Context, cfg Config, log zerolog.Logger, opts ...option.ClientOption) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	s := NewWithClient(client, cfg.Bucket, cfg.Prefix, log)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. Close leaves it open.
func NewWithClient(client *storage.Client, bucket, prefix string, log zerolog.Logger) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    log.With().Str("component", "gcs_remote").Str("bucket", bucket).Logger(),
	}
}

// Close releases the storage client if the Store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// ObjectName returns the object holding uid's document.
func ObjectName(prefix, uid string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return path.Join(prefix, url.PathEscape(uid)+objectSuffix)
}

// UIDFromObject reverses ObjectName. It reports false for objects outside
// the prefix or without the document suffix.
func UIDFromObject(prefix, name string) (string, bool) {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	rest, ok := strings.CutPrefix(name, prefix+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	escaped, ok := strings.CutSuffix(rest, objectSuffix)
	if !ok || escaped == "" {
		return "", false
	}
	uid, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	return uid, true
}

func (s *Store) object(uid string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(ObjectName(s.prefix, uid))
}

// Get implements remote.DocumentStore.
func (s *Store) Get(ctx context.Context, uid string) (remote.Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	fields, _, err := s.read(ctx, s.object(uid))
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// read returns the decoded document and its generation.
func (s *Store) read(ctx context.Context, obj *storage.ObjectHandle) (remote.Fields, int64, error) {
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, remote.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open GCS object reader %s: %w", obj.ObjectName(), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read GCS object %s: %w", obj.ObjectName(), err)
	}

	fields, err := DecodeDocument(data)
	if err != nil {
		return nil, 0, fmt.Errorf("object %s: %w", obj.ObjectName(), err)
	}
	return fields, r.Attrs.Generation, nil
}

// Merge implements remote.DocumentStore. The stored document is read,
// overlaid with fields and written back under a generation precondition;
// a concurrent writer causes a re-read and another attempt.
func (s *Store) Merge(ctx context.Context, uid string, fields remote.Fields) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	obj := s.object(uid)
	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		current, generation, err := s.read(ctx, obj)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return err
		}

		cond := storage.Conditions{DoesNotExist: true}
		if generation != 0 {
			cond = storage.Conditions{GenerationMatch: generation}
		}

		err = s.write(ctx, obj.If(cond), remote.MergeFields(current, fields))
		if err == nil {
			s.log.Debug().
				Str("uid", uid).
				Int("fields", len(fields)).
				Int("attempt", attempt).
				Msg("Merged remote document")
			return nil
		}
		if !isPreconditionFailure(err) {
			return err
		}
		s.log.Warn().
			Str("uid", uid).
			Int("attempt", attempt).
			Msg("Remote document changed during merge, retrying")
	}
	return fmt.Errorf("merge %s: gave up after %d attempts", uid, maxMergeAttempts)
}

func (s *Store) write(ctx context.Context, obj *storage.ObjectHandle, fields remote.Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object %s: %w", obj.ObjectName(), err)
	}
	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize GCS object %s: %w", obj.ObjectName(), err)
	}
	return nil
}

// List implements remote.Lister.
func (s *Store) List(ctx context.Context) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix + "/"})

	var uids []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list GCS objects: %w", err)
		}
		if uid, ok := UIDFromObject(s.prefix, attrs.Name); ok {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

// DecodeDocument parses a stored document. It must be a JSON object.
func DecodeDocument(data []byte) (remote.Fields, error) {
	var fields remote.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode remote document: %w", err)
	}
	if fields == nil {
		return nil, errors.New("decode remote document: document is null")
	}
	return fields, nil
}

func isPreconditionFailure(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var (
	_ remote.DocumentStore = (*Store)(nil)
	_ remote.Lister        = (*Store)(nil)
)
