package store

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/localstore"
)

const (
	// UnifiedKey holds the serialized document.
	UnifiedKey = "pocketbook-store"

	// corruptSuffix is appended to UnifiedKey to keep an unreadable
	// snapshot around instead of overwriting it.
	corruptSuffix = ".corrupt"

	legacyPrefix = "pocketbook_"
)

// LegacyKey returns the per-field key used before the unified snapshot.
func LegacyKey(f domain.Field) string {
	return legacyPrefix + string(f)
}

// Origin tells where the initial document came from.
type Origin int

const (
	// OriginSnapshot means the unified snapshot was loaded.
	OriginSnapshot Origin = iota
	// OriginLegacy means at least one legacy field was migrated.
	OriginLegacy
	// OriginDefaults means nothing was stored; every field is at default.
	OriginDefaults
)

// String returns a human-readable representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginSnapshot:
		return "snapshot"
	case OriginLegacy:
		return "legacy"
	case OriginDefaults:
		return "defaults"
	default:
		return "unknown"
	}
}

// Resolve loads the initial document from kv.
//
// When the unified snapshot exists it is decoded; fields that fail to decode
// are defaulted and the original bytes are kept under a ".corrupt" key.
// When it is absent, each legacy per-field key is read once; a missing or
// unparseable legacy value falls back to the field default and never aborts
// the migration. The migrated document is written to the unified key and
// legacy keys are left untouched, so re-running after the unified key is
// cleared yields the same result.
//
// A read failure other than ErrNotFound on the unified key is returned as a
// *LocalIOError; nothing is written in that case.
func Resolve(kv localstore.KV, log zerolog.Logger) (domain.Document, Origin, error) {
	data, err := kv.Read(UnifiedKey)
	switch {
	case err == nil:
		doc, rejected, decodeErr := domain.Decode(data)
		if decodeErr == nil && len(rejected) == 0 {
			return doc, OriginSnapshot, nil
		}

		preserveCorrupt(kv, data, log)
		if decodeErr == nil {
			log.Warn().
				Interface("fields", rejected).
				Msg("Snapshot fields failed to decode, using defaults for them")
			return doc, OriginSnapshot, nil
		}
		log.Warn().Err(decodeErr).Msg("Snapshot unreadable, falling back to legacy migration")

	case errors.Is(err, localstore.ErrNotFound):
		// First run with the unified layout.

	default:
		return domain.Default(), OriginDefaults, &LocalIOError{Op: "read", Key: UnifiedKey, Err: err}
	}

	doc, adopted := migrateLegacy(kv, log)
	origin := OriginDefaults
	if adopted > 0 {
		origin = OriginLegacy
	}

	encoded, err := domain.Encode(doc)
	if err != nil {
		return doc, origin, err
	}
	if err := kv.Write(UnifiedKey, encoded); err != nil {
		// The next start migrates again; legacy keys are still intact.
		log.Error().
			Err(&LocalIOError{Op: "write", Key: UnifiedKey, Err: err}).
			Msg("Failed to write migrated snapshot")
	}

	log.Info().
		Str("origin", origin.String()).
		Int("adopted_fields", adopted).
		Msg("Initialized unified snapshot")

	return doc, origin, nil
}

// migrateLegacy assembles a document from the legacy per-field keys and
// reports how many fields were adopted.
func migrateLegacy(kv localstore.KV, log zerolog.Logger) (domain.Document, int) {
	doc := domain.Default()
	adopted := 0

	for _, f := range domain.Fields {
		key := LegacyKey(f)
		raw, err := kv.Read(key)
		if errors.Is(err, localstore.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to read legacy key, using default")
			continue
		}
		if err := doc.Set(f, raw); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Legacy value unparseable, using default")
			continue
		}
		adopted++
	}

	return doc, adopted
}

func preserveCorrupt(kv localstore.KV, data []byte, log zerolog.Logger) {
	key := UnifiedKey + corruptSuffix
	if err := kv.Write(key, data); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to preserve unreadable snapshot")
		return
	}
	log.Warn().Str("key", key).Int("bytes", len(data)).Msg("Preserved unreadable snapshot")
}
