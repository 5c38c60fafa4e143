package versions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/platinummonkey/collab/pkg/storage/cache"
)

// Repository is the part of the storage boundary the version store needs
type Repository interface {
	storage.FileRepository
	storage.VersionRepository
}

// Cache is a presence cache for stored versions. Entries never go stale
// because a stored version is never updated or deleted.
type Cache interface {
	Lookup(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, cache.Layer, error)
	Set(ctx context.Context, v *collab.FileVersion) error
}

// Config controls retrying of insert races
type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultConfig returns the default retry policy
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		RetryBackoff: 10 * time.Millisecond,
	}
}

// Store implements idempotent get-or-create of file versions
type Store struct {
	repo    Repository
	cache   Cache
	locks   *keyLock
	metrics *observability.Metrics
	config  Config
}

// NewStore creates a version store. cache and metrics may be nil.
func NewStore(repo Repository, c Cache, metrics *observability.Metrics, config Config) *Store {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Store{
		repo:    repo,
		cache:   c,
		locks:   newKeyLock(),
		metrics: metrics,
		config:  config,
	}
}

// GetOrCreateVersion returns the version (file, hash), creating it when it
// does not exist. created is true for exactly one caller per pair, however
// many race. An unknown file yields a KindNotFound error.
func (s *Store) GetOrCreateVersion(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, bool, error) {
	const op = "versions.GetOrCreateVersion"

	if err := validate(op, file, hash); err != nil {
		return nil, false, err
	}

	ctx, span := observability.Tracer().Start(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("collab.file", string(file)),
		attribute.String("collab.hash", string(hash)),
	)

	v, created, err := s.getOrCreate(ctx, op, file, hash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("collab.created", created))
	s.metrics.ObserveVersion(created)
	return v, created, nil
}

func (s *Store) getOrCreate(ctx context.Context, op string, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, bool, error) {
	if v := s.cached(ctx, file, hash); v != nil {
		return v, false, nil
	}

	exists, err := s.repo.FileExists(ctx, file)
	if err != nil {
		return nil, false, collab.Wrap(collab.KindInternal, op, err)
	}
	if !exists {
		return nil, false, collab.E(collab.KindNotFound, op, fmt.Sprintf("file %s not found", file))
	}

	key := collab.VersionKey(file, hash)
	for attempt := 1; ; attempt++ {
		// not held across the backoff below
		unlock := s.locks.Lock(key)
		v := &collab.FileVersion{File: file, Hash: hash}
		inserted, err := s.repo.InsertVersionIfAbsent(ctx, v)
		unlock()
		if err == nil {
			s.remember(ctx, v)
			if inserted {
				observability.FromContext(ctx).WithFields(map[string]interface{}{
					"file": file,
					"hash": hash,
				}).Debug("file version created")
			}
			return v, inserted, nil
		}

		switch collab.KindOf(err) {
		case collab.KindConflict:
			// retried below
		case collab.KindInternal:
			return nil, false, collab.Wrap(collab.KindInternal, op, err)
		default:
			return nil, false, err
		}

		s.metrics.ObserveVersionConflict()
		if attempt >= s.config.MaxAttempts {
			return nil, false, collab.Wrap(collab.KindInternal, op,
				fmt.Errorf("gave up after %d attempts: %w", attempt, err))
		}

		observability.FromContext(ctx).WithError(err).
			WithField("attempt", attempt).
			Warn("version insert raced, retrying")

		if err := sleep(ctx, s.config.RetryBackoff*time.Duration(attempt)); err != nil {
			return nil, false, collab.Wrap(collab.KindInternal, op, err)
		}
	}
}

// GetVersion returns a stored version without creating it
func (s *Store) GetVersion(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, error) {
	const op = "versions.GetVersion"

	if err := validate(op, file, hash); err != nil {
		return nil, err
	}

	if v := s.cached(ctx, file, hash); v != nil {
		return v, nil
	}

	v, err := s.repo.FindVersion(ctx, file, hash)
	if err != nil {
		if collab.KindOf(err) == collab.KindNotFound {
			return nil, collab.E(collab.KindNotFound, op, fmt.Sprintf("version %s not found", collab.VersionRef{File: file, Hash: hash}))
		}
		return nil, collab.Wrap(collab.KindInternal, op, err)
	}

	s.remember(ctx, v)
	return v, nil
}

// cached returns the cached version or nil. Cache failures only cost a
// trip to storage.
func (s *Store) cached(ctx context.Context, file collab.FileID, hash collab.ContentHash) *collab.FileVersion {
	if s.cache == nil {
		return nil
	}

	v, layer, err := s.cache.Lookup(ctx, file, hash)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			observability.FromContext(ctx).WithError(err).Warn("version cache lookup failed")
		}
		s.metrics.ObserveCache("")
		return nil
	}
	s.metrics.ObserveCache(string(layer))
	return v
}

func (s *Store) remember(ctx context.Context, v *collab.FileVersion) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, v); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("version cache write failed")
	}
}

func validate(op string, file collab.FileID, hash collab.ContentHash) error {
	if file == "" {
		return collab.E(collab.KindInvalidArgument, op, "file id is required")
	}
	if hash == "" {
		return collab.E(collab.KindInvalidArgument, op, "hash is required")
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
