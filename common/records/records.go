// Package records keeps the audit trail of conversion requests.
//
// Records go to Postgres when a store is configured and are mirrored into
// the record cache so the latest one per digest is served without a query.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/glbconvert/common/cache"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/models"
	"github.com/lyzr/glbconvert/common/pipeline"
	"github.com/lyzr/glbconvert/common/repository"
)

// ErrNotFound is returned when no record exists for a digest
var ErrNotFound = errors.New("no conversion record for digest")

// Store persists records
type Store interface {
	Create(ctx context.Context, rec *models.ConversionRecord) error
	LatestByDigest(ctx context.Context, digest string) (*models.ConversionRecord, error)
	CountByOutcome(ctx context.Context, digest string) (map[string]int64, error)
}

// Service records and retrieves conversion records. Either backend may be nil.
type Service struct {
	store Store
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// New creates a record service
func New(store Store, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		store: store,
		cache: c,
		ttl:   ttl,
		log:   log,
	}
}

// Enabled reports whether any backend is configured
func (s *Service) Enabled() bool {
	return s.store != nil || s.cache != nil
}

// Record stores rec in every configured backend
func (s *Service) Record(ctx context.Context, rec *models.ConversionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var errs []error
	if s.store != nil {
		if err := s.store.Create(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	if s.cache != nil {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal conversion record: %w", err)
		}
		if err := s.cache.Set(ctx, rec.Digest, data, s.ttl); err != nil {
			errs = append(errs, fmt.Errorf("cache conversion record: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Latest returns the most recent record for digest
func (s *Service) Latest(ctx context.Context, digest string) (*models.ConversionRecord, error) {
	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, digest)
		if err != nil {
			s.log.Warn("record cache lookup failed", "digest", digest, "error", err)
		} else if ok {
			rec := &models.ConversionRecord{}
			if err := json.Unmarshal(data, rec); err == nil {
				return rec, nil
			}
			s.log.Warn("discarding unreadable cached record", "digest", digest)
		}
	}

	if s.store == nil {
		return nil, ErrNotFound
	}

	rec, err := s.store.LatestByDigest(ctx, digest)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.cache.Set(ctx, digest, data, s.ttl); err != nil {
				s.log.Warn("failed to warm record cache", "digest", digest, "error", err)
			}
		}
	}
	return rec, nil
}

// Outcomes counts historical outcomes for digest; nil without a store
func (s *Service) Outcomes(ctx context.Context, digest string) (map[string]int64, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.CountByOutcome(ctx, digest)
}

// FromResult builds a record for one request. err is the pipeline error, if any.
func FromResult(digest, filename string, opts pipeline.Options, res *pipeline.Result, err error) *models.ConversionRecord {
	rec := &models.ConversionRecord{
		Digest:           digest,
		Filename:         filename,
		Quality:          opts.Quality,
		CompressRequest:  opts.Compress,
		CompressionLevel: opts.CompressionLevel,
	}

	if err != nil {
		rec.Outcome = models.OutcomeFailed
		rec.ErrorKind = string(failure.KindOf(err))
		rec.Error = err.Error()
		return rec
	}

	rec.Outcome = string(res.Outcome)
	rec.SourceBytes = res.SourceSize
	rec.OutputBytes = res.Size
	rec.TotalMillis = res.Duration.Milliseconds()
	if res.Conversion != nil {
		rec.ConvertMillis = res.Conversion.Duration.Milliseconds()
	}
	if res.Compression != nil {
		rec.CompressionRatio = res.Compression.Ratio
		rec.CompressMillis = res.Compression.Duration.Milliseconds()
	}
	if res.CompressionError != nil {
		rec.ErrorKind = string(failure.KindOf(res.CompressionError))
		rec.Error = res.CompressionError.Error()
	}
	return rec
}
