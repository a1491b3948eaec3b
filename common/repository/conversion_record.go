package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lyzr/glbconvert/common/db"
	"github.com/lyzr/glbconvert/common/models"
)

// ErrNotFound is returned when no record matches
var ErrNotFound = errors.New("conversion record not found")

// ConversionRecordSchema creates the conversion_record table
const ConversionRecordSchema = `
	CREATE TABLE IF NOT EXISTS conversion_record (
		id                 UUID PRIMARY KEY,
		digest             CHAR(64) NOT NULL,
		filename           TEXT NOT NULL DEFAULT '',
		quality            TEXT NOT NULL,
		compress_requested BOOLEAN NOT NULL,
		compression_level  SMALLINT NOT NULL,
		outcome            TEXT NOT NULL,
		error_kind         TEXT NOT NULL DEFAULT '',
		error              TEXT NOT NULL DEFAULT '',
		source_bytes       BIGINT NOT NULL DEFAULT 0,
		output_bytes       BIGINT NOT NULL DEFAULT 0,
		compression_ratio  DOUBLE PRECISION NOT NULL DEFAULT 0,
		convert_ms         BIGINT NOT NULL DEFAULT 0,
		compress_ms        BIGINT NOT NULL DEFAULT 0,
		total_ms           BIGINT NOT NULL DEFAULT 0,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// ConversionRecordIndex speeds up latest-by-digest lookups
const ConversionRecordIndex = `
	CREATE INDEX IF NOT EXISTS conversion_record_digest_created_idx
	ON conversion_record (digest, created_at DESC)`

// ConversionRecordRepository handles database operations for conversion records
type ConversionRecordRepository struct {
	db *db.DB
}

// NewConversionRecordRepository creates a new conversion record repository
func NewConversionRecordRepository(db *db.DB) *ConversionRecordRepository {
	return &ConversionRecordRepository{db: db}
}

// EnsureSchema creates the table and index if missing
func (r *ConversionRecordRepository) EnsureSchema(ctx context.Context) error {
	return r.db.EnsureSchema(ctx, ConversionRecordSchema, ConversionRecordIndex)
}

// Create inserts a new record
func (r *ConversionRecordRepository) Create(ctx context.Context, rec *models.ConversionRecord) error {
	query := `
		INSERT INTO conversion_record (
			id, digest, filename, quality, compress_requested, compression_level,
			outcome, error_kind, error, source_bytes, output_bytes, compression_ratio,
			convert_ms, compress_ms, total_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.Digest,
		rec.Filename,
		rec.Quality,
		rec.CompressRequest,
		rec.CompressionLevel,
		rec.Outcome,
		rec.ErrorKind,
		rec.Error,
		rec.SourceBytes,
		rec.OutputBytes,
		rec.CompressionRatio,
		rec.ConvertMillis,
		rec.CompressMillis,
		rec.TotalMillis,
		rec.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create conversion record: %w", err)
	}

	return nil
}

// LatestByDigest retrieves the most recent record for a digest
func (r *ConversionRecordRepository) LatestByDigest(ctx context.Context, digest string) (*models.ConversionRecord, error) {
	query := `
		SELECT id, digest, filename, quality, compress_requested, compression_level,
		       outcome, error_kind, error, source_bytes, output_bytes, compression_ratio,
		       convert_ms, compress_ms, total_ms, created_at
		FROM conversion_record
		WHERE digest = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	rec := &models.ConversionRecord{}
	err := r.db.QueryRow(ctx, query, digest).Scan(
		&rec.ID,
		&rec.Digest,
		&rec.Filename,
		&rec.Quality,
		&rec.CompressRequest,
		&rec.CompressionLevel,
		&rec.Outcome,
		&rec.ErrorKind,
		&rec.Error,
		&rec.SourceBytes,
		&rec.OutputBytes,
		&rec.CompressionRatio,
		&rec.ConvertMillis,
		&rec.CompressMillis,
		&rec.TotalMillis,
		&rec.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion record: %w", err)
	}

	return rec, nil
}

// CountByOutcome aggregates records per outcome for a digest
func (r *ConversionRecordRepository) CountByOutcome(ctx context.Context, digest string) (map[string]int64, error) {
	query := `
		SELECT outcome, COUNT(*)
		FROM conversion_record
		WHERE digest = $1
		GROUP BY outcome
	`

	rows, err := r.db.Query(ctx, query, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversion records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = n
	}

	return counts, rows.Err()
}
