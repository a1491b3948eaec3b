package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome values stored on a conversion record
const (
	OutcomeCacheHit         = "cache_hit"
	OutcomeConverted        = "converted"
	OutcomeCompressed       = "compressed"
	OutcomeCompressFallback = "compress_fallback"
	OutcomeFailed           = "failed"
)

// ConversionRecord is the audit trail of one conversion request
// Maps to: conversion_record table
type ConversionRecord struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Lower-case hex sha256 of the uploaded bytes
	Digest string `db:"digest" json:"digest"`

	// Client-supplied filename; not part of the cache key
	Filename string `db:"filename" json:"filename"`

	// Requested options
	Quality          string `db:"quality" json:"quality"`
	CompressRequest  bool   `db:"compress_requested" json:"compress_requested"`
	CompressionLevel int    `db:"compression_level" json:"compression_level"`

	Outcome   string `db:"outcome" json:"outcome"`
	ErrorKind string `db:"error_kind" json:"error_kind,omitempty"`
	Error     string `db:"error" json:"error,omitempty"`

	SourceBytes      int64   `db:"source_bytes" json:"source_bytes"`
	OutputBytes      int64   `db:"output_bytes" json:"output_bytes"`
	CompressionRatio float64 `db:"compression_ratio" json:"compression_ratio"`

	ConvertMillis  int64 `db:"convert_ms" json:"convert_ms"`
	CompressMillis int64 `db:"compress_ms" json:"compress_ms"`
	TotalMillis    int64 `db:"total_ms" json:"total_ms"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Succeeded reports whether a GLB was returned to the client
func (r *ConversionRecord) Succeeded() bool {
	return r.Outcome != OutcomeFailed
}
