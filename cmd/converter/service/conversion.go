package service

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/lyzr/glbconvert/common/cas"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/pipeline"
	"github.com/lyzr/glbconvert/common/records"
)

// AllowedExtensions are the accepted CAD upload suffixes (case-insensitive)
var AllowedExtensions = []string{".step", ".stp"}

// Processor runs uploads through the conversion pipeline
type Processor interface {
	Process(ctx context.Context, content []byte, opts pipeline.Options) (*pipeline.Result, error)
}

// ConvertRequest is one upload
type ConvertRequest struct {
	Filename string
	Content  []byte
	Options  pipeline.Options
}

// ConversionService validates uploads and records every request
type ConversionService struct {
	pipeline Processor
	records  *records.Service
	log      *logger.Logger
}

// NewConversionService creates a new conversion service
func NewConversionService(p Processor, rec *records.Service, log *logger.Logger) *ConversionService {
	return &ConversionService{
		pipeline: p,
		records:  rec,
		log:      log,
	}
}

// ValidateFilename rejects missing names and non-STEP extensions
func ValidateFilename(name string) error {
	if name == "" {
		return failure.Input("No selected file")
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return failure.Input("Invalid file type. Please upload a .step or .stp file.")
}

// Convert runs the upload through the pipeline and records the outcome
func (s *ConversionService) Convert(ctx context.Context, req ConvertRequest) (*pipeline.Result, error) {
	if err := ValidateFilename(req.Filename); err != nil {
		return nil, err
	}

	log := s.log.WithContext(ctx)
	log.Info("conversion requested",
		"filename", req.Filename,
		"size_bytes", len(req.Content),
		"quality", req.Options.Quality,
		"compress", req.Options.Compress,
		"compression_level", req.Options.CompressionLevel,
	)

	res, err := s.pipeline.Process(ctx, req.Content, req.Options)
	if err != nil {
		log.Warn("conversion failed", "filename", req.Filename, "kind", failure.KindOf(err), "error", err)
	}

	s.record(ctx, log, req, res, err)
	return res, err
}

func (s *ConversionService) record(ctx context.Context, log *logger.Logger, req ConvertRequest, res *pipeline.Result, err error) {
	if s.records == nil || !s.records.Enabled() {
		return
	}

	digest := ""
	if res != nil {
		digest = string(res.Key)
	} else if len(req.Content) > 0 {
		digest = string(cas.ComputeKey(req.Content))
	}
	if digest == "" {
		return
	}

	rec := records.FromResult(digest, req.Filename, req.Options, res, err)
	if recErr := s.records.Record(context.WithoutCancel(ctx), rec); recErr != nil {
		log.Warn("failed to record conversion", "digest", digest, "error", recErr)
	}
}
