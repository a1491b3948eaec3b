package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/glbconvert/cmd/converter/container"
	"github.com/lyzr/glbconvert/cmd/converter/service"
	"github.com/lyzr/glbconvert/common/cas"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/pipeline"
	"github.com/lyzr/glbconvert/common/quality"
	"github.com/lyzr/glbconvert/common/records"
)

// GLBContentType is the registered media type for binary glTF
const GLBContentType = "model/gltf-binary"

// Response headers describing how the GLB was produced
const (
	HeaderContentDigest    = "X-Content-Digest"
	HeaderCache            = "X-Cache"
	HeaderCompressionRatio = "X-Compression-Ratio"
)

// ConversionHandler handles conversion requests
type ConversionHandler struct {
	c *container.Container
}

// NewConversionHandler creates a new conversion handler
func NewConversionHandler(c *container.Container) *ConversionHandler {
	return &ConversionHandler{c: c}
}

// Convert converts an uploaded STEP file and streams back the GLB
// POST /convert
func (h *ConversionHandler) Convert(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "No file part")
	}
	if err := service.ValidateFilename(fh.Filename); err != nil {
		return errorJSON(c, http.StatusBadRequest, failureMessage(err))
	}

	opts, err := parseOptions(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, failureMessage(err))
	}

	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Uploaded file could not be read")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Uploaded file could not be read")
	}

	res, err := h.c.ConversionService.Convert(c.Request().Context(), service.ConvertRequest{
		Filename: fh.Filename,
		Content:  content,
		Options:  opts,
	})
	if err != nil {
		if failure.Is(err, failure.KindInput) {
			return errorJSON(c, http.StatusBadRequest, failureMessage(err))
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, GLBContentType)
	header.Set(HeaderContentDigest, res.Key.String())
	if res.CacheHit {
		header.Set(HeaderCache, "HIT")
	} else {
		header.Set(HeaderCache, "MISS")
	}
	if res.Compression != nil {
		header.Set(HeaderCompressionRatio, fmt.Sprintf("%.1f", res.Compression.Ratio))
	}

	return c.Attachment(res.Path, res.Key.String()+".glb")
}

// GetConversion returns the latest record for a digest
// GET /api/v1/conversions/:digest
func (h *ConversionHandler) GetConversion(c echo.Context) error {
	key, err := cas.ParseKey(c.Param("digest"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "digest must be 64 lower-case hex characters")
	}

	ctx := c.Request().Context()
	_, cached, err := h.c.Store.Lookup(key)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	rec, err := h.c.Records.Latest(ctx, key.String())
	if errors.Is(err, records.ErrNotFound) {
		if !cached {
			return errorJSON(c, http.StatusNotFound, "conversion not found")
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"digest": key,
			"cached": true,
		})
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	resp := map[string]interface{}{
		"digest": key,
		"cached": cached,
		"record": rec,
	}

	outcomes, err := h.c.Records.Outcomes(ctx, key.String())
	if err != nil {
		h.c.Components.Logger.Warn("failed to count outcomes", "digest", key.Short(), "error", err)
	} else if outcomes != nil {
		resp["outcomes"] = outcomes
	}

	return c.JSON(http.StatusOK, resp)
}

// parseOptions reads the optional form fields. Unlike the CLI, the HTTP
// default compression level is 0.
func parseOptions(c echo.Context) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	opts.Quality = c.FormValue("quality")
	if opts.Quality == "" {
		opts.Quality = string(quality.ProfileMedium)
	}

	compress := c.FormValue("compress")
	if compress == "" {
		compress = "true"
	}
	opts.Compress = strings.EqualFold(compress, "true")

	level, err := quality.ParseFormLevel(c.FormValue("compression_level"))
	if err != nil {
		return opts, err
	}
	opts.CompressionLevel = level

	return opts, nil
}

func failureMessage(err error) string {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]interface{}{
		"error": msg,
	})
}
