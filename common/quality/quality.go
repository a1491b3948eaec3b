// Package quality maps user-facing quality and compression inputs to engine parameters.
// Everything here is pure.
package quality

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lyzr/glbconvert/common/failure"
)

// Profile is a named tessellation quality tier
type Profile string

const (
	ProfileLow    Profile = "low"
	ProfileMedium Profile = "medium"
	ProfileHigh   Profile = "high"
)

// Tolerances are the tessellation parameters for a profile.
// They are computed and reported but the conversion engine does not accept them.
type Tolerances struct {
	Linear  float64 `json:"tolerance"`
	Angular float64 `json:"angular_tolerance"`
}

// ResolveTolerances maps a profile name to its tolerances; unknown names get medium
func ResolveTolerances(profile string) Tolerances {
	switch Profile(profile) {
	case ProfileLow:
		return Tolerances{Linear: 1.0, Angular: 0.3}
	case ProfileHigh:
		return Tolerances{Linear: 0.01, Angular: 0.05}
	default:
		return Tolerances{Linear: 0.1, Angular: 0.1}
	}
}

// Mode selects the gltfpack compression flag class
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeAdvanced Mode = "advanced"
)

// AdvancedThreshold is the lowest level that selects ModeAdvanced
const AdvancedThreshold = 8

// ResolveMode maps a compression level to a mode
func ResolveMode(level int) Mode {
	if level >= AdvancedThreshold {
		return ModeAdvanced
	}
	return ModeStandard
}

// Flag returns the gltfpack command-line flag for the mode
func (m Mode) Flag() string {
	if m == ModeAdvanced {
		return "-cc"
	}
	return "-c"
}

// Compression level bounds
const (
	MinLevel     = 0
	MaxLevel     = 10
	DefaultLevel = 10
)

// QuantizationParams are per-attribute bit depths handed to the compressor verbatim.
// Documented ranges: position 10-16, normal 8-12, texcoord 10-14, color 8-10.
type QuantizationParams struct {
	PositionBits int `json:"position_bits"`
	NormalBits   int `json:"normal_bits"`
	TexcoordBits int `json:"texcoord_bits"`
	ColorBits    int `json:"color_bits"`
}

// DefaultQuantization returns the documented defaults
func DefaultQuantization() QuantizationParams {
	return QuantizationParams{
		PositionBits: 14,
		NormalBits:   10,
		TexcoordBits: 12,
		ColorBits:    8,
	}
}

// Args renders the gltfpack quantization flags
func (q QuantizationParams) Args() []string {
	return []string{
		"-vp", strconv.Itoa(q.PositionBits),
		"-vn", strconv.Itoa(q.NormalBits),
		"-vt", strconv.Itoa(q.TexcoordBits),
		"-vc", strconv.Itoa(q.ColorBits),
	}
}

// ParseCLILevel parses a --compression-level value. Unparseable or
// out-of-range input falls back to DefaultLevel with a warning instead of failing.
func ParseCLILevel(raw string) (int, string) {
	level, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultLevel, fmt.Sprintf("invalid compression_level value %q, using default %d", raw, DefaultLevel)
	}
	if level < MinLevel || level > MaxLevel {
		return DefaultLevel, fmt.Sprintf("compression_level should be between %d and %d, using default %d", MinLevel, MaxLevel, DefaultLevel)
	}
	return level, ""
}

// ParseFormLevel parses the HTTP compression_level field. Empty means 0;
// garbage is an input error; out-of-range integers are clamped.
func ParseFormLevel(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, failure.Input("compression_level must be an integer, got %q", raw)
	}
	return Clamp(level), nil
}

// Clamp forces level into [MinLevel, MaxLevel]
func Clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
