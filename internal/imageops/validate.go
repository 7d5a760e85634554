// Package imageops is the pixel-level collaborator the orchestration engine
// dispatches to: format validation, conversion, denoising, and metadata
// extraction. Ported from the teacher's internal/imaging package.
package imageops

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// maxDimension and maxPixels guard against decompression bombs, the same
// bound the teacher applies in internal/imaging/validator.go.
const (
	maxDimension = 6000
	maxPixels    = int64(64 * 1024 * 1024)
)

// AllowedSourceFormats are the formats PixTools accepts as upload input.
var AllowedSourceFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
	"avif": true,
}

// ValidationResult is what Validate reports about an uploaded image.
type ValidationResult struct {
	Format string
	Width  int
	Height int
}

// DetectFormat identifies a format from magic bytes, never from a
// client-supplied Content-Type header (spec §4.6 step 2 needs the inferred
// source format, not the declared one).
func DetectFormat(data []byte) string {
	if len(data) < 12 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		switch string(data[8:12]) {
		case "avif", "avis":
			return "avif"
		}
	}
	return ""
}

// Validate performs format detection, size, and decompression-bomb checks.
func Validate(data []byte) (*ValidationResult, error) {
	format := DetectFormat(data)
	if format == "" {
		return nil, errors.New("imageops: unable to detect image format")
	}
	if !AllowedSourceFormats[format] {
		return nil, fmt.Errorf("imageops: format %s is not allowed", format)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if format != "avif" {
			return nil, fmt.Errorf("imageops: decode config: %w", err)
		}
		// Go's stdlib/x/image decoders do not understand AVIF; dimension
		// checks for avif sources are skipped and deferred to the codec
		// that ultimately decodes it during conversion.
		return &ValidationResult{Format: format}, nil
	}

	if cfg.Width > maxDimension || cfg.Height > maxDimension {
		return nil, fmt.Errorf("imageops: dimensions %dx%d exceed maximum %d", cfg.Width, cfg.Height, maxDimension)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, errors.New("imageops: image too large (potential decompression bomb)")
	}

	return &ValidationResult{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
