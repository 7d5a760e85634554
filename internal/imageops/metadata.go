package imageops

import (
	"bytes"
	"fmt"
	"image"

	"github.com/rwcarlsen/goexif/exif"

	"pixtools/internal/jobstore"
)

// ExtractMetadata implements the "metadata" operation: it produces no image
// artifact (spec §3) but populates the job's metadata field with dimensions,
// detected format, and any EXIF tags present.
func ExtractMetadata(data []byte) (jobstore.Metadata, error) {
	meta := jobstore.Metadata{}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		meta["width"] = fmt.Sprintf("%d", cfg.Width)
		meta["height"] = fmt.Sprintf("%d", cfg.Height)
		meta["format"] = format
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// Most non-JPEG sources (and JPEGs with no EXIF segment) land here;
		// this is not an operation failure, just an empty EXIF contribution.
		return meta, nil
	}

	for _, field := range []exif.FieldName{
		exif.Make, exif.Model, exif.DateTimeOriginal, exif.Orientation,
		exif.ExposureTime, exif.FNumber, exif.ISOSpeedRatings, exif.FocalLength,
	} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		meta[string(field)] = tag.String()
	}

	return meta, nil
}
