package imageops

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// Denoise always produces PNG (spec §3). The pack carries no ML inference
// runtime, so this applies a deterministic Gaussian-blur smoothing pass as
// a stand-in for a learned denoiser, on the ml_inference queue so it bears
// the same scheduling weight a real model would.
func Denoise(data []byte) (encoded []byte, ext string, err error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imageops: decode source: %w", err)
	}

	smoothed := imaging.Blur(src, 0.6)

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, smoothed); err != nil {
		return nil, "", fmt.Errorf("imageops: encode denoised png: %w", err)
	}
	return buf.Bytes(), "png", nil
}
