package publish

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Platform media constraints and the transcode schedule.
const (
	maxUploadBytes  = 5 * 1024 * 1024
	maxEdgePx       = 1600
	jpegQualityTop  = 85
	jpegQualityMin  = 40
	jpegQualityStep = 10
	maxScalePasses  = 3
	rescaleFactor   = 0.75
)

var mediaMIMEs = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
}

// NormalizeMedia makes an image acceptable for upload: conforming images
// pass through untouched, everything else is decoded, scaled down and
// re-encoded as JPEG with stepwise quality reduction. When three scale
// passes still cannot fit the ceiling the image is rejected.
func NormalizeMedia(data []byte) ([]byte, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("sniff image: %w", err)
	}
	mime, supported := mediaMIMEs[format]
	if !supported {
		return nil, "", fmt.Errorf("unsupported image format %q", format)
	}
	if len(data) <= maxUploadBytes {
		return data, mime, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	img := scaleToFit(src, maxEdgePx)

	for pass := 0; pass < maxScalePasses; pass++ {
		for quality := jpegQualityTop; quality >= jpegQualityMin; quality -= jpegQualityStep {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, "", fmt.Errorf("encode jpeg: %w", err)
			}
			if buf.Len() <= maxUploadBytes {
				return buf.Bytes(), "image/jpeg", nil
			}
		}
		img = scaleBy(img, rescaleFactor)
	}
	return nil, "", fmt.Errorf("image does not fit %d bytes after %d scale passes", maxUploadBytes, maxScalePasses)
}

// scaleToFit shrinks the image so its longest edge is at most maxEdge.
func scaleToFit(src image.Image, maxEdge int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return src
	}
	ratio := float64(maxEdge) / float64(w)
	if h > w {
		ratio = float64(maxEdge) / float64(h)
	}
	return resample(src, int(float64(w)*ratio), int(float64(h)*ratio))
}

func scaleBy(src image.Image, factor float64) image.Image {
	bounds := src.Bounds()
	return resample(src, int(float64(bounds.Dx())*factor), int(float64(bounds.Dy())*factor))
}

func resample(src image.Image, w, h int) image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
