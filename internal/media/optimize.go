package media

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"

	// Register additional image formats
	_ "golang.org/x/image/webp"
)

// Quality levels to try (descending order)
var qualityLevels = []int{85, 75, 65, 55, 45, 35}

// Dimension levels to try if resizing needed (descending order)
var dimensionLevels = []int{2000, 1800, 1600, 1400, 1200, 1000, 800}

// Optimize resizes and compresses an image until it fits the payload
// budget. Input that is already within limits passes through untouched.
func Optimize(data []byte) (*ImageData, error) {
	mimeType := DetectMIME(data)
	if !IsSupported(mimeType) {
		return nil, fmt.Errorf("unsupported image type: %s", mimeType)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= MaxDimension && height <= MaxDimension && len(data) <= MaxBytes {
		return &ImageData{
			Data:     data,
			MimeType: mimeType,
			Width:    width,
			Height:   height,
		}, nil
	}

	return optimizeWithGridSearch(img, width, height, format)
}

// optimizeWithGridSearch tries dimension and quality combinations until one
// fits within limits, returning the first hit.
func optimizeWithGridSearch(img image.Image, origWidth, origHeight int, format string) (*ImageData, error) {
	maxDim := max(origWidth, origHeight)
	dimensions := make([]int, 0, len(dimensionLevels)+1)
	if maxDim <= MaxDimension {
		dimensions = append(dimensions, maxDim)
	} else {
		dimensions = append(dimensions, MaxDimension)
	}
	for _, d := range dimensionLevels {
		if d <= MaxDimension && d < maxDim && d != dimensions[0] {
			dimensions = append(dimensions, d)
		}
	}

	var smallest *ImageData

	for _, targetDim := range dimensions {
		resized := img
		newWidth, newHeight := origWidth, origHeight
		if origWidth > targetDim || origHeight > targetDim {
			resized = imaging.Fit(img, targetDim, targetDim, imaging.Lanczos)
			bounds := resized.Bounds()
			newWidth = bounds.Dx()
			newHeight = bounds.Dy()
		}

		for _, quality := range qualityLevels {
			encoded, mimeType, err := encodeImage(resized, format, quality)
			if err != nil {
				continue
			}

			if smallest == nil || len(encoded) < len(smallest.Data) {
				smallest = &ImageData{
					Data:     encoded,
					MimeType: mimeType,
					Width:    newWidth,
					Height:   newHeight,
				}
			}

			if len(encoded) <= MaxBytes {
				return &ImageData{
					Data:     encoded,
					MimeType: mimeType,
					Width:    newWidth,
					Height:   newHeight,
				}, nil
			}
		}

		// PNG and GIF ignore the quality knob, one encoding per dimension
		if format != "jpeg" && format != "webp" {
			continue
		}
	}

	if smallest != nil && len(smallest.Data) <= MaxBytes {
		return smallest, nil
	}
	if smallest != nil {
		return nil, fmt.Errorf("image could not be reduced below %dKB (got %dKB)",
			MaxBytes/1024, len(smallest.Data)/1024)
	}
	return nil, fmt.Errorf("failed to optimize image")
}

// encodeImage encodes an image in the specified format with given quality.
// Decode-only formats (webp) are re-encoded as JPEG.
func encodeImage(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer

	switch format {
	case "jpeg":
		err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
		return buf.Bytes(), "image/jpeg", err

	case "png":
		err := png.Encode(&buf, img)
		return buf.Bytes(), "image/png", err

	case "gif":
		err := gif.Encode(&buf, img, nil)
		return buf.Bytes(), "image/gif", err

	default:
		err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
		return buf.Bytes(), "image/jpeg", err
	}
}
