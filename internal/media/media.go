// Package media handles image detection and optimization for tool results.
// Images returned over MCP are embedded as base64 content blocks, so large
// files are resized and recompressed to keep response payloads small.
package media

import (
	"encoding/base64"

	"github.com/gabriel-vasile/mimetype"
)

// Payload limits for images embedded in tool results. Base64 inflates by
// 4/3, so 768KB of raw bytes keeps the encoded block near 1MB.
const (
	MaxDimension = 2000
	MaxBytes     = 768 * 1024
	MinQuality   = 35
	MaxQuality   = 85
)

// Image MIME types we will embed in a tool result.
var SupportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageData is a processed image ready to embed in a content block.
type ImageData struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Base64 returns the image data as a base64-encoded string.
func (img *ImageData) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// Size returns the size in bytes.
func (img *ImageData) Size() int {
	return len(img.Data)
}

// IsWithinLimits returns true if the image fits the payload budget.
func (img *ImageData) IsWithinLimits() bool {
	return img.Width <= MaxDimension &&
		img.Height <= MaxDimension &&
		len(img.Data) <= MaxBytes
}

// DetectMIME returns the MIME type from magic bytes (not file extension).
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsSupported returns true if the MIME type is an embeddable image.
func IsSupported(mimeType string) bool {
	return SupportedMIMETypes[mimeType]
}
