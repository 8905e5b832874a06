// Package filetype matches upload names against the extension allow-list and
// sniffs MIME types from magic bytes.
package filetype

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Allowed reports whether name ends with one of the allowed extensions,
// compared case-insensitively.
func Allowed(name string, allowed []string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// IsPDF reports whether name has a pdf extension.
func IsPDF(name string) bool {
	return Extension(name) == "pdf"
}

// IsImage reports whether name has one of the single-image extensions the pipeline decodes.
func IsImage(name string) bool {
	switch Extension(name) {
	case "jpg", "jpeg", "png", "tiff", "tif", "bmp":
		return true
	}
	return false
}

var extensionMimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"bmp":  "image/bmp",
}

// DetectMimeType sniffs data first and falls back to the extension of name.
func DetectMimeType(data []byte, name string) string {
	if mt := detectMimeTypeFromMagicBytes(data); mt != "" {
		return mt
	}
	if mt, ok := extensionMimeTypes[Extension(name)]; ok {
		return mt
	}
	return "application/octet-stream"
}

func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// TIFF, little or big endian
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	return ""
}
