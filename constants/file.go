package constants

import "strings"

// SourceType identifies the kind of input a pipeline run started from.
// Stable values: these exact strings appear in results and in the store.
type SourceType string

const (
	PDF   SourceType = "pdf"
	Image SourceType = "image"
	Text  SourceType = "text"
)

// AllowedExtensions holds the default allowed file extensions for document ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"heic": {},
	"heif": {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToSource maps a normalized file extension to its source type.
func MapExtToSource(ext string) (SourceType, bool) {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF, true
	case "jpg", "jpeg", "png", "tif", "tiff", "bmp", "heic", "heif":
		return Image, true
	case "txt":
		return Text, true
	}
	return "", false
}

// IsHEICExt reports whether ext names an Apple HEIC/HEIF container.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}
