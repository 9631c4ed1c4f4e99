// pkg/domain/model/format.go
package model

import "strings"

// Format is the container format of an image asset, identified by content
// sniffing rather than by file extension.
type Format string

const (
	FormatWebP  Format = "webp"
	FormatPNG   Format = "png"
	FormatJPEG  Format = "jpeg"
	FormatGIF   Format = "gif"
	FormatBMP   Format = "bmp"
	FormatTIFF  Format = "tiff"
	FormatHEIC  Format = "heic"
	FormatAVIF  Format = "avif"
	FormatOther Format = "other"
)

func (f Format) String() string {
	return string(f)
}

// Extension returns the canonical file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatTIFF:
		return ".tiff"
	case FormatOther:
		return ""
	default:
		return "." + string(f)
	}
}

// Lossless reports whether the format stores pixels without loss. Only
// lossless formats may be approved targets for watermarked assets.
func (f Format) Lossless() bool {
	switch f {
	case FormatWebP, FormatPNG, FormatBMP, FormatTIFF, FormatGIF:
		return true
	default:
		return false
	}
}

// ParseFormat maps a configuration token or file extension to a Format.
func ParseFormat(s string) Format {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "webp":
		return FormatWebP
	case "png":
		return FormatPNG
	case "jpg", "jpeg":
		return FormatJPEG
	case "gif":
		return FormatGIF
	case "bmp":
		return FormatBMP
	case "tif", "tiff":
		return FormatTIFF
	case "heic", "heif":
		return FormatHEIC
	case "avif":
		return FormatAVIF
	default:
		return FormatOther
	}
}

// ImageExtensions lists the extensions the orchestrator considers when it
// walks a directory.
var ImageExtensions = map[string]bool{
	".webp": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".heic": true,
	".heif": true,
	".avif": true,
}
