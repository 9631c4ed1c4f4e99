// pkg/domain/model/asset.go
package model

import (
	"image"

	"github.com/alexclairr/imageguard/internal/pkg/container"
)

// Asset is an image file loaded into memory. Sanitizer and codec mutate it
// in place; the orchestrator persists it by re-encoding.
type Asset struct {
	Path   string
	Format Format
	// Data holds the bytes as read from storage.
	Data  []byte
	Image *image.NRGBA
	Meta  *container.Metadata

	// PixelsDirty means Image no longer matches the image stream in Data
	// and must be re-encoded.
	PixelsDirty bool
	// MetaDirty means Meta must be written back into the container.
	MetaDirty bool
}

// Dirty reports whether persisting the asset would change its bytes.
func (a *Asset) Dirty() bool {
	return a.PixelsDirty || a.MetaDirty
}
