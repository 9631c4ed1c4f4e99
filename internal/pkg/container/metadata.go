// Package container reads and rewrites the metadata carried by the image
// containers imageguard can write (WebP and PNG). It never touches the
// compressed image stream itself.
package container

import (
	"bytes"
	"errors"
	"fmt"
)

// Container kinds understood by Read and Write.
const (
	WebP = "webp"
	PNG  = "png"
)

var (
	// ErrMalformed is returned for truncated or structurally invalid files.
	ErrMalformed = errors.New("malformed container")
	// ErrUnsupported is returned for container kinds without a metadata codec.
	ErrUnsupported = errors.New("unsupported container")
)

// Metadata is the metadata payload of a container. Payloads are kept raw;
// interpretation (EXIF tags, policy) happens in the metadata service.
type Metadata struct {
	// Exif is a TIFF-structured EXIF block, starting at the byte-order mark.
	Exif []byte
	XMP  []byte
	// ICC is the container-specific colour profile payload: the raw profile
	// for WebP, the name+compressed profile body of an iCCP chunk for PNG.
	ICC  []byte
	Text []TextChunk
	// Other holds ancillary chunks that are neither image data nor one of
	// the payloads above (e.g. tIME, vendor chunks).
	Other []RawChunk
}

// TextChunk is a PNG tEXt/zTXt/iTXt chunk.
type TextChunk struct {
	Type    string
	Keyword string
	Value   string
	Raw     []byte
}

// RawChunk is an uninterpreted chunk.
type RawChunk struct {
	Type string
	Data []byte
}

// Empty reports whether the container would carry no metadata at all.
func (m *Metadata) Empty() bool {
	return m == nil || (len(m.Exif) == 0 && len(m.XMP) == 0 && len(m.ICC) == 0 && len(m.Text) == 0 && len(m.Other) == 0)
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return &Metadata{}
	}
	out := &Metadata{
		Exif: bytes.Clone(m.Exif),
		XMP:  bytes.Clone(m.XMP),
		ICC:  bytes.Clone(m.ICC),
	}
	for _, t := range m.Text {
		t.Raw = bytes.Clone(t.Raw)
		out.Text = append(out.Text, t)
	}
	for _, c := range m.Other {
		out.Other = append(out.Other, RawChunk{Type: c.Type, Data: bytes.Clone(c.Data)})
	}
	return out
}

// Read extracts the metadata of a container of the given kind.
func Read(kind string, data []byte) (*Metadata, error) {
	switch kind {
	case WebP:
		return ReadWebP(data)
	case PNG:
		return ReadPNG(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}

// Write returns data with all of its metadata replaced by meta. The image
// stream is copied through unchanged.
func Write(kind string, data []byte, meta *Metadata) ([]byte, error) {
	if meta == nil {
		meta = &Metadata{}
	}
	switch kind {
	case WebP:
		return WriteWebP(data, meta)
	case PNG:
		return WritePNG(data, meta)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}

// exifHeader is the APP1-style prefix some writers leave in front of the
// TIFF structure.
var exifHeader = []byte("Exif\x00\x00")

func trimExifHeader(b []byte) []byte {
	return bytes.TrimPrefix(b, exifHeader)
}
