// pkg/service/metadata/fields.go
package metadata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dsoprea/go-exif/v3"

	"github.com/alexclairr/imageguard/internal/pkg/container"
	"github.com/alexclairr/imageguard/pkg/constant"
)

// Field names for the non-EXIF payloads.
const (
	FieldXMP = "XMP"
	FieldICC = "ICCProfile"
	// FieldExif stands for an EXIF block that cannot be parsed into tags.
	FieldExif = "EXIF"
)

// thumbnailPrefix marks tags of the EXIF thumbnail directory, whose names
// collide with the primary image's.
const thumbnailPrefix = "IFD1:"

// Fields maps field names to display values.
type Fields map[string]string

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// chunkField names an ancillary chunk of the given container kind.
func chunkField(kind, typ string) string {
	switch kind {
	case container.PNG:
		return "PNG:" + typ
	case container.WebP:
		return "WebP:" + strings.TrimRight(typ, " ")
	default:
		return kind + ":" + typ
	}
}

// Extract lists every metadata field carried by meta.
func Extract(kind string, meta *container.Metadata) Fields {
	fields := Fields{}
	if meta == nil {
		return fields
	}
	if len(meta.Exif) > 0 {
		tags, err := exifTags(meta.Exif)
		if err != nil {
			fields[FieldExif] = err.Error()
		}
		for _, t := range tags {
			fields[t.name] = t.value
		}
	}
	if len(meta.XMP) > 0 {
		fields[FieldXMP] = fmt.Sprintf("%d bytes", len(meta.XMP))
	}
	if len(meta.ICC) > 0 {
		fields[FieldICC] = fmt.Sprintf("%d bytes", len(meta.ICC))
	}
	for _, t := range meta.Text {
		fields[chunkField(kind, t.Keyword)] = t.Value
	}
	for _, c := range meta.Other {
		fields[chunkField(kind, c.Type)] = fmt.Sprintf("%d bytes", len(c.Data))
	}
	return fields
}

// exifTag is one leaf EXIF entry.
type exifTag struct {
	name    string
	value   string
	ifdPath string
	raw     exif.ExifTag
}

func (t exifTag) thumbnail() bool {
	return strings.HasPrefix(t.name, thumbnailPrefix)
}

// exifTags flattens an EXIF block. Sub-IFD pointer tags are structure, not
// fields, and are left out.
func exifTags(raw []byte) ([]exifTag, error) {
	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: parse EXIF: %v", constant.ErrDecode, err)
	}
	tags := make([]exifTag, 0, len(entries))
	for _, e := range entries {
		if e.ChildIfdPath != "" || e.TagName == "" {
			continue
		}
		name := e.TagName
		if e.IfdPath == "IFD1" || strings.HasPrefix(e.IfdPath, "IFD1/") {
			name = thumbnailPrefix + name
		}
		value := e.Formatted
		if s, ok := e.Value.(string); ok {
			value = s
		}
		tags = append(tags, exifTag{
			name:    name,
			value:   strings.ReplaceAll(value, "\x00", ""),
			ifdPath: e.IfdPath,
			raw:     e,
		})
	}
	return tags, nil
}
