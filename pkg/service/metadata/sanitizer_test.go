package metadata

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexclairr/imageguard/internal/pkg/container"
	"github.com/alexclairr/imageguard/pkg/constant"
)

const (
	canonicalCopyright = "© Alex Clairr 2025"
	canonicalArtist    = "Alex Clairr"
)

type exifSpec struct {
	root map[string]any
	exif map[string]any
	gps  map[string]any
}

func buildTestExif(t *testing.T, spec exifSpec) []byte {
	t.Helper()
	im := exifcommon.NewIfdMapping()
	require.NoError(t, exifcommon.LoadStandardIfds(im))
	ti := exif.NewTagIndex()
	rootIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	for name, v := range spec.root {
		require.NoError(t, rootIb.AddStandardWithName(name, v))
	}
	for path, tags := range map[string]map[string]any{"IFD/Exif": spec.exif, "IFD/GPSInfo": spec.gps} {
		if len(tags) == 0 {
			continue
		}
		ib, err := exif.GetOrCreateIbFromRootIb(rootIb, path)
		require.NoError(t, err)
		for name, v := range tags {
			require.NoError(t, ib.AddStandardWithName(name, v))
		}
	}
	raw, err := exif.NewIfdByteEncoder().EncodeToExif(rootIb)
	require.NoError(t, err)
	return raw
}

func gpsExif(t *testing.T) []byte {
	return buildTestExif(t, exifSpec{
		root: map[string]any{"Make": "Canon", "Copyright": "someone else"},
		exif: map[string]any{"ColorSpace": []uint16{1}},
		gps: map[string]any{
			"GPSLatitudeRef": "N",
			"GPSLatitude": []exifcommon.Rational{
				{Numerator: 51, Denominator: 1},
				{Numerator: 30, Denominator: 1},
				{Numerator: 0, Denominator: 1},
			},
		},
	})
}

func newTestSanitizer(t *testing.T, allow ...string) *Sanitizer {
	t.Helper()
	s, err := NewSanitizer(NewPolicy(allow, map[string]string{
		"Copyright": canonicalCopyright,
		"Artist":    canonicalArtist,
	}))
	require.NoError(t, err)
	return s
}

func TestExtract(t *testing.T) {
	meta := &container.Metadata{
		Exif:  gpsExif(t),
		XMP:   []byte("<xmp/>"),
		Text:  []container.TextChunk{{Type: "tEXt", Keyword: "Comment", Value: "hi"}},
		Other: []container.RawChunk{{Type: "tIME", Data: make([]byte, 7)}},
	}
	fields := Extract(container.PNG, meta)

	assert.Equal(t, "Canon", fields["Make"])
	assert.Equal(t, "N", fields["GPSLatitudeRef"])
	assert.Contains(t, fields, "GPSLatitude")
	assert.Contains(t, fields, "ColorSpace")
	assert.Equal(t, "hi", fields["PNG:Comment"])
	assert.Contains(t, fields, "PNG:tIME")
	assert.Contains(t, fields, FieldXMP)
	assert.NotContains(t, fields, "GPSTag")
	assert.NotContains(t, fields, "ExifTag")
}

func TestExtractUnreadableExif(t *testing.T) {
	fields := Extract(container.WebP, &container.Metadata{Exif: []byte("garbage!")})
	assert.Contains(t, fields, FieldExif)
}

func TestAuditCitesEveryOffender(t *testing.T) {
	s := newTestSanitizer(t, "ColorSpace", FieldICC)
	meta := &container.Metadata{Exif: gpsExif(t), ICC: []byte("profile")}

	got := s.Audit(container.WebP, meta)
	want := []string{"Artist", "Copyright", "GPSLatitude", "GPSLatitudeRef", "Make"}
	assert.Empty(t, cmp.Diff(want, got))
}

func TestSanitizeClosure(t *testing.T) {
	tests := []struct {
		name  string
		kind  string
		allow []string
		meta  *container.Metadata
	}{
		{
			name:  "gps and camera tags",
			kind:  container.WebP,
			allow: []string{"ColorSpace"},
			meta:  &container.Metadata{Exif: gpsExif(t), XMP: []byte("<xmp/>"), ICC: []byte("p")},
		},
		{
			name:  "png text",
			kind:  container.PNG,
			allow: []string{"PNG:Title", FieldICC},
			meta: &container.Metadata{
				ICC: []byte("p"),
				Text: []container.TextChunk{
					{Type: "tEXt", Keyword: "Title", Value: "sunset"},
					{Type: "tEXt", Keyword: "Comment", Value: "shot near home"},
				},
				Other: []container.RawChunk{{Type: "tIME", Data: make([]byte, 7)}},
			},
		},
		{
			name: "nothing at all",
			kind: container.WebP,
			meta: &container.Metadata{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSanitizer(t, tt.allow...)
			before := tt.meta.Clone()

			out, err := s.Sanitize(tt.kind, tt.meta)
			require.NoError(t, err)
			assert.Empty(t, s.Audit(tt.kind, out))
			assert.Empty(t, cmp.Diff(before, tt.meta), "input was modified")

			for name := range Extract(tt.kind, out) {
				assert.True(t, s.Policy().Allowed(name), "field %s survived", name)
			}
		})
	}
}

func TestSanitizeKeepsAllowedFields(t *testing.T) {
	s := newTestSanitizer(t, "ColorSpace", "PNG:Title", FieldICC)
	out, err := s.Sanitize(container.PNG, &container.Metadata{
		Exif: gpsExif(t),
		ICC:  []byte("profile"),
		Text: []container.TextChunk{{Type: "tEXt", Keyword: "Title", Value: "sunset"}},
	})
	require.NoError(t, err)

	fields := Extract(container.PNG, out)
	assert.Contains(t, fields, "ColorSpace")
	assert.Equal(t, "sunset", fields["PNG:Title"])
	assert.Equal(t, []byte("profile"), out.ICC)
	assert.NotContains(t, fields, "Make")
	assert.NotContains(t, fields, "GPSLatitude")
}

func TestOverridesWin(t *testing.T) {
	// Even an allow-listed field is replaced by its override.
	s := newTestSanitizer(t, "Copyright")
	out, err := s.Sanitize(container.WebP, &container.Metadata{Exif: gpsExif(t)})
	require.NoError(t, err)

	fields := Extract(container.WebP, out)
	assert.Equal(t, canonicalCopyright, fields["Copyright"])
	assert.Equal(t, canonicalArtist, fields["Artist"])
}

func TestInvalidOverrides(t *testing.T) {
	for _, field := range []string{"GPSLatitude", "ImageWidth", "NoSuchTag"} {
		t.Run(field, func(t *testing.T) {
			_, err := NewSanitizer(NewPolicy(nil, map[string]string{field: "x"}))
			assert.ErrorIs(t, err, constant.ErrMetadata)
		})
	}
}

func TestSanitizedPNGRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	dirty, err := container.Write(container.PNG, buf.Bytes(), &container.Metadata{
		Exif: gpsExif(t),
		Text: []container.TextChunk{{Type: "tEXt", Keyword: "Software", Value: "editor"}},
	})
	require.NoError(t, err)

	meta, err := container.Read(container.PNG, dirty)
	require.NoError(t, err)
	s := newTestSanitizer(t)
	require.NotEmpty(t, s.Audit(container.PNG, meta))

	clean, err := s.Sanitize(container.PNG, meta)
	require.NoError(t, err)
	written, err := container.Write(container.PNG, dirty, clean)
	require.NoError(t, err)

	reread, err := container.Read(container.PNG, written)
	require.NoError(t, err)
	assert.Empty(t, s.Audit(container.PNG, reread))
}
