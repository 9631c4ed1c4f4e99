// pkg/service/metadata/sanitizer.go
package metadata

import (
	"fmt"
	"log"
	"sort"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"github.com/alexclairr/imageguard/internal/pkg/container"
	"github.com/alexclairr/imageguard/pkg/constant"
)

// Sanitizer enforces a Policy on container metadata. It never looks at
// pixels.
type Sanitizer struct {
	policy *Policy
	im     *exifcommon.IfdMapping
	ti     *exif.TagIndex
}

// NewSanitizer prepares the EXIF tag tables and validates that every
// override names an ASCII tag of the primary image directory.
func NewSanitizer(policy *Policy) (*Sanitizer, error) {
	im := exifcommon.NewIfdMapping()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return nil, fmt.Errorf("load EXIF IFD mapping: %w", err)
	}
	s := &Sanitizer{policy: policy, im: im, ti: exif.NewTagIndex()}
	for _, o := range policy.Overrides() {
		if err := s.checkOverride(o); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Policy returns the enforced policy.
func (s *Sanitizer) Policy() *Policy { return s.policy }

func (s *Sanitizer) checkOverride(o Override) error {
	it, err := s.ti.GetWithName(exifcommon.IfdStandardIfdIdentity, o.Field)
	if err != nil {
		return fmt.Errorf("%w: override %q is not an EXIF field of the primary image", constant.ErrMetadata, o.Field)
	}
	if !it.DoesSupportType(exifcommon.TypeAscii) {
		return fmt.Errorf("%w: override %q is not a text field", constant.ErrMetadata, o.Field)
	}
	return nil
}

// Audit returns the sorted names of the fields that make meta
// non-compliant: fields outside the allow list, and override fields that
// are missing or carry another value. It does not modify meta.
func (s *Sanitizer) Audit(kind string, meta *container.Metadata) []string {
	return s.AuditFields(Extract(kind, meta))
}

// AuditFields is Audit over an already extracted field set, for containers
// the sanitizer cannot rewrite.
func (s *Sanitizer) AuditFields(fields Fields) []string {
	var offending []string
	for name := range fields {
		if !s.policy.Allowed(name) {
			offending = append(offending, name)
		}
	}
	for _, o := range s.policy.Overrides() {
		if v, ok := fields[o.Field]; !ok || v != o.Value {
			offending = append(offending, o.Field)
		}
	}
	sort.Strings(offending)
	return offending
}

// Sanitize returns a copy of meta holding only allowed fields, with every
// override applied. A failing override is a MetadataError; allowed EXIF
// tags that cannot be re-encoded are dropped.
func (s *Sanitizer) Sanitize(kind string, meta *container.Metadata) (*container.Metadata, error) {
	if meta == nil {
		meta = &container.Metadata{}
	}
	out := &container.Metadata{}
	if s.policy.Allowed(FieldXMP) {
		out.XMP = append([]byte(nil), meta.XMP...)
	}
	if s.policy.Allowed(FieldICC) {
		out.ICC = append([]byte(nil), meta.ICC...)
	}
	for _, t := range meta.Text {
		if s.policy.Allowed(chunkField(kind, t.Keyword)) {
			out.Text = append(out.Text, t)
		}
	}
	for _, c := range meta.Other {
		if s.policy.Allowed(chunkField(kind, c.Type)) {
			out.Other = append(out.Other, c)
		}
	}

	rawExif, err := s.buildExif(meta.Exif)
	if err != nil {
		return nil, err
	}
	out.Exif = rawExif
	return out, nil
}

// buildExif rebuilds an EXIF block from the allowed leaf tags of raw plus
// the overrides. The thumbnail directory never survives.
func (s *Sanitizer) buildExif(raw []byte) ([]byte, error) {
	var kept []exifTag
	if len(raw) > 0 {
		tags, err := exifTags(raw)
		if err != nil {
			log.Printf("[Sanitizer] dropping unreadable EXIF block: %v", err)
		}
		overridden := make(map[string]bool)
		for _, o := range s.policy.Overrides() {
			overridden[o.Field] = true
		}
		for _, t := range tags {
			if t.thumbnail() || overridden[t.name] || !s.policy.Allowed(t.name) {
				continue
			}
			kept = append(kept, t)
		}
	}
	overrides := s.policy.Overrides()
	if len(kept) == 0 && len(overrides) == 0 {
		return nil, nil
	}

	rootIb := exif.NewIfdBuilder(s.im, s.ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	for _, t := range kept {
		ib := rootIb
		if !isRootIfd(t.ifdPath) {
			child, err := exif.GetOrCreateIbFromRootIb(rootIb, t.ifdPath)
			if err != nil {
				log.Printf("[Sanitizer] dropping allowed tag %s: no builder for %s: %v", t.name, t.ifdPath, err)
				continue
			}
			ib = child
		}
		if err := ib.AddStandardWithName(t.name, t.raw.Value); err != nil {
			log.Printf("[Sanitizer] dropping allowed tag %s: %v", t.name, err)
		}
	}
	for _, o := range overrides {
		if err := rootIb.AddStandardWithName(o.Field, o.Value); err != nil {
			return nil, fmt.Errorf("%w: set %s: %v", constant.ErrMetadata, o.Field, err)
		}
	}

	encoded, err := exif.NewIfdByteEncoder().EncodeToExif(rootIb)
	if err != nil {
		return nil, fmt.Errorf("%w: encode EXIF: %v", constant.ErrMetadata, err)
	}
	return encoded, nil
}

func isRootIfd(path string) bool {
	return path == exifcommon.IfdStandardIfdIdentity.UnindexedString() || path == "IFD0"
}
