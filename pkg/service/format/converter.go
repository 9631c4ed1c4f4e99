// pkg/service/format/converter.go
package format

import (
	"context"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"

	"github.com/alexclairr/imageguard/internal/infra/storage"
	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

// ConvertOptions controls one conversion.
type ConvertOptions struct {
	// Overwrite replaces an existing target file.
	Overwrite bool
	// RemoveSource deletes the source once the target is written.
	RemoveSource bool
}

// ConvertResult describes one conversion.
type ConvertResult struct {
	Source     string
	Target     string
	SourceSize int64
	TargetSize int64
	// Skipped is set when the target already existed and was kept.
	Skipped bool
	Removed bool
}

// Savings is the fraction of bytes saved, negative when the target grew.
func (r ConvertResult) Savings() float64 {
	if r.SourceSize == 0 {
		return 0
	}
	return 1 - float64(r.TargetSize)/float64(r.SourceSize)
}

func (r ConvertResult) String() string {
	if r.Skipped {
		return fmt.Sprintf("SKIP: %s -> %s already exists", filepath.Base(r.Source), filepath.Base(r.Target))
	}
	return fmt.Sprintf("%s -> %s: %s -> %s (%.1f%% smaller)",
		filepath.Base(r.Source), filepath.Base(r.Target),
		humanize.IBytes(uint64(r.SourceSize)), humanize.IBytes(uint64(r.TargetSize)),
		r.Savings()*100)
}

// Summary totals a conversion batch.
type Summary struct {
	Converted  int
	Skipped    int
	Errors     int
	SourceSize int64
	TargetSize int64
}

// Add accounts for one result or error.
func (s *Summary) Add(r ConvertResult, err error) {
	switch {
	case err != nil:
		s.Errors++
	case r.Skipped:
		s.Skipped++
	default:
		s.Converted++
		s.SourceSize += r.SourceSize
		s.TargetSize += r.TargetSize
	}
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Converted: %d, Skipped: %d, Errors: %d", s.Converted, s.Skipped, s.Errors)
	if s.SourceSize > 0 {
		saved := s.SourceSize - s.TargetSize
		sign := ""
		if saved < 0 {
			sign, saved = "-", -saved
		}
		fmt.Fprintf(&b, "; %s -> %s, saved %s%s (%.1f%%)",
			humanize.IBytes(uint64(s.SourceSize)), humanize.IBytes(uint64(s.TargetSize)),
			sign, humanize.IBytes(uint64(saved)),
			(1-float64(s.TargetSize)/float64(s.SourceSize))*100)
	}
	return b.String()
}

// Converter transcodes convertible files into the gate's target format.
type Converter struct {
	gate  *Gate
	vips  *Vips
	store storage.IAssetStore
}

// NewConverter wires a converter. vips may be nil.
func NewConverter(gate *Gate, vips *Vips, store storage.IAssetStore) *Converter {
	return &Converter{gate: gate, vips: vips, store: store}
}

// TargetPath returns where the converted copy of path is written: same
// directory and stem, target extension.
func (c *Converter) TargetPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + c.gate.Target().Extension()
}

// Convert writes a lossless copy of path in the target format. The pixels
// are rendered upright; no metadata is carried over.
func (c *Converter) Convert(ctx context.Context, path string, opts ConvertOptions) (ConvertResult, error) {
	d, err := c.gate.Check(path)
	if err != nil {
		return ConvertResult{}, err
	}
	if d.Status != StatusNeedsConversion {
		if d.Status == StatusOK {
			return ConvertResult{}, fmt.Errorf("%s is already %s", path, d.Format)
		}
		return ConvertResult{}, d.Err()
	}

	res := ConvertResult{Source: path, Target: c.TargetPath(path)}
	src, err := c.store.Stat(ctx, path)
	if err != nil {
		return res, err
	}
	res.SourceSize = src.Size
	// A mislabelled file (JPEG bytes named x.webp) is converted in place.
	inPlace := res.Target == path

	exists, err := c.store.IsExist(ctx, res.Target)
	if err != nil {
		return res, err
	}
	if exists && !opts.Overwrite && !inPlace {
		res.Skipped = true
		if info, err := c.store.Stat(ctx, res.Target); err == nil {
			res.TargetSize = info.Size
		}
		return res, nil
	}

	img, err := c.decode(ctx, path, d.Format)
	if err != nil {
		return res, err
	}
	data, err := EncodeBytes(img, c.gate.Target())
	if err != nil {
		return res, err
	}
	if err := c.store.WriteAtomic(ctx, res.Target, data); err != nil {
		return res, err
	}
	res.TargetSize = int64(len(data))

	if opts.RemoveSource && !inPlace {
		if err := c.store.Remove(ctx, path); err != nil {
			return res, fmt.Errorf("remove converted source %s: %w", path, err)
		}
		res.Removed = true
	}
	log.Printf("[Converter] %s", res)
	return res, nil
}

func (c *Converter) decode(ctx context.Context, path string, f model.Format) (image.Image, error) {
	if needsVips[f] {
		img, err := c.vips.Decode(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", constant.ErrDecode, err)
		}
		return img, nil
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if c.vips.Available() {
			log.Printf("[Converter] Go decoders failed for %s (%v), trying vips", path, err)
			if img, vErr := c.vips.Decode(ctx, path); vErr == nil {
				return img, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", constant.ErrDecode, err)
	}
	return img, nil
}

// ConvertDir converts every convertible file directly inside dir, in name
// order. Per-file failures are reported in the summary and do not stop the
// batch.
func (c *Converter) ConvertDir(ctx context.Context, dir string, opts ConvertOptions, report func(ConvertResult, error)) (Summary, error) {
	files, err := c.store.List(ctx, dir)
	if err != nil {
		return Summary{}, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var sum Summary
	for _, f := range files {
		if filepath.Dir(f.Path) != filepath.Clean(dir) {
			continue
		}
		if !model.ImageExtensions[strings.ToLower(filepath.Ext(f.Path))] {
			continue
		}
		d, err := c.gate.Check(f.Path)
		if err != nil || d.Status != StatusNeedsConversion {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := c.Convert(ctx, f.Path, opts)
		sum.Add(res, err)
		if report != nil {
			report(res, err)
		}
	}
	return sum, nil
}
