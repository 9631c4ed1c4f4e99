// pkg/service/inspect/inspect.go
package inspect

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"strings"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"

	"github.com/alexclairr/imageguard/internal/infra/storage"
	"github.com/alexclairr/imageguard/pkg/service/format"
	"github.com/alexclairr/imageguard/pkg/service/metadata"
	"github.com/alexclairr/imageguard/pkg/service/watermark"
)

// Info is everything imageguard can tell about one file without changing
// it.
type Info struct {
	Path     string
	Size     int64
	Decision format.Decision

	Fields    metadata.Fields
	FieldsErr error
	// Offending lists the fields a write run would remove or set.
	Offending []string

	Bounds    image.Rectangle
	Capacity  int
	Detection watermark.Detection
	// PixelErr is set when the pixels could not be decoded, in which case
	// Detection and DominantColor are empty.
	PixelErr      error
	DominantColor string
}

// Service inspects single files.
type Service struct {
	gate      *format.Gate
	sanitizer *metadata.Sanitizer
	codec     *watermark.Codec
	vips      *format.Vips
	store     storage.IAssetStore
}

// NewService wires an inspector. vips may be nil.
func NewService(gate *format.Gate, sanitizer *metadata.Sanitizer, codec *watermark.Codec, vips *format.Vips, store storage.IAssetStore) *Service {
	return &Service{gate: gate, sanitizer: sanitizer, codec: codec, vips: vips, store: store}
}

// Inspect reads path and reports its format decision, metadata fields,
// watermark detection and dominant colour. Only a file that cannot be
// read at all is an error.
func (s *Service) Inspect(ctx context.Context, path string) (*Info, error) {
	data, err := s.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	info := &Info{Path: path, Size: int64(len(data))}
	info.Decision = s.gate.CheckBytes(path, data)

	info.Fields, info.FieldsErr = metadata.ReadFile(path, info.Decision.Format)
	if info.FieldsErr == nil {
		info.Offending = s.sanitizer.AuditFields(info.Fields)
	}

	img, err := s.decode(ctx, path, data)
	if err != nil {
		info.PixelErr = err
		return info, nil
	}
	info.Bounds = img.Bounds()
	info.Capacity = s.codec.Capacity(img.Bounds())
	if info.Detection, err = s.codec.Verify(img); err != nil {
		info.PixelErr = err
	}
	info.DominantColor, err = DominantColor(img)
	if err != nil {
		log.Printf("[Inspect] %v", err)
	}
	return info, nil
}

func (s *Service) decode(ctx context.Context, path string, data []byte) (*image.NRGBA, error) {
	img, err := format.Decode(data)
	if err == nil || !s.vips.Available() {
		return img, err
	}
	log.Printf("[Inspect] Go decoders failed for %s (%v), trying vips", path, err)
	decoded, vErr := s.vips.Decode(ctx, path)
	if vErr != nil {
		return nil, fmt.Errorf("%w; vips: %v", err, vErr)
	}
	return imaging.Clone(decoded), nil
}

// DominantColor returns the colour of the largest k-means cluster of img as
// #rrggbb. The image is shrunk with nearest-neighbour sampling before
// clustering so that no blended colours appear; an image with at most
// prominentcolor.DefaultK distinct colours always gives the same answer.
func DominantColor(img image.Image) (string, error) {
	small := img
	if b := img.Bounds(); b.Dx() > prominentcolor.DefaultSize || b.Dy() > prominentcolor.DefaultSize {
		small = imaging.Fit(img, prominentcolor.DefaultSize, prominentcolor.DefaultSize, imaging.NearestNeighbor)
	}
	// no background masks: a white or black asset is a valid answer
	colors, err := prominentcolor.KmeansWithAll(prominentcolor.DefaultK, small,
		prominentcolor.ArgumentNoCropping, prominentcolor.DefaultSize, nil)
	if err != nil {
		return "", fmt.Errorf("k-means dominant colour: %w", err)
	}
	if len(colors) == 0 {
		return "", fmt.Errorf("k-means found no dominant colour")
	}
	// clusters come sorted by pixel count, largest first
	c := colors[0].Color
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), nil
}

// Render prints info for a terminal.
func (info *Info) Render(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "File:      %s (%s)\n", info.Path, humanize.IBytes(uint64(info.Size)))
	fmt.Fprintf(&b, "Format:    %s [%s] %s", info.Decision.Format, info.Decision.MIME, info.Decision.Status)
	if err := info.Decision.Err(); err != nil {
		fmt.Fprintf(&b, " (%v)", err)
	}
	b.WriteString("\n")

	switch {
	case info.FieldsErr != nil:
		fmt.Fprintf(&b, "Metadata:  unreadable: %v\n", info.FieldsErr)
	case len(info.Fields) == 0:
		b.WriteString("Metadata:  none\n")
	default:
		b.WriteString("Metadata:\n")
		for _, name := range info.Fields.Names() {
			fmt.Fprintf(&b, "  %-24s %s\n", name, truncate(info.Fields[name], 60))
		}
	}
	if len(info.Offending) > 0 {
		fmt.Fprintf(&b, "Offending: %s\n", strings.Join(info.Offending, ", "))
	} else if info.FieldsErr == nil {
		b.WriteString("Offending: none\n")
	}

	if info.PixelErr != nil {
		fmt.Fprintf(&b, "Pixels:    %v\n", info.PixelErr)
	} else {
		d := info.Detection
		fmt.Fprintf(&b, "Size:      %dx%d, %d watermark blocks\n", info.Bounds.Dx(), info.Bounds.Dy(), info.Capacity)
		fmt.Fprintf(&b, "Watermark: present=%t, %d/%d bit errors, similarity %.3f\n", d.Present, d.BitErrors, d.Bits, d.Similarity)
		if d.Present {
			fmt.Fprintf(&b, "Payload:   %q\n", d.Recovered)
		}
		if info.DominantColor != "" {
			fmt.Fprintf(&b, "Colour:    %s\n", info.DominantColor)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
