// pkg/service/watermark/codec.go
package watermark

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/alexclairr/imageguard/pkg/constant"
)

// Defaults for Options.
const (
	DefaultStrength = 32
	DefaultPasses   = 6
)

// Options tunes the codec.
type Options struct {
	// Strength is the quantisation step of the carrier coefficients. Larger
	// steps survive harsher recompression at the cost of visibility.
	Strength float64
	// MaxBitErrors is the Hamming distance up to which a watermark still
	// counts as present. A negative value selects Len()/16; zero demands an
	// exact match.
	MaxBitErrors int
	// Passes bounds the embed refinement passes that correct for clipping
	// and rounding.
	Passes int
}

// Detection is the outcome of Verify.
type Detection struct {
	Present   bool
	BitErrors int
	Bits      int
	// Similarity is the fraction of payload bits recovered correctly.
	Similarity float64
	// Recovered is the decoded payload text, damaged where bits were wrong.
	Recovered string
}

// Codec embeds and verifies one payload.
type Codec struct {
	payload      Payload
	strength     float64
	maxBitErrors int
	passes       int
}

// NewCodec returns a codec for p. A zero Strength or Passes takes its
// default; MaxBitErrors is used as given unless negative.
func NewCodec(p Payload, opts Options) (*Codec, error) {
	if p.Len() == 0 {
		return nil, fmt.Errorf("%w: watermark payload is empty", constant.ErrInvalidConfig)
	}
	c := &Codec{
		payload:      p,
		strength:     opts.Strength,
		maxBitErrors: opts.MaxBitErrors,
		passes:       opts.Passes,
	}
	if c.strength == 0 {
		c.strength = DefaultStrength
	}
	if c.strength < 4 || c.strength > 255 {
		return nil, fmt.Errorf("%w: watermark strength %v out of range [4, 255]", constant.ErrInvalidConfig, c.strength)
	}
	if c.passes <= 0 {
		c.passes = DefaultPasses
	}
	if c.maxBitErrors < 0 {
		c.maxBitErrors = p.Len() / 16
	}
	if c.maxBitErrors >= p.Len()/2 {
		return nil, fmt.Errorf("%w: max bit errors %d would accept random images", constant.ErrInvalidConfig, c.maxBitErrors)
	}
	return c, nil
}

// Payload returns the payload the codec embeds.
func (c *Codec) Payload() Payload { return c.payload }

// MaxBitErrors returns the effective verification threshold.
func (c *Codec) MaxBitErrors() int { return c.maxBitErrors }

// Capacity returns the number of carrier blocks available in an image of
// the given bounds.
func (c *Codec) Capacity(b image.Rectangle) int { return gridFor(b).count() }

func (c *Codec) grid(img image.Image) (blockGrid, error) {
	b := img.Bounds()
	if b.Empty() {
		return blockGrid{}, fmt.Errorf("%w: empty image", constant.ErrDecode)
	}
	g := gridFor(b)
	if g.count() < c.payload.Len() {
		return blockGrid{}, fmt.Errorf("%w: %dx%d image holds %d blocks, payload needs %d",
			constant.ErrDecode, b.Dx(), b.Dy(), g.count(), c.payload.Len())
	}
	return g, nil
}

// Embed returns a copy of img carrying the payload. Pixels whose carrier
// coefficients already sit close enough to their lattice points are left
// alone, so embedding into an already watermarked image is a no-op.
func (c *Codec) Embed(img image.Image) (*image.NRGBA, error) {
	g, err := c.grid(img)
	if err != nil {
		return nil, err
	}
	out := imaging.Clone(img)
	tolerance := c.strength / 8

	for pass := 0; pass < c.passes; pass++ {
		plane := newLumaPlane(out)
		changed := false
		for i := 0; i < g.count(); i++ {
			x0, y0 := g.origin(i)
			ll := plane.haarLL(x0, y0)
			bit := c.payload.Bit(i)

			var delta [blockPixel][blockPixel]float64
			moved := false
			for _, uv := range carriers {
				coef := dctCoefficient(&ll, uv[0], uv[1])
				d := quantizeTarget(coef, c.strength, bit) - coef
				if math.Abs(d) <= tolerance {
					continue
				}
				addBasis(&delta, uv[0], uv[1], d)
				moved = true
			}
			if moved {
				applyLumaDelta(out, x0, y0, &delta)
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out, nil
}

// applyLumaDelta shifts R, G and B of every pixel of the block by the same
// amount, which shifts luma by that amount wherever nothing clips.
func applyLumaDelta(img *image.NRGBA, x0, y0 int, delta *[blockPixel][blockPixel]float64) {
	for dy := 0; dy < blockPixel; dy++ {
		row := img.Pix[(y0+dy)*img.Stride:]
		for dx := 0; dx < blockPixel; dx++ {
			d := delta[dy][dx]
			if d == 0 {
				continue
			}
			px := row[(x0+dx)*4 : (x0+dx)*4+3]
			for ch := range px {
				px[ch] = clamp8(float64(px[ch]) + d)
			}
		}
	}
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// Extract recovers the payload-length bit sequence from img by a soft
// majority vote over every carrier coefficient assigned to each bit.
func (c *Codec) Extract(img image.Image) ([]bool, error) {
	g, err := c.grid(img)
	if err != nil {
		return nil, err
	}
	plane := newLumaPlane(imaging.Clone(img))
	votes := make([]float64, c.payload.Len())
	for i := 0; i < g.count(); i++ {
		x0, y0 := g.origin(i)
		ll := plane.haarLL(x0, y0)
		for _, uv := range carriers {
			votes[i%len(votes)] += bitScore(dctCoefficient(&ll, uv[0], uv[1]), c.strength)
		}
	}
	bits := make([]bool, len(votes))
	for i, v := range votes {
		bits[i] = v < 0
	}
	return bits, nil
}

// Verify reports whether img carries the payload.
func (c *Codec) Verify(img image.Image) (Detection, error) {
	bits, err := c.Extract(img)
	if err != nil {
		return Detection{}, err
	}
	errs := 0
	for i, b := range bits {
		if b != c.payload.Bit(i) {
			errs++
		}
	}
	return Detection{
		Present:    errs <= c.maxBitErrors,
		BitErrors:  errs,
		Bits:       len(bits),
		Similarity: 1 - float64(errs)/float64(len(bits)),
		Recovered:  bitsToText(bits),
	}, nil
}
