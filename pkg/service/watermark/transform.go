package watermark

import (
	"image"
	"math"
)

// Each carrier block is a 4x4 block of the Haar LL sub-band, which covers
// an 8x8 pixel area aligned with the JPEG luma block grid.
const (
	blockLL    = 4
	blockPixel = 2 * blockLL
)

// dct4[k][n] is the orthonormal DCT-II basis of size 4.
var dct4 = func() (c [blockLL][blockLL]float64) {
	for k := 0; k < blockLL; k++ {
		alpha := math.Sqrt(2.0 / blockLL)
		if k == 0 {
			alpha = math.Sqrt(1.0 / blockLL)
		}
		for n := 0; n < blockLL; n++ {
			c[k][n] = alpha * math.Cos(math.Pi*float64(2*n+1)*float64(k)/(2*blockLL))
		}
	}
	return c
}()

// carriers are the (row, column) DCT coefficients modulated in every block:
// the two lowest AC terms.
var carriers = [2][2]int{{0, 1}, {1, 0}}

// lumaPlane is the JFIF luma of an NRGBA image, indexed [y*w+x].
type lumaPlane struct {
	w, h int
	y    []float64
}

func newLumaPlane(img *image.NRGBA) *lumaPlane {
	b := img.Bounds()
	p := &lumaPlane{w: b.Dx(), h: b.Dy(), y: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < p.h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < p.w; x++ {
			px := row[x*4 : x*4+3]
			p.y[y*p.w+x] = 0.299*float64(px[0]) + 0.587*float64(px[1]) + 0.114*float64(px[2])
		}
	}
	return p
}

// blockGrid is the row-major layout of carrier blocks over an image.
type blockGrid struct {
	cols, rows int
}

func gridFor(b image.Rectangle) blockGrid {
	return blockGrid{cols: b.Dx() / blockPixel, rows: b.Dy() / blockPixel}
}

func (g blockGrid) count() int { return g.cols * g.rows }

// origin returns the top-left pixel of block i.
func (g blockGrid) origin(i int) (x0, y0 int) {
	return (i % g.cols) * blockPixel, (i / g.cols) * blockPixel
}

// haarLL computes the 4x4 LL sub-band of the orthonormal one-level Haar
// transform over the 8x8 pixel block at (x0, y0).
func (p *lumaPlane) haarLL(x0, y0 int) (ll [blockLL][blockLL]float64) {
	for m := 0; m < blockLL; m++ {
		top := (y0+2*m)*p.w + x0
		bottom := top + p.w
		for n := 0; n < blockLL; n++ {
			x := 2 * n
			ll[m][n] = (p.y[top+x] + p.y[top+x+1] + p.y[bottom+x] + p.y[bottom+x+1]) / 2
		}
	}
	return ll
}

// dctCoefficient returns coefficient (u, v) of the 2-D orthonormal DCT of ll.
func dctCoefficient(ll *[blockLL][blockLL]float64, u, v int) float64 {
	var sum float64
	for m := 0; m < blockLL; m++ {
		for n := 0; n < blockLL; n++ {
			sum += dct4[u][m] * dct4[v][n] * ll[m][n]
		}
	}
	return sum
}

// addBasis adds d times DCT basis function (u, v), taken back through the
// inverse Haar transform with zero detail bands, to the 8x8 pixel delta
// block.
func addBasis(delta *[blockPixel][blockPixel]float64, u, v int, d float64) {
	for m := 0; m < blockLL; m++ {
		for n := 0; n < blockLL; n++ {
			px := d * dct4[u][m] * dct4[v][n] / 2
			delta[2*m][2*n] += px
			delta[2*m][2*n+1] += px
			delta[2*m+1][2*n] += px
			delta[2*m+1][2*n+1] += px
		}
	}
}

// quantizeTarget returns the lattice point nearest to c that encodes bit
// under quantisation index modulation with step q. Lattice points for bit
// b are (k + 1/4 + b/2)·q.
func quantizeTarget(c, q float64, bit bool) float64 {
	offset := 0.25
	if bit {
		offset = 0.75
	}
	k := math.Round(c/q - offset)
	return (k + offset) * q
}

// bitScore is +1 at a bit-0 lattice point, -1 at a bit-1 lattice point and
// varies smoothly in between.
func bitScore(c, q float64) float64 {
	frac := c/q - math.Floor(c/q)
	return math.Cos(2 * math.Pi * (frac - 0.25))
}
