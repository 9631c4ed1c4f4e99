// pkg/service/format/codec.go
package format

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

// Decode decodes image bytes into NRGBA pixels. Orientation tags are not
// applied: approved containers store pixels upright.
func Decode(data []byte) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrDecode, err)
	}
	return imaging.Clone(img), nil
}

// Encode writes img losslessly in format f. Only approved formats can be
// encoded.
func Encode(w io.Writer, img image.Image, f model.Format) error {
	switch f {
	case model.FormatWebP:
		return nativewebp.Encode(w, img, nil)
	case model.FormatPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		return fmt.Errorf("%w: no lossless encoder for %s", constant.ErrFormatRejected, f)
	}
}

// EncodeBytes is Encode into memory.
func EncodeBytes(img image.Image, f model.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
