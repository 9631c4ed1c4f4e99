package inspect

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexclairr/imageguard/internal/infra/storage"
	"github.com/alexclairr/imageguard/pkg/domain/model"
	"github.com/alexclairr/imageguard/pkg/service/format"
	"github.com/alexclairr/imageguard/pkg/service/metadata"
	"github.com/alexclairr/imageguard/pkg/service/watermark"
)

func newService(t *testing.T) (*Service, *watermark.Codec) {
	t.Helper()
	gate, err := format.NewGate(format.GateConfig{
		Approved:    []string{"webp"},
		Convertible: []string{"jpeg", "png"},
		Target:      "webp",
	}, false)
	require.NoError(t, err)
	sanitizer, err := metadata.NewSanitizer(metadata.NewPolicy(nil, map[string]string{"Copyright": "© Alex Clairr 2025"}))
	require.NoError(t, err)
	payload, err := watermark.NewPayload("© Alex Clairr 2025")
	require.NoError(t, err)
	codec, err := watermark.NewCodec(payload, watermark.Options{MaxBitErrors: -1})
	require.NoError(t, err)
	return NewService(gate, sanitizer, codec, nil, storage.NewLocalStore()), codec
}

func stripes() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 192, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 192; x++ {
			c := color.NRGBA{R: 200, G: 40, B: 40, A: 255}
			if x%48 < 12 {
				c = color.NRGBA{R: 30, G: 60, B: 190, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestInspectWatermarkedFile(t *testing.T) {
	svc, codec := newService(t)
	marked, err := codec.Embed(stripes())
	require.NoError(t, err)
	data, err := format.EncodeBytes(marked, model.FormatWebP)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "marked.webp")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	info, err := svc.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, format.StatusOK, info.Decision.Status)
	assert.NoError(t, info.PixelErr)
	assert.True(t, info.Detection.Present)
	assert.Equal(t, "© Alex Clairr 2025", info.Detection.Recovered)
	assert.Equal(t, 24*16, info.Capacity)
	assert.Equal(t, []string{"Copyright"}, info.Offending)
	assert.Regexp(t, `^#[0-9a-f]{6}$`, info.DominantColor)

	var buf bytes.Buffer
	require.NoError(t, info.Render(&buf))
	assert.Contains(t, buf.String(), "present=true")
	assert.Contains(t, buf.String(), "Offending: Copyright")
}

func TestInspectUnreadablePixels(t *testing.T) {
	svc, _ := newService(t)
	path := filepath.Join(t.TempDir(), "notes.webp")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not pixels"), 0o644))

	info, err := svc.Inspect(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, format.StatusRejected, info.Decision.Status)
	assert.Error(t, info.PixelErr)
	assert.Empty(t, info.DominantColor)

	var buf bytes.Buffer
	require.NoError(t, info.Render(&buf))
	assert.Contains(t, buf.String(), "rejected")

	_, err = svc.Inspect(context.Background(), filepath.Join(t.TempDir(), "missing.webp"))
	assert.Error(t, err)
}

func TestDominantColor(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want string
	}{
		{name: "red with blue stripes", img: stripes(), want: "#c82828"},
		{name: "solid white", img: imaging.New(120, 90, color.White), want: "#ffffff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				got, err := DominantColor(tt.img)
				require.NoError(t, err)
				require.Equal(t, tt.want, got, "run %d", i)
			}
		})
	}

	_, err := DominantColor(image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err, "a fully transparent image has no colour")
}
