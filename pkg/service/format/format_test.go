package format

import (
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
	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(10 * x), G: uint8(15 * y), B: 90, A: 255})
		}
	}
	return img
}

func writeImage(t *testing.T, path string, f imaging.Format) {
	t.Helper()
	require.NoError(t, imaging.Save(testImage(), path+"."+map[imaging.Format]string{
		imaging.JPEG: "jpg", imaging.PNG: "png", imaging.GIF: "gif", imaging.BMP: "bmp", imaging.TIFF: "tiff",
	}[f]))
}

func defaultGate(t *testing.T, vips bool) *Gate {
	t.Helper()
	g, err := NewGate(GateConfig{
		Approved:    []string{"webp"},
		Convertible: []string{"jpeg", "png", "gif", "bmp", "tiff", "heic", "avif"},
		Target:      "webp",
	}, vips)
	require.NoError(t, err)
	return g
}

func TestNewGateValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GateConfig
	}{
		{name: "lossy approved", cfg: GateConfig{Approved: []string{"webp", "jpeg"}, Target: "webp"}},
		{name: "unwritable approved", cfg: GateConfig{Approved: []string{"webp", "bmp"}, Target: "webp"}},
		{name: "nothing approved", cfg: GateConfig{Target: "webp"}},
		{name: "target not approved", cfg: GateConfig{Approved: []string{"png"}, Target: "webp"}},
		{name: "unknown convertible", cfg: GateConfig{Approved: []string{"webp"}, Convertible: []string{"psd"}, Target: "webp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGate(tt.cfg, false)
			assert.ErrorIs(t, err, constant.ErrInvalidConfig)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		format model.Format
		vips   bool
		want   Status
	}{
		{model.FormatWebP, false, StatusOK},
		{model.FormatJPEG, false, StatusNeedsConversion},
		{model.FormatPNG, false, StatusNeedsConversion},
		{model.FormatTIFF, false, StatusNeedsConversion},
		{model.FormatHEIC, false, StatusRejected},
		{model.FormatHEIC, true, StatusNeedsConversion},
		{model.FormatAVIF, true, StatusNeedsConversion},
		{model.FormatOther, true, StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, defaultGate(t, tt.vips).Classify(tt.format))
		})
	}
}

func TestCheckSniffsContent(t *testing.T) {
	dir := t.TempDir()
	g := defaultGate(t, false)

	// JPEG bytes behind a .webp name
	base := filepath.Join(dir, "disguised")
	writeImage(t, base, imaging.JPEG)
	require.NoError(t, os.Rename(base+".jpg", base+".webp"))
	d, err := g.Check(base + ".webp")
	require.NoError(t, err)
	assert.Equal(t, model.FormatJPEG, d.Format)
	assert.Equal(t, StatusNeedsConversion, d.Status)
	assert.Equal(t, model.FormatWebP, d.Target)
	assert.ErrorIs(t, d.Err(), constant.ErrNeedsConversion)

	text := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(text, []byte("just some text"), 0o644))
	d, err = g.Check(text)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, d.Status)
	assert.ErrorIs(t, d.Err(), constant.ErrFormatRejected)

	webpData, err := EncodeBytes(testImage(), model.FormatWebP)
	require.NoError(t, err)
	d = g.CheckBytes("x.webp", webpData)
	assert.Equal(t, StatusOK, d.Status)
	assert.NoError(t, d.Err())
}

func TestEncodeDecodeLossless(t *testing.T) {
	for _, f := range []model.Format{model.FormatWebP, model.FormatPNG} {
		t.Run(f.String(), func(t *testing.T) {
			src := testImage()
			data, err := EncodeBytes(src, f)
			require.NoError(t, err)
			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, src.Pix, got.Pix)
		})
	}

	_, err := EncodeBytes(testImage(), model.FormatJPEG)
	assert.ErrorIs(t, err, constant.ErrFormatRejected)
	_, err = Decode([]byte("not an image"))
	assert.ErrorIs(t, err, constant.ErrDecode)
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := filepath.Join(dir, "photo")
	writeImage(t, base, imaging.PNG)

	c := NewConverter(defaultGate(t, false), nil, storage.NewLocalStore())
	res, err := c.Convert(ctx, base+".png", ConvertOptions{})
	require.NoError(t, err)
	assert.Equal(t, base+".webp", res.Target)
	assert.False(t, res.Skipped)
	assert.Positive(t, res.TargetSize)
	assert.FileExists(t, base+".png")

	data, err := os.ReadFile(base + ".webp")
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, testImage().Pix, got.Pix)

	// existing target is kept unless overwriting
	res, err = c.Convert(ctx, base+".png", ConvertOptions{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.String(), "SKIP")

	res, err = c.Convert(ctx, base+".png", ConvertOptions{Overwrite: true, RemoveSource: true})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.True(t, res.Removed)
	assert.NoFileExists(t, base+".png")
}

func TestConvertRejectsApprovedAndUnknown(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c := NewConverter(defaultGate(t, false), nil, storage.NewLocalStore())

	webpPath := filepath.Join(dir, "ok.webp")
	data, err := EncodeBytes(testImage(), model.FormatWebP)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(webpPath, data, 0o644))
	_, err = c.Convert(ctx, webpPath, ConvertOptions{})
	assert.Error(t, err)

	txt := filepath.Join(dir, "x.jpg")
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0o644))
	_, err = c.Convert(ctx, txt, ConvertOptions{})
	assert.ErrorIs(t, err, constant.ErrFormatRejected)
}

func TestConvertDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a"), imaging.JPEG)
	writeImage(t, filepath.Join(dir, "b"), imaging.GIF)
	writeImage(t, filepath.Join(dir, "c"), imaging.BMP)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeImage(t, filepath.Join(dir, "nested", "d"), imaging.JPEG)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10}, 0o644))

	c := NewConverter(defaultGate(t, false), nil, storage.NewLocalStore())
	var seen []string
	sum, err := c.ConvertDir(ctx, dir, ConvertOptions{}, func(r ConvertResult, err error) {
		seen = append(seen, filepath.Base(r.Source))
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Converted)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, []string{"a.jpg", "b.gif", "broken.jpg", "c.bmp"}, seen)
	assert.FileExists(t, filepath.Join(dir, "a.webp"))
	assert.NoFileExists(t, filepath.Join(dir, "nested", "d.webp"))
	assert.Contains(t, sum.String(), "Converted: 3")
}

func TestFindVipsMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	v := FindVips(filepath.Join(t.TempDir(), "no-vips"))
	assert.False(t, v.Available())
}
