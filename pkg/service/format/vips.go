// pkg/service/format/vips.go
package format

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Vips wraps the libvips command line tool, used to decode containers the
// Go decoders do not understand (HEIC, AVIF).
type Vips struct {
	path string
}

// FindVips locates the vips binary. A configured path wins when it exists;
// otherwise PATH is searched. The result is nil when vips is unavailable.
func FindVips(configured string) *Vips {
	if configured != "" && configured != "vips" {
		if _, err := os.Stat(configured); err == nil {
			log.Printf("[Vips] using configured binary '%s'", configured)
			return &Vips{path: configured}
		}
		log.Printf("[Vips] warning: configured path '%s' is invalid, searching PATH", configured)
	}
	found, err := exec.LookPath("vips")
	if err != nil {
		log.Println("[Vips] 'vips' not found; HEIC and AVIF sources cannot be converted")
		return nil
	}
	return &Vips{path: found}
}

// Available reports whether v can be used. A nil *Vips is unavailable.
func (v *Vips) Available() bool {
	return v != nil && v.path != ""
}

// Decode renders src upright into a lossless PNG in a scratch directory and
// decodes that.
func (v *Vips) Decode(ctx context.Context, src string) (image.Image, error) {
	if !v.Available() {
		return nil, fmt.Errorf("vips is not available")
	}
	tmpDir, err := os.MkdirTemp("", "imageguard-vips-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	out := filepath.Join(tmpDir, "decoded.png")
	cmd := exec.CommandContext(ctx, v.path, "autorot", src, out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("vips autorot failed: %w, stderr: %s", err, stderr.String())
	}

	img, err := imaging.Open(out)
	if err != nil {
		return nil, fmt.Errorf("decode vips output: %w", err)
	}
	return img, nil
}
