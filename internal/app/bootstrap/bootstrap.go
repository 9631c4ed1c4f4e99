// internal/app/bootstrap/bootstrap.go
package bootstrap

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/alexclairr/imageguard/pkg/config"
	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/service/skip"
)

// Bootstrapper prepares the repository-side state imageguard relies on:
// the asset directory and the skip file.
type Bootstrapper struct {
	root string
	cfg  *config.Config
}

func NewBootstrapper(root string, cfg *config.Config) *Bootstrapper {
	return &Bootstrapper{root: root, cfg: cfg}
}

// Resolve makes a configured path absolute against the repository root.
func (b *Bootstrapper) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.root, p)
}

// AssetDir returns the configured asset directory. A missing directory is
// only logged: explicit paths still work without it.
func (b *Bootstrapper) AssetDir() string {
	dir := b.Resolve(b.cfg.GetString(constant.KeyRunAssetDir))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Printf("[Bootstrap] asset directory '%s' does not exist", dir)
	}
	return dir
}

// SkipPolicy loads the skip file, creating it with the default exemptions
// on first use.
func (b *Bootstrapper) SkipPolicy() (*skip.Policy, error) {
	name := b.Resolve(b.cfg.GetString(constant.KeyRunSkipFile))
	if name == "" {
		return nil, fmt.Errorf("%w: %s is empty", constant.ErrInvalidConfig, constant.KeyRunSkipFile)
	}
	return skip.Load(name)
}
