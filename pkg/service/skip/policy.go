// pkg/service/skip/policy.go
package skip

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

// DefaultAll is the built-in exemption written into a fresh skip file.
var DefaultAll = []string{"assets/pics/lelem.webp"}

// File is the on-disk shape of the skip file.
type File struct {
	All       []string `yaml:"all"`
	Metadata  []string `yaml:"metadata"`
	Watermark []string `yaml:"watermark"`
}

// Policy answers whether a check is skipped for a path. It is read-only
// after construction and safe for concurrent use.
type Policy struct {
	all    map[string]bool
	checks map[model.Check]map[string]bool
}

// New builds a policy from the skip file contents.
func New(f File) *Policy {
	p := &Policy{
		all: toSet(f.All),
		checks: map[model.Check]map[string]bool{
			model.CheckMetadata:  toSet(f.Metadata),
			model.CheckWatermark: toSet(f.Watermark),
		},
	}
	return p
}

func toSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p = Normalize(p); p != "" {
			set[p] = true
		}
	}
	return set
}

// Normalize turns a path into the repository-relative slash form used as
// the set key.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = path.Clean(filepath.ToSlash(p))
	return strings.TrimPrefix(p, "./")
}

// IsSkipped reports whether check is exempt for the repository-relative
// path rel. The format check is exempt only when every content check is.
func (p *Policy) IsSkipped(rel string, check model.Check) bool {
	key := Normalize(rel)
	if p.all[key] {
		return true
	}
	if check == model.CheckFormat {
		for _, c := range model.ContentChecks {
			if !p.checks[c][key] {
				return false
			}
		}
		return true
	}
	return p.checks[check][key]
}

// Load reads the skip file at name. A missing file is created with the
// default exemptions.
func Load(name string) (*Policy, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[SkipPolicy] skip file '%s' not found, creating it with defaults", name)
		f := File{All: DefaultAll}
		if err := write(name, f); err != nil {
			return nil, err
		}
		return New(f), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skip file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse skip file '%s': %v", constant.ErrInvalidConfig, name, err)
	}
	return New(f), nil
}

func write(name string, f File) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create skip file directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode skip file: %w", err)
	}
	header := []byte("# Repository-relative paths exempt from checks.\n")
	return os.WriteFile(name, append(header, data...), 0o644)
}
