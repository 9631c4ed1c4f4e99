package skip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

func TestIsSkipped(t *testing.T) {
	p := New(File{
		All:       []string{"assets/pics/lelem.webp"},
		Metadata:  []string{"./assets/pics/scan.webp", "assets/both.webp"},
		Watermark: []string{"assets/logo.webp", "assets/both.webp"},
	})

	tests := []struct {
		path  string
		check model.Check
		want  bool
	}{
		{"assets/pics/lelem.webp", model.CheckFormat, true},
		{"assets/pics/lelem.webp", model.CheckMetadata, true},
		{"assets/pics/lelem.webp", model.CheckWatermark, true},
		{"assets/pics/scan.webp", model.CheckMetadata, true},
		{"assets/pics/scan.webp", model.CheckWatermark, false},
		{"assets/pics/scan.webp", model.CheckFormat, false},
		{"assets/logo.webp", model.CheckWatermark, true},
		{"assets/logo.webp", model.CheckFormat, false},
		{"assets/both.webp", model.CheckFormat, true},
		{"assets//pics/../pics/lelem.webp", model.CheckWatermark, true},
		{"assets/pics/other.webp", model.CheckWatermark, false},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+string(tt.check), func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsSkipped(tt.path, tt.check))
		})
	}
}

func TestLoadCreatesDefaults(t *testing.T) {
	name := filepath.Join(t.TempDir(), ".imageguard", "skip.yaml")
	p, err := Load(name)
	require.NoError(t, err)
	assert.True(t, p.IsSkipped("assets/pics/lelem.webp", model.CheckWatermark))
	require.FileExists(t, name)

	again, err := Load(name)
	require.NoError(t, err)
	assert.True(t, again.IsSkipped("assets/pics/lelem.webp", model.CheckMetadata))
}

func TestLoadFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "skip.yaml")
	require.NoError(t, os.WriteFile(name, []byte("watermark:\n  - assets/a.webp\n"), 0o644))
	p, err := Load(name)
	require.NoError(t, err)
	assert.True(t, p.IsSkipped("assets/a.webp", model.CheckWatermark))
	assert.False(t, p.IsSkipped("assets/a.webp", model.CheckMetadata))
	assert.False(t, p.IsSkipped("assets/pics/lelem.webp", model.CheckWatermark))

	require.NoError(t, os.WriteFile(name, []byte("all: [unterminated"), 0o644))
	_, err = Load(name)
	assert.ErrorIs(t, err, constant.ErrInvalidConfig)
}
