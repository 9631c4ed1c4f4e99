package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexclairr/imageguard/pkg/constant"
)

func TestNewConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".imageguard", "conf.ini")
	cfg, err := NewConfig(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	assert.Equal(t, "© Alex Clairr 2025", cfg.GetString(constant.KeyWatermarkPayload))
	assert.Equal(t, []string{"webp"}, cfg.GetList(constant.KeyFormatApproved))
	assert.False(t, cfg.GetBool(constant.KeyFormatOverwrite))
	timeout, err := cfg.GetDuration(constant.KeyRunTimeout)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, timeout)
	maxErrs, err := cfg.GetInt(constant.KeyWatermarkMaxBitErrors)
	require.NoError(t, err)
	assert.Equal(t, -1, maxErrs)

	// the generated file reloads to the same values
	again, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.GetList(constant.KeyMetadataAllow), again.GetList(constant.KeyMetadataAllow))
	assert.Equal(t, "0 0 3 * * *", again.GetString(constant.KeyRunSchedule))
}

func TestFileAndEnvironmentPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.ini")
	require.NoError(t, os.WriteFile(path, []byte("[Watermark]\nStrength = 40\n\n[Format]\nApproved = webp, png\n"), 0o644))
	t.Setenv("IMAGEGUARD_WATERMARK_STRENGTH", "48")
	t.Setenv("IMAGEGUARD_RUN_FAILFAST", "true")

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	strength, err := cfg.GetFloat(constant.KeyWatermarkStrength)
	require.NoError(t, err)
	assert.Equal(t, 48.0, strength)
	assert.Equal(t, []string{"webp", "png"}, cfg.GetList(constant.KeyFormatApproved))
	assert.True(t, cfg.GetBool(constant.KeyRunFailFast))
	assert.Equal(t, "assets/pics", cfg.GetString(constant.KeyRunAssetDir))
}

func TestInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.ini")
	require.NoError(t, os.WriteFile(path, []byte("[Run]\nTimeout = soon\nWorkers = many\n"), 0o644))
	cfg, err := NewConfig(path)
	require.NoError(t, err)

	_, err = cfg.GetDuration(constant.KeyRunTimeout)
	assert.ErrorIs(t, err, constant.ErrInvalidConfig)
	_, err = cfg.GetInt(constant.KeyRunWorkers)
	assert.ErrorIs(t, err, constant.ErrInvalidConfig)
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.ini")
	require.NoError(t, os.WriteFile(path, []byte("[Run\nWorkers = 2\n"), 0o644))
	_, err := NewConfig(path)
	assert.ErrorIs(t, err, constant.ErrInvalidConfig)
}
