package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectedValuesWin(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v1.2.0", "1a2b3c4", "2025-03-01 10:00:00"
	assert.Equal(t, "v1.2.0, commit 1a2b3c4, built at 2025-03-01 10:00:00", GetVersionString())

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.0", info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestDevFallback(t *testing.T) {
	oldV := Version
	t.Cleanup(func() { Version = oldV })

	Version = "dev"
	assert.NotEmpty(t, GetVersion())
}
