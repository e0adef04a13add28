package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.CommitHash)
	assert.NotEmpty(t, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestInjectedValuesWin(t *testing.T) {
	oldVersion, oldCommit := Version, CommitHash
	t.Cleanup(func() { Version, CommitHash = oldVersion, oldCommit })

	Version, CommitHash = "v1.2.3", "abc123"
	info := Get()

	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "abc123", info.CommitHash)
	assert.Contains(t, info.String(), "mvrp v1.2.3 (commit abc123")
}
