package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	i := Get()
	assert.Equal(t, Version, i.Version)
	assert.Equal(t, runtime.Version(), i.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, i.Platform)
}

func TestGetFullVersion_ShortensCommit(t *testing.T) {
	old := GitCommit
	t.Cleanup(func() { GitCommit = old })

	GitCommit = "0123456789abcdef"
	assert.Contains(t, GetFullVersion(), "commit: 0123456,")

	GitCommit = "unknown"
	assert.Contains(t, GetFullVersion(), "commit: unknown,")
}
