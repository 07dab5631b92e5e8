package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/tabular/pkg/errors"
)

func TestParseTypes(t *testing.T) {
	types, err := ParseTypes([]string{"cpu", " Memory ", "trace"})
	require.NoError(t, err)
	assert.Equal(t, []ProfileType{CPUProfile, MemoryProfile, TraceProfile}, types)

	_, err = ParseTypes([]string{"cpu", "flame"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestStartStopWritesProfiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profiles")
	cfg := DefaultConfig()
	cfg.OutputDir = dir
	cfg.Types = []ProfileType{CPUProfile, MemoryProfile, GoroutineProfile}

	p := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, p.Start())
	files := p.Stop()

	require.Len(t, files, 3)
	for _, f := range files {
		assert.Equal(t, dir, filepath.Dir(f))
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.False(t, info.IsDir())
	}
	assert.Contains(t, filepath.Base(files[0]), "cpu_")
}

func TestStartFailsOnUnwritableDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(file, "profiles")
	err := New(cfg, nil).Start()
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
}
