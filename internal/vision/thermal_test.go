package vision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThermalProbe(t *testing.T) {
	dir := t.TempDir()

	t.Run("ReadsMillidegrees", func(t *testing.T) {
		path := filepath.Join(dir, "temp")
		require.NoError(t, os.WriteFile(path, []byte("45500\n"), 0o644))

		celsius, ok := thermalProbe(path)()
		require.True(t, ok)
		assert.InDelta(t, 45.5, celsius, 0.001)
	})

	t.Run("MissingZone", func(t *testing.T) {
		_, ok := thermalProbe(filepath.Join(dir, "absent"))()
		assert.False(t, ok)
	})

	t.Run("GarbageContent", func(t *testing.T) {
		path := filepath.Join(dir, "garbage")
		require.NoError(t, os.WriteFile(path, []byte("not a number"), 0o644))

		_, ok := thermalProbe(path)()
		assert.False(t, ok)
	})
}
