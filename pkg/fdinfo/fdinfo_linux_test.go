//go:build linux

package fdinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RegularFile(t *testing.T) {
	before, err := Snapshot()
	require.NoError(t, err)

	f, err := os.Create(filepath.Join(t.TempDir(), "probe"))
	require.NoError(t, err)

	during, err := Snapshot()
	require.NoError(t, err)

	diff := Compare(before, during)
	require.Len(t, diff.Opened, 1, "expected exactly the probe file to appear")
	assert.Empty(t, diff.Closed)
	for _, info := range diff.Opened {
		assert.Equal(t, Regular, info.Kind)
		assert.Contains(t, info.Target, "probe")
	}

	require.NoError(t, f.Close())

	after, err := Snapshot()
	require.NoError(t, err)
	assert.True(t, Compare(before, after).Empty(), "descriptor table should be back to the starting set")
}

func TestSnapshot_PipeIsFIFO(t *testing.T) {
	before, err := Snapshot()
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)

	during, err := Snapshot()
	require.NoError(t, err)

	diff := Compare(before, during)
	require.Len(t, diff.Opened, 2, "a pipe should add two descriptors")
	for _, info := range diff.Opened {
		assert.Equal(t, FIFO, info.Kind, "pipe descriptors classify as fifo")
	}

	require.NoError(t, r.Close())
	require.NoError(t, w.Close())

	after, err := Snapshot()
	require.NoError(t, err)
	assert.True(t, Compare(before, after).Empty())
}

func TestSnapshot_ExcludesStdio(t *testing.T) {
	snap, err := Snapshot()
	require.NoError(t, err)

	for fd := range snap {
		assert.GreaterOrEqual(t, fd, 3)
	}
}
