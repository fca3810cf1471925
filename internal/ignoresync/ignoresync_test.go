// SPDX-License-Identifier: Apache-2.0

package ignoresync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncCreatesBlockInEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude")

	require.NoError(t, Sync(path, []string{"*.log", "build/"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, beginSentinel+"\n*.log\nbuild/\n"+endSentinel+"\n", string(content))
}

func TestSyncPreservesSurroundingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude")
	require.NoError(t, os.WriteFile(path, []byte("# my own ignores\n*.bak\n"), 0o644))

	require.NoError(t, Sync(path, []string{"*.log"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# my own ignores\n*.bak\n"+beginSentinel+"\n*.log\n"+endSentinel+"\n", string(content))
}

func TestSyncReplacesExistingBlockOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude")
	initial := "# my own ignores\n*.bak\n" + beginSentinel + "\n*.old\n" + endSentinel + "\n# trailing note\n"
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	require.NoError(t, Sync(path, []string{"*.log", "*.tmp"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	expected := "# my own ignores\n*.bak\n" + beginSentinel + "\n*.log\n*.tmp\n" + endSentinel + "\n# trailing note\n"
	assert.Equal(t, expected, string(content))
}

func TestSyncIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude")
	require.NoError(t, os.WriteFile(path, []byte("kept line\n"), 0o644))

	require.NoError(t, Sync(path, []string{"*.log"}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Sync(path, []string{"*.log"}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
