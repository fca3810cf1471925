// SPDX-License-Identifier: Apache-2.0

package fsstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
)

func TestIsLegacyRepo(t *testing.T) {
	root := t.TempDir()
	assert.False(t, IsLegacyRepo(root))

	require.NoError(t, os.MkdirAll(filepath.Join(root, HistoryDir), 0o755))
	assert.False(t, IsLegacyRepo(root), "empty history dir is not legacy")

	require.NoError(t, os.WriteFile(filepath.Join(root, HistoryDir, "node.md"), []byte("x"), 0o644))
	assert.True(t, IsLegacyRepo(root))
}

func TestWriteNodeAndLoadAllRoundTrip(t *testing.T) {
	root := t.TempDir()

	node := &history.HistoryNode{
		InputTree:  gitinterface.GenesisTree,
		OutputTree: gitinterface.GenesisTree,
		NodeType:   history.NodePlan,
		Timestamp:  1700000000,
		Summary:    "root plan",
		Meta: history.NodeMeta{
			MetaVersion: history.CurrentMetaVersion,
			Summary:     "root plan",
			Type:        history.NodePlan,
		},
	}

	name, err := WriteNode(root, node, "plan body")
	require.NoError(t, err)
	assert.Contains(t, name, "4b825dc642cb6eb9a060e54bf8d69288fbee4904_4b825dc642cb6eb9a060e54bf8d69288fbee4904_")

	files, err := LoadAll(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "root plan", files[0].Summary)
	assert.Equal(t, "plan body", files[0].Content)
}

func TestWriteNodeDisambiguatesCollidingFilenames(t *testing.T) {
	root := t.TempDir()

	node := &history.HistoryNode{
		InputTree:  gitinterface.GenesisTree,
		OutputTree: gitinterface.GenesisTree,
		NodeType:   history.NodeCapture,
		Timestamp:  1700000000,
		Summary:    "first",
	}

	name1, err := WriteNode(root, node, "a")
	require.NoError(t, err)

	node2 := *node
	node2.Summary = "second"
	name2, err := WriteNode(root, &node2, "b")
	require.NoError(t, err)

	assert.NotEqual(t, name1, name2)

	files, err := LoadAll(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestLoadAllSkipsMalformedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, HistoryDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, HistoryDir, "broken.md"), []byte("no front matter here"), 0o644))

	files, err := LoadAll(root)
	require.NoError(t, err)
	assert.Empty(t, files)
}
