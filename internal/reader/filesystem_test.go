// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipu-vcs/quipu/internal/fsstore"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
)

func TestFilesystemReaderLoadAllNodesLinksParentage(t *testing.T) {
	root := t.TempDir()
	genesis := gitinterface.GenesisTree

	rootNode := &history.HistoryNode{
		InputTree:  genesis,
		OutputTree: gitinterface.ZeroHash,
		NodeType:   history.NodePlan,
		Timestamp:  100,
		Summary:    "root plan",
	}
	_, err := fsstore.WriteNode(root, rootNode, "plan body")
	require.NoError(t, err)

	outputTree, err := gitinterface.NewHash("1111111111111111111111111111111111111111")
	require.NoError(t, err)
	childNode := &history.HistoryNode{
		InputTree:  gitinterface.ZeroHash,
		OutputTree: outputTree,
		NodeType:   history.NodeCapture,
		Timestamp:  200,
		Summary:    "capture",
	}
	_, err = fsstore.WriteNode(root, childNode, "captured drift")
	require.NoError(t, err)

	r := NewFilesystemReader(root, silentLogger())
	nodes, err := r.LoadAllNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	var loadedRoot, loadedChild *history.HistoryNode
	for _, n := range nodes {
		if n.NodeType == history.NodePlan {
			loadedRoot = n
		} else {
			loadedChild = n
		}
	}
	require.NotNil(t, loadedRoot)
	require.NotNil(t, loadedChild)

	assert.Nil(t, loadedRoot.Parent)
	require.Len(t, loadedRoot.Children, 1)
	assert.Equal(t, loadedChild, loadedRoot.Children[0])
	assert.Equal(t, loadedRoot, loadedChild.Parent)

	content, err := r.GetNodeContent(context.Background(), loadedRoot)
	require.NoError(t, err)
	assert.Equal(t, "plan body", content)
}

func TestFilesystemReaderEmptyRepo(t *testing.T) {
	root := t.TempDir()
	r := NewFilesystemReader(root, silentLogger())

	nodes, err := r.LoadAllNodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
