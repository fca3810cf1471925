// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"context"
	"os"
	"os/exec"
	"path"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/refs"
)

func createTestRepo(t *testing.T) *gitinterface.Repository {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	require.NoError(t, exec.Command("git", "init").Run())

	return gitinterface.LoadRepositoryAt(path.Join(dir, ".git"), nil)
}

func silentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestGitObjectReaderLoadAllNodes(t *testing.T) {
	repo := createTestRepo(t)
	ctx := context.Background()
	c := codec.NewGitObjectCodec(repo)

	genesis := gitinterface.GenesisTree
	blob1, err := repo.HashObject(ctx, []byte("v1"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree1, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blob1}})
	require.NoError(t, err)

	root, err := c.Encode(ctx, history.NodePlan, genesis, tree1, "plan body", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "root plan",
		Type:        history.NodePlan,
	}, gitinterface.ZeroHash)
	require.NoError(t, err)

	blob2, err := repo.HashObject(ctx, []byte("v2"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree2, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blob2}})
	require.NoError(t, err)

	child, err := c.Encode(ctx, history.NodeCapture, tree1, tree2, "captured drift", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "capture",
		Type:        history.NodeCapture,
	}, root)
	require.NoError(t, err)

	require.NoError(t, repo.SetReference(ctx, refs.LocalHead("main"), child))

	r := NewGitObjectReader(repo, c, "alice", silentLogger())
	nodes, err := r.LoadAllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	var rootNode, childNode *history.HistoryNode
	for _, n := range nodes {
		switch n.CommitHash {
		case root:
			rootNode = n
		case child:
			childNode = n
		}
	}
	require.NotNil(t, rootNode)
	require.NotNil(t, childNode)

	assert.Equal(t, genesis, rootNode.InputTree)
	assert.Equal(t, tree1, rootNode.OutputTree)
	assert.Nil(t, rootNode.Parent)
	require.Len(t, rootNode.Children, 1)
	assert.Equal(t, childNode, rootNode.Children[0])

	assert.Equal(t, tree1, childNode.InputTree)
	assert.Equal(t, tree2, childNode.OutputTree)
	require.NotNil(t, childNode.Parent)
	assert.Equal(t, root, childNode.Parent.CommitHash)

	content, err := r.GetNodeContent(ctx, rootNode)
	require.NoError(t, err)
	assert.Equal(t, "plan body", content)

	childContent, err := r.GetNodeContent(ctx, childNode)
	require.NoError(t, err)
	assert.Equal(t, "captured drift", childContent)
}

func TestGitObjectReaderEmptyRepo(t *testing.T) {
	repo := createTestRepo(t)
	c := codec.NewGitObjectCodec(repo)
	r := NewGitObjectReader(repo, c, "alice", silentLogger())

	nodes, err := r.LoadAllNodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
