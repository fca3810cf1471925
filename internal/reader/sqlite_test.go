// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/hydrator"
	"github.com/quipu-vcs/quipu/internal/refs"
	"github.com/quipu-vcs/quipu/internal/sqlitedb"
)

func TestSQLiteReaderLoadAllNodesMatchesGitObjectReader(t *testing.T) {
	repo := createTestRepo(t)
	ctx := context.Background()
	c := codec.NewGitObjectCodec(repo)
	log := silentLogger()

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

	dbPath := filepath.Join(t.TempDir(), "history.sqlite")
	db, err := sqlitedb.Open(ctx, dbPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := hydrator.New(repo, c, db, "alice", log)
	require.NoError(t, h.Sync(ctx))

	gitReader := NewGitObjectReader(repo, c, "alice", log)
	sqliteReader := NewSQLiteReader(db, gitReader, log)

	nodes, err := sqliteReader.LoadAllNodes(ctx)
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
	assert.Nil(t, rootNode.Parent)
	require.Len(t, rootNode.Children, 1)
	assert.Equal(t, childNode, rootNode.Children[0])
	assert.Equal(t, tree1, childNode.InputTree)
	assert.Equal(t, root, childNode.Parent.CommitHash)

	// content isn't hydrated into the mirror; GetNodeContent must read
	// through to git and back-fill plan_md_cache for next time.
	assert.Empty(t, rootNode.Content)
	content, err := sqliteReader.GetNodeContent(ctx, rootNode)
	require.NoError(t, err)
	assert.Equal(t, "plan body", content)

	row, ok, err := db.GetNode(ctx, root.String())
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, row.PlanMDCache)
	assert.Equal(t, "plan body", *row.PlanMDCache)

	// reloading the graph now serves the content straight from the cached
	// row without touching git again.
	nodesAgain, err := sqliteReader.LoadAllNodes(ctx)
	require.NoError(t, err)
	for _, n := range nodesAgain {
		if n.CommitHash == root {
			assert.Equal(t, "plan body", n.Content)
		}
	}
}
