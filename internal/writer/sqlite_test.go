// SPDX-License-Identifier: Apache-2.0

package writer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/sqlitedb"
)

func TestSQLiteWriterDoubleWrite(t *testing.T) {
	repo := createTestRepo(t)
	ctx := context.Background()
	c := codec.NewGitObjectCodec(repo)
	log := silentLogger()

	gitWriter := NewGitObjectWriter(repo, c, "main", "alice", log)

	dbPath := filepath.Join(t.TempDir(), "history.sqlite")
	db, err := sqlitedb.Open(ctx, dbPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	w := NewSQLiteWriter(gitWriter, db, "main", log)

	genesis := gitinterface.GenesisTree
	blob1, err := repo.HashObject(ctx, []byte("v1"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree1, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blob1}})
	require.NoError(t, err)

	root, err := w.CreateNode(ctx, history.NodePlan, genesis.String(), tree1.String(), "plan body", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "root plan",
		Type:        history.NodePlan,
	})
	require.NoError(t, err)

	rootRow, ok, err := db.GetNode(ctx, root.CommitHash.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, genesis.String(), rootRow.InputTree)
	assert.Equal(t, tree1.String(), rootRow.OutputTree)

	blob2, err := repo.HashObject(ctx, []byte("v2"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree2, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blob2}})
	require.NoError(t, err)

	child, err := w.CreateNode(ctx, history.NodeCapture, tree1.String(), tree2.String(), "captured drift", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "capture",
		Type:        history.NodeCapture,
	})
	require.NoError(t, err)

	childRow, ok, err := db.GetNode(ctx, child.CommitHash.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tree1.String(), childRow.InputTree)

	edges, err := db.AllEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, child.CommitHash.String(), edges[0].ChildHash)
	assert.Equal(t, root.CommitHash.String(), edges[0].ParentHash)
}
