// SPDX-License-Identifier: Apache-2.0

package hydrator

import (
	"context"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/refs"
	"github.com/quipu-vcs/quipu/internal/sqlitedb"
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

func TestHydratorSyncInsertsAndIsIdempotent(t *testing.T) {
	repo := createTestRepo(t)
	ctx := context.Background()
	c := codec.NewGitObjectCodec(repo)
	log := silentLogger()

	genesis := gitinterface.GenesisTree
	blobHash, err := repo.HashObject(ctx, []byte("v1"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree1, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blobHash}})
	require.NoError(t, err)

	root, err := c.Encode(ctx, history.NodePlan, genesis, tree1, "plan body", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "root plan",
		Type:        history.NodePlan,
		Generator:   history.GeneratorMeta{ID: "agent"},
	}, gitinterface.ZeroHash)
	require.NoError(t, err)

	blobHash2, err := repo.HashObject(ctx, []byte("v2"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree2, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blobHash2}})
	require.NoError(t, err)

	child, err := c.Encode(ctx, history.NodeCapture, tree1, tree2, "captured drift", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "capture",
		Type:        history.NodeCapture,
		Generator:   history.GeneratorMeta{ID: "agent"},
	}, root)
	require.NoError(t, err)

	require.NoError(t, repo.SetReference(ctx, refs.LocalHead("main"), child))

	dbPath := filepath.Join(t.TempDir(), "history.sqlite")
	db, err := sqlitedb.Open(ctx, dbPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := New(repo, c, db, "alice", log)
	require.NoError(t, h.Sync(ctx))

	nodes, err := db.AllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	byHash := map[string]sqlitedb.NodeRow{}
	for _, n := range nodes {
		byHash[n.CommitHash] = n
	}

	rootRow, ok := byHash[root.String()]
	require.True(t, ok)
	assert.Equal(t, "alice", rootRow.OwnerID)
	assert.Equal(t, genesis.String(), rootRow.InputTree)
	assert.Equal(t, tree1.String(), rootRow.OutputTree)

	childRow, ok := byHash[child.String()]
	require.True(t, ok)
	assert.Equal(t, tree1.String(), childRow.InputTree)
	assert.Equal(t, tree2.String(), childRow.OutputTree)
	assert.Equal(t, "capture", childRow.NodeType)

	edges, err := db.AllEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, child.String(), edges[0].ChildHash)
	assert.Equal(t, root.String(), edges[0].ParentHash)

	// a second sync with no intervening writes must insert nothing new
	require.NoError(t, h.Sync(ctx))
	nodesAgain, err := db.AllNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodesAgain, 2)

	// a commit appended after that sync must be the only one hydrated on
	// the next pass: LogRefSince excludes the already-known root/child
	// ancestry at the git level rather than re-walking and filtering it.
	blobHash3, err := repo.HashObject(ctx, []byte("v3"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree3, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blobHash3}})
	require.NoError(t, err)

	grandchild, err := c.Encode(ctx, history.NodeCapture, tree2, tree3, "captured more drift", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "capture again",
		Type:        history.NodeCapture,
		Generator:   history.GeneratorMeta{ID: "agent"},
	}, child)
	require.NoError(t, err)
	require.NoError(t, repo.SetReference(ctx, refs.LocalHead("main"), grandchild))

	require.NoError(t, h.Sync(ctx))
	nodesAfterAppend, err := db.AllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodesAfterAppend, 3)

	byHashAfterAppend := map[string]sqlitedb.NodeRow{}
	for _, n := range nodesAfterAppend {
		byHashAfterAppend[n.CommitHash] = n
	}
	grandchildRow, ok := byHashAfterAppend[grandchild.String()]
	require.True(t, ok)
	assert.Equal(t, "alice", grandchildRow.OwnerID)
	assert.Equal(t, tree2.String(), grandchildRow.InputTree)
	assert.Equal(t, tree3.String(), grandchildRow.OutputTree)

	edgesAfterAppend, err := db.AllEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edgesAfterAppend, 2)
}
