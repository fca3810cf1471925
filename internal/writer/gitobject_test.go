// SPDX-License-Identifier: Apache-2.0

package writer

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

func TestGitObjectWriterCreateNodeRootAndChild(t *testing.T) {
	repo := createTestRepo(t)
	ctx := context.Background()
	c := codec.NewGitObjectCodec(repo)
	w := NewGitObjectWriter(repo, c, "main", "alice", silentLogger())

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
	assert.Equal(t, "alice", root.OwnerID)
	assert.Equal(t, genesis, root.InputTree)
	assert.Equal(t, tree1, root.OutputTree)
	assert.NotZero(t, root.Timestamp)

	head, err := repo.GetReference(ctx, refs.LocalHead("main"))
	require.NoError(t, err)
	assert.Equal(t, root.CommitHash, head)

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
	assert.Equal(t, tree1, child.InputTree)
	assert.Equal(t, tree2, child.OutputTree)

	head, err = repo.GetReference(ctx, refs.LocalHead("main"))
	require.NoError(t, err)
	assert.Equal(t, child.CommitHash, head)

	commit, err := repo.GetCommit(ctx, child.CommitHash.String())
	require.NoError(t, err)
	require.Len(t, commit.Parents, 1)
	assert.Equal(t, root.CommitHash, commit.Parents[0])
}

func TestGitObjectWriterPicksUpExternallyAdvancedHead(t *testing.T) {
	repo := createTestRepo(t)
	ctx := context.Background()
	c := codec.NewGitObjectCodec(repo)
	w := NewGitObjectWriter(repo, c, "main", "alice", silentLogger())

	genesis := gitinterface.GenesisTree
	blob1, err := repo.HashObject(ctx, []byte("v1"), gitinterface.BlobKind)
	require.NoError(t, err)
	tree1, err := repo.Mktree(ctx, map[string]gitinterface.TreeEntryInput{"a.txt": {Kind: gitinterface.BlobKind, Hash: blob1}})
	require.NoError(t, err)

	// simulate a concurrent writer having already landed a commit on the
	// branch; the writer must anchor its new node on top of it rather than
	// racing to create a second root.
	interloper, err := repo.CommitTree(ctx, tree1, nil, "interloper")
	require.NoError(t, err)
	require.NoError(t, repo.SetReference(ctx, refs.LocalHead("main"), interloper))

	node, err := w.CreateNode(ctx, history.NodePlan, genesis.String(), tree1.String(), "plan body", history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     "root plan",
		Type:        history.NodePlan,
	})
	require.NoError(t, err)

	commit, err := repo.GetCommit(ctx, node.CommitHash.String())
	require.NoError(t, err)
	require.Len(t, commit.Parents, 1)
	assert.Equal(t, interloper, commit.Parents[0])
}
