// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// EmptyTree returns the hash of the empty tree. The tree is only hashed, not
// written to the object store; Git resolves the empty tree without a stored
// object.
func (r *Repository) EmptyTree(ctx context.Context) (Hash, error) {
	stdOut, stdErr, err := r.executeGitCommandWithStdIn(ctx, nil, "hash-object", "-t", "tree", "--stdin")
	if err != nil {
		return ZeroHash, fmt.Errorf("unable to hash empty tree: %s", stdErr)
	}

	hash, err := NewHash(strings.TrimSpace(stdOut))
	if err != nil {
		return ZeroHash, fmt.Errorf("empty tree has invalid git ID: %w", err)
	}

	return hash, nil
}

// CheckoutTree materializes treeID into the working directory, replacing
// both the index and the tracked files it covers, mirroring GetTreeHash's
// inverse (write-tree versus read-tree).
func (r *Repository) CheckoutTree(ctx context.Context, treeID Hash) error {
	if _, stdErr, err := r.executeGitCommand(ctx, "read-tree", "--reset", "-u", treeID.String()); err != nil {
		return fmt.Errorf("unable to checkout tree %s: %s", treeID, stdErr)
	}

	return nil
}

// GetAllFilesInTree returns all filepaths and the corresponding blob hashes
// in the specified tree.
func (r *Repository) GetAllFilesInTree(ctx context.Context, treeID Hash) (map[string]Hash, error) {
	stdOut, stdErr, err := r.executeGitCommand(ctx, "ls-tree", "-r", "--format=%(path) %(objectname)", treeID.String())
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate all files in tree: %s", stdErr)
	}

	stdOut = strings.TrimSpace(stdOut)
	if stdOut == "" {
		return nil, nil
	}

	entries := strings.Split(stdOut, "\n")
	files := map[string]Hash{}
	for _, entry := range entries {
		entrySplit := strings.Split(entry, " ")
		if len(entrySplit) != 2 {
			continue
		}

		hash, err := NewHash(entrySplit[1])
		if err != nil {
			return nil, fmt.Errorf("invalid git ID '%s' for path '%s': %w", entrySplit[1], entrySplit[0], err)
		}

		files[entrySplit[0]] = hash
	}

	return files, nil
}

// TreeBuilder constructs multi-level trees in a repository from a flat
// path-to-blob map. Based on buildTreeHelper in go-git.
type TreeBuilder struct {
	repo    *Repository
	trees   map[string]*treeEntry
	entries map[string]*treeEntry
}

// NewTreeBuilder returns a TreeBuilder bound to repo.
func NewTreeBuilder(repo *Repository) *TreeBuilder {
	return &TreeBuilder{repo: repo}
}

// WriteRootTreeFromBlobIDs accepts a map of paths to their blob IDs and
// returns the root tree ID that contains these files.
func (t *TreeBuilder) WriteRootTreeFromBlobIDs(ctx context.Context, files map[string]Hash) (Hash, error) {
	rootKey := ""
	t.trees = map[string]*treeEntry{rootKey: {}}
	t.entries = map[string]*treeEntry{}

	for p, gitID := range files {
		t.buildIntermediates(p, gitID)
	}

	return t.writeTrees(ctx, rootKey, t.trees[rootKey])
}

// buildIntermediates identifies the intermediate trees that must be
// constructed for the specified path.
func (t *TreeBuilder) buildIntermediates(name string, gitID Hash) {
	parts := strings.Split(name, "/")

	var fullPath string
	for _, part := range parts {
		parent := fullPath
		fullPath = path.Join(fullPath, part)

		t.buildTree(name, parent, fullPath, gitID)
	}
}

func (t *TreeBuilder) buildTree(name, parent, fullPath string, gitID Hash) {
	if _, ok := t.trees[fullPath]; ok {
		return
	}
	if _, ok := t.entries[fullPath]; ok {
		return
	}

	entryObj := &treeEntry{name: path.Base(fullPath), gitID: ZeroHash}

	if fullPath == name {
		entryObj.isDir = false
		entryObj.gitID = gitID
	} else {
		entryObj.isDir = true
		t.trees[fullPath] = &treeEntry{}
	}

	t.trees[parent].entries = append(t.trees[parent].entries, entryObj)
}

// writeTrees recursively stores each tree that must be created in the
// repository's object store, returning the ID of the tree created at each
// invocation.
func (t *TreeBuilder) writeTrees(ctx context.Context, parent string, tree *treeEntry) (Hash, error) {
	for i, e := range tree.entries {
		if !e.isDir && !e.gitID.IsZero() {
			continue
		}

		p := path.Join(parent, e.name)
		entryID, err := t.writeTrees(ctx, p, t.trees[p])
		if err != nil {
			return ZeroHash, err
		}
		e.gitID = entryID

		tree.entries[i] = e
	}

	return t.writeTree(ctx, tree.entries)
}

// writeTree creates a tree in the repository for the specified entries. It
// only supports a regular file with permission 0o644 and a subtree, as
// that's all Quipu's node encoding needs; generic tree construction is left
// to direct invocations of the git binary.
func (t *TreeBuilder) writeTree(ctx context.Context, entries []*treeEntry) (Hash, error) {
	var input strings.Builder
	for _, e := range entries {
		if e.isDir {
			input.WriteString("040000 tree " + e.gitID.String() + "\t" + e.name)
		} else {
			input.WriteString("100644 blob " + e.gitID.String() + "\t" + e.name)
		}
		input.WriteString("\n")
	}

	stdOut, stdErr, err := t.repo.executeGitCommandWithStdIn(ctx, []byte(input.String()), "mktree")
	if err != nil {
		return ZeroHash, fmt.Errorf("unable to write git tree: %s", stdErr)
	}

	treeID, err := NewHash(strings.TrimSpace(stdOut))
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid tree ID: %w", err)
	}

	return treeID, nil
}

// treeEntry represents a single entry in a Git tree under construction. If
// isDir is true the entry is a subtree.
type treeEntry struct {
	name    string
	isDir   bool
	gitID   Hash
	entries []*treeEntry // only used when isDir is true
}
