// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ObjectKind is a Git object type: blob, tree, or commit.
type ObjectKind string

const (
	BlobKind   ObjectKind = "blob"
	TreeKind   ObjectKind = "tree"
	CommitKind ObjectKind = "commit"
)

// HashObject writes contents to the object store as an object of the given
// kind and returns the resulting hash.
func (r *Repository) HashObject(ctx context.Context, contents []byte, kind ObjectKind) (Hash, error) {
	stdOut, stdErr, err := r.executeGitCommandWithStdIn(ctx, contents, "hash-object", "-w", "-t", string(kind), "--stdin")
	if err != nil {
		return ZeroHash, fmt.Errorf("unable to hash %s object: %s", kind, stdErr)
	}

	hash, err := NewHash(strings.TrimSpace(stdOut))
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid git ID for %s object: %w", kind, err)
	}

	return hash, nil
}

// GetTreeHash computes the Git tree hash of the current state of the
// working tree, as though everything in it were staged and written with
// `git write-tree`.
func (r *Repository) GetTreeHash(ctx context.Context) (Hash, error) {
	if _, stdErr, err := r.executeGitCommand(ctx, "add", "-A"); err != nil {
		return ZeroHash, fmt.Errorf("unable to stage working tree: %s", stdErr)
	}

	stdOut, stdErr, err := r.executeGitCommand(ctx, "write-tree")
	if err != nil {
		return ZeroHash, fmt.Errorf("unable to write working tree: %s", stdErr)
	}

	hash, err := NewHash(strings.TrimSpace(stdOut))
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid git ID for working tree: %w", err)
	}

	return hash, nil
}

// Mktree builds a tree object from a flat map of path to (mode, kind, sha),
// canonicalizing entry order by name as `git mktree` requires sorted input.
// A zero mode defaults to 100644 for blobs and 040000 for trees.
func (r *Repository) Mktree(ctx context.Context, entries map[string]TreeEntryInput) (Hash, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var input strings.Builder
	for _, name := range names {
		e := entries[name]
		mode := e.Mode
		if mode == "" {
			if e.Kind == TreeKind {
				mode = "040000"
			} else {
				mode = "100644"
			}
		}
		input.WriteString(fmt.Sprintf("%s %s %s\t%s\n", mode, e.Kind, e.Hash.String(), name))
	}

	stdOut, stdErr, err := r.executeGitCommandWithStdIn(ctx, []byte(input.String()), "mktree")
	if err != nil {
		return ZeroHash, fmt.Errorf("unable to build tree: %s", stdErr)
	}

	hash, err := NewHash(strings.TrimSpace(stdOut))
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid tree ID: %w", err)
	}

	return hash, nil
}

// TreeEntryInput describes a single entry passed to Mktree.
type TreeEntryInput struct {
	Mode string
	Kind ObjectKind
	Hash Hash
}
