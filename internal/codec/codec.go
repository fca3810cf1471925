// SPDX-License-Identifier: Apache-2.0

// Package codec encodes history nodes into Git objects and decodes them
// back, the way gittuf's reference state log encodes its entries as Git
// commits with trailer lines, generalized to a JSON metadata blob plus an
// optional payload blob.
package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
)

const (
	metadataBlobName = "metadata.json"
	planBlobName     = "plan.md"
	intentBlobName   = "intent.md"

	// OutputTreeTrailerKey is the commit trailer key carrying a node's
	// output tree hash.
	OutputTreeTrailerKey = "X-Quipu-Output-Tree"
)

var outputTreeTrailerPattern = regexp.MustCompile(`(?m)^X-Quipu-Output-Tree:\s*([0-9a-f]{40})\s*$`)

// GitObjectCodec encodes HistoryNode values as Git objects (blobs, a tree,
// and an anchor commit) and decodes them back.
type GitObjectCodec struct {
	repo *gitinterface.Repository
}

// NewGitObjectCodec returns a codec bound to repo.
func NewGitObjectCodec(repo *gitinterface.Repository) *GitObjectCodec {
	return &GitObjectCodec{repo: repo}
}

// PayloadBlobName returns the conventional payload blob name for a node
// type: capture nodes keep their textual content in capture.md; every other
// node type (plan, save, or unknown) uses plan.md.
func PayloadBlobName(nodeType history.NodeType) string {
	if nodeType == history.NodeCapture {
		return "capture.md"
	}
	return planBlobName
}

// FindBlobByName returns the hash of the tree entry named name, if present.
func FindBlobByName(items []gitinterface.TreeItem, name string) (gitinterface.Hash, bool) {
	for _, item := range items {
		if item.Name == name {
			return item.Hash, true
		}
	}
	return gitinterface.ZeroHash, false
}

// Encode builds the Git objects for a new node and returns its anchor
// commit hash. parent is the zero hash for a root node.
func (c *GitObjectCodec) Encode(ctx context.Context, nodeType history.NodeType, inputTree, outputTree gitinterface.Hash, content string, meta history.NodeMeta, parent gitinterface.Hash) (gitinterface.Hash, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return gitinterface.ZeroHash, fmt.Errorf("unable to marshal node metadata: %w", err)
	}

	metaBlobHash, err := c.repo.HashObject(ctx, metaJSON, gitinterface.BlobKind)
	if err != nil {
		return gitinterface.ZeroHash, fmt.Errorf("unable to write metadata blob: %w", err)
	}

	entries := map[string]gitinterface.TreeEntryInput{
		metadataBlobName: {Kind: gitinterface.BlobKind, Hash: metaBlobHash},
	}

	if content != "" {
		payloadHash, err := c.repo.HashObject(ctx, []byte(content), gitinterface.BlobKind)
		if err != nil {
			return gitinterface.ZeroHash, fmt.Errorf("unable to write payload blob: %w", err)
		}
		entries[PayloadBlobName(nodeType)] = gitinterface.TreeEntryInput{Kind: gitinterface.BlobKind, Hash: payloadHash}
	}

	tree, err := c.repo.Mktree(ctx, entries)
	if err != nil {
		return gitinterface.ZeroHash, fmt.Errorf("unable to build node tree: %w", err)
	}

	message := createCommitMessage(meta.Summary, outputTree)

	var parents []gitinterface.Hash
	if !parent.IsZero() {
		parents = []gitinterface.Hash{parent}
	}

	commitHash, err := c.repo.CommitTree(ctx, tree, parents, message)
	if err != nil {
		return gitinterface.ZeroHash, fmt.Errorf("unable to anchor node commit: %w", err)
	}

	return commitHash, nil
}

// createCommitMessage builds the commit body for a node: a summary line
// followed by the Output-Tree trailer encode/decode round-trips on.
func createCommitMessage(summary string, outputTree gitinterface.Hash) string {
	lines := []string{
		summary,
		"",
		fmt.Sprintf("%s: %s", OutputTreeTrailerKey, outputTree.String()),
	}
	return strings.Join(lines, "\n") + "\n"
}

// DecodedNode is the result of decoding a single anchor commit.
type DecodedNode struct {
	OutputTree gitinterface.Hash
	Meta       history.NodeMeta
	Summary    string
}

// Decode extracts a node's output tree and metadata from its anchor commit
// body and tree. It returns history.ErrDecodeError (never a raw error) when
// the trailer is missing or the metadata blob fails to parse, so callers
// can skip-with-warning per the package's error policy.
func (c *GitObjectCodec) Decode(ctx context.Context, commit gitinterface.CommitInfo, treeContents []byte) (DecodedNode, error) {
	match := outputTreeTrailerPattern.FindStringSubmatch(commit.Body)
	if match == nil {
		return DecodedNode{}, fmt.Errorf("%w: commit %s has no %s trailer", history.ErrDecodeError, commit.Hash, OutputTreeTrailerKey)
	}

	outputTree, err := gitinterface.NewHash(match[1])
	if err != nil {
		return DecodedNode{}, fmt.Errorf("%w: commit %s has malformed output tree trailer: %v", history.ErrDecodeError, commit.Hash, err)
	}

	items, err := gitinterface.DecodeTree(treeContents)
	if err != nil {
		return DecodedNode{}, fmt.Errorf("%w: commit %s has unreadable anchor tree: %v", history.ErrDecodeError, commit.Hash, err)
	}

	metaBlobHash, ok := FindBlobByName(items, metadataBlobName)
	if !ok {
		return DecodedNode{}, fmt.Errorf("%w: commit %s has no %s entry", history.ErrDecodeError, commit.Hash, metadataBlobName)
	}

	results, err := c.repo.BatchCatFile(ctx, []gitinterface.Hash{metaBlobHash})
	if err != nil || len(results) != 1 {
		return DecodedNode{}, fmt.Errorf("%w: commit %s metadata blob unreadable: %v", history.ErrDecodeError, commit.Hash, err)
	}

	var meta history.NodeMeta
	if err := json.Unmarshal(bytes.TrimSpace(results[0].Contents), &meta); err != nil {
		return DecodedNode{}, fmt.Errorf("%w: commit %s metadata is not valid JSON: %v", history.ErrDecodeError, commit.Hash, err)
	}

	summary, _, _ := strings.Cut(commit.Body, "\n")

	return DecodedNode{OutputTree: outputTree, Meta: meta, Summary: summary}, nil
}
