// SPDX-License-Identifier: Apache-2.0

// Package reader implements history.Reader against each of Quipu's storage
// backends: a direct Git object reader, a SQLite read-through wrapper
// around it, and a legacy filesystem reader.
package reader

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/refs"
)

// GitObjectReader loads the history graph directly from Git, decoding each
// quipu commit via the codec.
type GitObjectReader struct {
	repo       *gitinterface.Repository
	codec      *codec.GitObjectCodec
	localOwner string
	log        logrus.FieldLogger
}

// NewGitObjectReader returns a reader bound to repo.
func NewGitObjectReader(repo *gitinterface.Repository, c *codec.GitObjectCodec, localOwner string, log logrus.FieldLogger) *GitObjectReader {
	return &GitObjectReader{repo: repo, codec: c, localOwner: localOwner, log: log}
}

// LoadAllNodes implements history.Reader. It runs in O(V+E) in the size of
// the graph: a single ref enumeration, a single log walk per head, and one
// batched cat-file pass for every anchor tree.
func (r *GitObjectReader) LoadAllNodes(ctx context.Context) ([]*history.HistoryNode, error) {
	refHeads, err := r.repo.GetAllRefHeads(ctx, refs.Namespace)
	if err != nil {
		return nil, fmt.Errorf("enumerate quipu refs: %w", err)
	}
	if len(refHeads) == 0 {
		return nil, nil
	}

	refNames := make([]string, 0, len(refHeads))
	hashOf := make(map[string]string, len(refHeads))
	for _, rh := range refHeads {
		refNames = append(refNames, rh.RefName)
		hashOf[rh.RefName] = rh.Hash.String()
	}
	heads := refs.ResolveHeads(refNames, hashOf, r.localOwner)

	commitOwner := map[string]string{}
	var allCommits []gitinterface.CommitInfo
	seen := map[string]bool{}

	for _, head := range heads {
		commits, err := r.repo.LogRef(ctx, head.RefName)
		if err != nil {
			return nil, fmt.Errorf("walk history for %s: %w", head.RefName, err)
		}
		for _, c := range commits {
			hash := c.Hash.String()
			if seen[hash] {
				continue
			}
			seen[hash] = true
			commitOwner[hash] = head.Owner
			allCommits = append(allCommits, c)
		}
	}

	if len(allCommits) == 0 {
		return nil, nil
	}

	treeHashes := make([]gitinterface.Hash, 0, len(allCommits))
	for _, c := range allCommits {
		treeHashes = append(treeHashes, c.Tree)
	}
	treeResults, err := r.repo.BatchCatFile(ctx, treeHashes)
	if err != nil {
		return nil, fmt.Errorf("batch read node trees: %w", err)
	}
	treeByHash := map[string][]byte{}
	for _, tr := range treeResults {
		treeByHash[tr.Hash.String()] = tr.Contents
	}

	nodesByHash := map[string]*history.HistoryNode{}
	var roots []*history.HistoryNode

	for _, c := range allCommits {
		treeContents, ok := treeByHash[c.Tree.String()]
		if !ok {
			r.log.WithField("commit", c.Hash.String()).Warn("skipping commit with unreadable anchor tree")
			continue
		}

		decoded, err := r.codec.Decode(ctx, c, treeContents)
		if err != nil {
			r.log.WithError(err).WithField("commit", c.Hash.String()).Warn("skipping undecodable quipu commit")
			continue
		}

		node := &history.HistoryNode{
			CommitHash:  c.Hash,
			OwnerID:     commitOwner[c.Hash.String()],
			OutputTree:  decoded.OutputTree,
			NodeType:    decoded.Meta.Type,
			Timestamp:   float64(c.Timestamp),
			Summary:     decoded.Summary,
			GeneratorID: decoded.Meta.Generator.ID,
			Meta:        decoded.Meta,
		}
		nodesByHash[c.Hash.String()] = node
	}

	for _, c := range allCommits {
		node, ok := nodesByHash[c.Hash.String()]
		if !ok {
			continue
		}

		if len(c.Parents) == 0 {
			node.InputTree = gitinterface.GenesisTree
			roots = append(roots, node)
			continue
		}

		parent, ok := nodesByHash[c.Parents[0].String()]
		if !ok {
			// parent wasn't decodable; treat this node as a root of its
			// own subtree rather than dropping it silently.
			node.InputTree = gitinterface.GenesisTree
			roots = append(roots, node)
			continue
		}

		node.InputTree = parent.OutputTree
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}

	for _, node := range nodesByHash {
		sort.Slice(node.Children, func(i, j int) bool {
			return node.Children[i].Timestamp < node.Children[j].Timestamp
		})
	}

	result := make([]*history.HistoryNode, 0, len(nodesByHash))
	for _, node := range nodesByHash {
		result = append(result, node)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })

	return result, nil
}

// GetNodeContent implements history.Reader by cat-filing the node's anchor
// tree and reading its payload blob.
func (r *GitObjectReader) GetNodeContent(ctx context.Context, node *history.HistoryNode) (string, error) {
	anchor, err := r.repo.GetCommit(ctx, node.CommitHash.String())
	if err != nil {
		return "", fmt.Errorf("resolve anchor commit %s: %w", node.CommitHash, err)
	}

	treeResults, err := r.repo.BatchCatFile(ctx, []gitinterface.Hash{anchor.Tree})
	if err != nil || len(treeResults) != 1 {
		return "", fmt.Errorf("read anchor tree for %s: %w", node.CommitHash, err)
	}

	items, err := gitinterface.DecodeTree(treeResults[0].Contents)
	if err != nil {
		return "", fmt.Errorf("decode anchor tree for %s: %w", node.CommitHash, err)
	}

	blobHash, ok := codec.FindBlobByName(items, codec.PayloadBlobName(node.NodeType))
	if !ok {
		return "", nil
	}

	blobResults, err := r.repo.BatchCatFile(ctx, []gitinterface.Hash{blobHash})
	if err != nil || len(blobResults) != 1 {
		return "", fmt.Errorf("read payload blob for %s: %w", node.CommitHash, err)
	}

	return string(blobResults[0].Contents), nil
}
