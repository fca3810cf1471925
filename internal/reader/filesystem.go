// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/quipu-vcs/quipu/internal/fsstore"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
)

// FilesystemReader loads the history graph from legacy YAML-front-matter
// Markdown files under .quipu/history/. It never mixes with the Git-object
// or SQLite backends; the Engine selects it when fsstore.IsLegacyRepo
// reports true or when storage.type is "filesystem".
type FilesystemReader struct {
	root string
	log  logrus.FieldLogger
}

// NewFilesystemReader returns a reader over root's .quipu/history/ directory.
func NewFilesystemReader(root string, log logrus.FieldLogger) *FilesystemReader {
	return &FilesystemReader{root: root, log: log}
}

// LoadAllNodes implements history.Reader. Legacy files carry no Git commit
// identity, so each node's CommitHash is a stable synthetic hash of its
// filename; parentage is inferred by matching a node's input tree against
// the most recent earlier node sharing that output tree, since the legacy
// format never recorded an explicit parent link.
func (r *FilesystemReader) LoadAllNodes(ctx context.Context) ([]*history.HistoryNode, error) {
	files, err := fsstore.LoadAll(r.root)
	if err != nil {
		return nil, fmt.Errorf("load legacy history files: %w", err)
	}

	nodes := make([]*history.HistoryNode, 0, len(files))
	for _, f := range files {
		inputTree, err := gitinterface.NewHash(f.InputTree)
		if err != nil {
			r.log.WithField("file", f.Filename).WithError(err).Warn("skipping legacy node with malformed input tree")
			continue
		}
		outputTree, err := gitinterface.NewHash(f.OutputTree)
		if err != nil {
			r.log.WithField("file", f.Filename).WithError(err).Warn("skipping legacy node with malformed output tree")
			continue
		}

		commitHash, err := gitinterface.NewHash(fsstore.SyntheticHash(f.Filename))
		if err != nil {
			r.log.WithField("file", f.Filename).WithError(err).Warn("skipping legacy node with unhashable filename")
			continue
		}

		nodes = append(nodes, &history.HistoryNode{
			CommitHash:  commitHash,
			InputTree:   inputTree,
			OutputTree:  outputTree,
			NodeType:    f.NodeType,
			Timestamp:   f.Timestamp,
			Summary:     f.Summary,
			GeneratorID: f.GeneratorID,
			Content:     f.Content,
			Meta:        f.Meta,
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Timestamp < nodes[j].Timestamp })

	byOutputTree := map[gitinterface.Hash]*history.HistoryNode{}
	for _, node := range nodes {
		if node.InputTree == gitinterface.GenesisTree {
			byOutputTree[node.OutputTree] = node
			continue
		}

		if parent, ok := byOutputTree[node.InputTree]; ok {
			node.Parent = parent
			parent.Children = append(parent.Children, node)
		}
		byOutputTree[node.OutputTree] = node
	}

	for _, node := range nodes {
		sort.Slice(node.Children, func(i, j int) bool {
			return node.Children[i].Timestamp < node.Children[j].Timestamp
		})
	}

	return nodes, nil
}

// GetNodeContent implements history.Reader. Legacy node content is always
// loaded eagerly by LoadAllNodes, so this never reads through.
func (r *FilesystemReader) GetNodeContent(_ context.Context, node *history.HistoryNode) (string, error) {
	return node.Content, nil
}
