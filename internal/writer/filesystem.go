// SPDX-License-Identifier: Apache-2.0

package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/quipu-vcs/quipu/internal/fsstore"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
)

// FilesystemWriter anchors new history nodes as legacy YAML-front-matter
// Markdown files under .quipu/history/. It never creates Git refs.
type FilesystemWriter struct {
	root string
}

// NewFilesystemWriter returns a writer rooted at root.
func NewFilesystemWriter(root string) *FilesystemWriter {
	return &FilesystemWriter{root: root}
}

// CreateNode implements history.Writer by writing a new legacy node file.
func (w *FilesystemWriter) CreateNode(_ context.Context, nodeType history.NodeType, inputTree, outputTree string, content string, meta history.NodeMeta) (*history.HistoryNode, error) {
	inputHash, err := gitinterface.NewHash(inputTree)
	if err != nil {
		return nil, fmt.Errorf("invalid input tree %q: %w", inputTree, err)
	}
	outputHash, err := gitinterface.NewHash(outputTree)
	if err != nil {
		return nil, fmt.Errorf("invalid output tree %q: %w", outputTree, err)
	}

	node := &history.HistoryNode{
		InputTree:   inputHash,
		OutputTree:  outputHash,
		NodeType:    nodeType,
		Timestamp:   float64(time.Now().Unix()),
		Summary:     meta.Summary,
		GeneratorID: meta.Generator.ID,
		Content:     content,
		Meta:        meta,
	}

	name, err := fsstore.WriteNode(w.root, node, content)
	if err != nil {
		return nil, err
	}

	commitHash, err := gitinterface.NewHash(fsstore.SyntheticHash(name))
	if err != nil {
		return nil, fmt.Errorf("derive synthetic commit hash for %s: %w", name, err)
	}
	node.CommitHash = commitHash

	return node, nil
}
