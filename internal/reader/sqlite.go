// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/sqlitedb"
)

// SQLiteReader loads the history graph from the SQLite mirror, falling back
// to an underlying GitObjectReader for node content the mirror hasn't
// cached yet. The mirror is never the source of truth for node existence:
// callers are expected to have hydrated it before calling LoadAllNodes.
type SQLiteReader struct {
	db  *sqlitedb.DatabaseManager
	git *GitObjectReader
	log logrus.FieldLogger
}

// NewSQLiteReader returns a read-through reader backed by db, falling back
// to git for content not yet cached.
func NewSQLiteReader(db *sqlitedb.DatabaseManager, git *GitObjectReader, log logrus.FieldLogger) *SQLiteReader {
	return &SQLiteReader{db: db, git: git, log: log}
}

// LoadAllNodes implements history.Reader by reading every node and edge row
// and reconstructing the graph in memory, the same shape GitObjectReader
// produces so callers never need to know which backend served them.
func (r *SQLiteReader) LoadAllNodes(ctx context.Context) ([]*history.HistoryNode, error) {
	rows, err := r.db.AllNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load nodes from sqlite mirror: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	edges, err := r.db.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load edges from sqlite mirror: %w", err)
	}

	nodesByHash := make(map[string]*history.HistoryNode, len(rows))
	outputTreeByHash := make(map[string]gitinterface.Hash, len(rows))

	for _, row := range rows {
		commitHash, err := gitinterface.NewHash(row.CommitHash)
		if err != nil {
			r.log.WithError(err).WithField("commit", row.CommitHash).Warn("skipping node row with malformed commit hash")
			continue
		}
		outputTree, err := gitinterface.NewHash(row.OutputTree)
		if err != nil {
			r.log.WithError(err).WithField("commit", row.CommitHash).Warn("skipping node row with malformed output tree")
			continue
		}

		var meta history.NodeMeta
		if err := json.Unmarshal([]byte(row.MetaJSON), &meta); err != nil {
			r.log.WithError(err).WithField("commit", row.CommitHash).Warn("skipping node row with malformed metadata")
			continue
		}

		content := ""
		if row.PlanMDCache != nil {
			content = *row.PlanMDCache
		}

		node := &history.HistoryNode{
			CommitHash:  commitHash,
			OwnerID:     row.OwnerID,
			OutputTree:  outputTree,
			NodeType:    history.NodeType(row.NodeType),
			Timestamp:   row.Timestamp,
			Summary:     row.Summary,
			GeneratorID: row.GeneratorID,
			Content:     content,
			Meta:        meta,
		}

		nodesByHash[row.CommitHash] = node
		outputTreeByHash[row.CommitHash] = outputTree
	}

	childHasParent := map[string]bool{}
	for _, e := range edges {
		child, ok := nodesByHash[e.ChildHash]
		if !ok {
			continue
		}
		parent, ok := nodesByHash[e.ParentHash]
		if !ok {
			continue
		}

		child.InputTree = outputTreeByHash[e.ParentHash]
		child.Parent = parent
		parent.Children = append(parent.Children, child)
		childHasParent[e.ChildHash] = true
	}

	for hash, node := range nodesByHash {
		if !childHasParent[hash] {
			node.InputTree = gitinterface.GenesisTree
		}
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

// GetNodeContent implements history.Reader. If the mirror already has the
// content cached it's returned directly; otherwise it reads through to Git
// and best-effort back-fills the cache for next time.
func (r *SQLiteReader) GetNodeContent(ctx context.Context, node *history.HistoryNode) (string, error) {
	if node.Content != "" {
		return node.Content, nil
	}

	content, err := r.git.GetNodeContent(ctx, node)
	if err != nil {
		return "", fmt.Errorf("read through to git for %s: %w", node.CommitHash, err)
	}

	if content != "" {
		if err := r.db.BackfillContent(ctx, node.CommitHash.String(), content); err != nil {
			r.log.WithError(err).WithField("commit", node.CommitHash.String()).Warn("failed to back-fill content cache")
		}
	}

	return content, nil
}
