// SPDX-License-Identifier: Apache-2.0

package writer

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/refs"
	"github.com/quipu-vcs/quipu/internal/sqlitedb"
)

// SQLiteWriter double-writes: Git first as the source of truth, SQLite
// second as a derivable index. A failure in the SQLite half is logged and
// left for the next Hydrator.Sync to repair; it never fails CreateNode or
// rolls back the Git commit.
type SQLiteWriter struct {
	git    *GitObjectWriter
	db     *sqlitedb.DatabaseManager
	branch string
	log    logrus.FieldLogger
}

// NewSQLiteWriter returns a double-write writer delegating to git and
// mirroring into db.
func NewSQLiteWriter(git *GitObjectWriter, db *sqlitedb.DatabaseManager, branch string, log logrus.FieldLogger) *SQLiteWriter {
	return &SQLiteWriter{git: git, db: db, branch: branch, log: log}
}

// CreateNode implements history.Writer following §4.8's call sequence:
// delegate to GitObjectWriter, upsert the node row, resolve and insert the
// parent edge, then return the node from step 1 regardless of how the
// mirroring steps went.
func (w *SQLiteWriter) CreateNode(ctx context.Context, nodeType history.NodeType, inputTree, outputTree string, content string, meta history.NodeMeta) (*history.HistoryNode, error) {
	node, err := w.git.CreateNode(ctx, nodeType, inputTree, outputTree, content, meta)
	if err != nil {
		return nil, err
	}

	if err := w.mirror(ctx, node); err != nil {
		w.log.WithError(err).WithField("commit", node.CommitHash.String()).Warn("sqlite mirror write failed, marking out of sync")
	}

	return node, nil
}

func (w *SQLiteWriter) mirror(ctx context.Context, node *history.HistoryNode) error {
	metaJSON, err := json.Marshal(node.Meta)
	if err != nil {
		return err
	}

	row := sqlitedb.NodeRow{
		CommitHash:  node.CommitHash.String(),
		OwnerID:     node.OwnerID,
		InputTree:   node.InputTree.String(),
		OutputTree:  node.OutputTree.String(),
		NodeType:    string(node.NodeType),
		Timestamp:   node.Timestamp,
		Summary:     node.Summary,
		GeneratorID: node.GeneratorID,
		MetaJSON:    string(metaJSON),
	}

	var edges []sqlitedb.EdgeRow
	parent, err := w.git.repo.GetCommitByOutputTree(ctx, refs.LocalHead(w.branch), node.InputTree)
	if err == nil {
		edges = append(edges, sqlitedb.EdgeRow{ChildHash: node.CommitHash.String(), ParentHash: parent.Hash.String()})
	}

	return w.db.BatchInsert(ctx, []sqlitedb.NodeRow{row}, edges)
}
