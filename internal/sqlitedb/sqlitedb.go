// SPDX-License-Identifier: Apache-2.0

// Package sqlitedb is the SQLite mirror of the Git-backed history graph: a
// read-through cache and query index, never the source of truth.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	commit_hash   TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	input_tree    TEXT NOT NULL,
	output_tree   TEXT NOT NULL,
	node_type     TEXT NOT NULL,
	timestamp     REAL NOT NULL,
	summary       TEXT NOT NULL,
	generator_id  TEXT,
	meta_json     TEXT NOT NULL,
	plan_md_cache TEXT
);
CREATE INDEX IF NOT EXISTS idx_nodes_output_tree ON nodes(output_tree);
CREATE INDEX IF NOT EXISTS idx_nodes_owner_id ON nodes(owner_id);
CREATE INDEX IF NOT EXISTS idx_nodes_timestamp ON nodes(timestamp);

CREATE TABLE IF NOT EXISTS edges (
	child_hash  TEXT NOT NULL,
	parent_hash TEXT NOT NULL,
	PRIMARY KEY (child_hash, parent_hash)
);
CREATE INDEX IF NOT EXISTS idx_edges_parent_hash ON edges(parent_hash);

CREATE TABLE IF NOT EXISTS private_data (
	commit_hash TEXT PRIMARY KEY,
	intent_md   TEXT
);
`

// NodeRow is one row of the nodes table.
type NodeRow struct {
	CommitHash  string
	OwnerID     string
	InputTree   string
	OutputTree  string
	NodeType    string
	Timestamp   float64
	Summary     string
	GeneratorID string
	MetaJSON    string
	// PlanMDCache is nil until the read-through reader back-fills it.
	PlanMDCache *string
}

// EdgeRow is one row of the edges table.
type EdgeRow struct {
	ChildHash  string
	ParentHash string
}

// DatabaseManager owns the single *sql.DB connection to the repository's
// SQLite mirror. All access goes through its mutex: the teacher's
// Repository is likewise not internally synchronized for Git, but SQLite's
// single-writer model makes an explicit mutex the right call here.
type DatabaseManager struct {
	db  *sql.DB
	mu  sync.Mutex
	log logrus.FieldLogger
}

// Open opens (and, if needed, creates) the SQLite mirror at path in WAL
// mode and ensures the schema exists.
func Open(ctx context.Context, path string, log logrus.FieldLogger) (*DatabaseManager, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite mirror at %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite mirror at %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}

	return &DatabaseManager{db: db, log: log}, nil
}

// Close releases the underlying connection.
func (m *DatabaseManager) Close() error {
	return m.db.Close()
}

// BatchInsert inserts nodes and edges under a single transaction. Node
// inserts use INSERT OR REPLACE (hydration is idempotent); edge inserts
// use INSERT OR IGNORE.
func (m *DatabaseManager) BatchInsert(ctx context.Context, nodes []NodeRow, edges []EdgeRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hydration transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nodes
			(commit_hash, owner_id, input_tree, output_tree, node_type, timestamp, summary, generator_id, meta_json, plan_md_cache)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	for _, n := range nodes {
		if _, err := nodeStmt.ExecContext(ctx, n.CommitHash, n.OwnerID, n.InputTree, n.OutputTree, n.NodeType, n.Timestamp, n.Summary, n.GeneratorID, n.MetaJSON, n.PlanMDCache); err != nil {
			return fmt.Errorf("insert node %s: %w", n.CommitHash, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges (child_hash, parent_hash) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range edges {
		if _, err := edgeStmt.ExecContext(ctx, e.ChildHash, e.ParentHash); err != nil {
			return fmt.Errorf("insert edge %s->%s: %w", e.ChildHash, e.ParentHash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hydration transaction: %w", err)
	}

	return nil
}

// KnownCommitHashes returns every commit hash already present in the nodes
// table, so the hydrator can compute the set missing from Git history.
func (m *DatabaseManager) KnownCommitHashes(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.QueryContext(ctx, `SELECT commit_hash FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("query known commit hashes: %w", err)
	}
	defer rows.Close()

	known := map[string]bool{}
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan known commit hash: %w", err)
		}
		known[hash] = true
	}

	return known, rows.Err()
}

// AllNodes returns every row in the nodes table, newest first.
func (m *DatabaseManager) AllNodes(ctx context.Context) ([]NodeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.QueryContext(ctx, `
		SELECT commit_hash, owner_id, input_tree, output_tree, node_type, timestamp, summary, generator_id, meta_json, plan_md_cache
		FROM nodes ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("query all nodes: %w", err)
	}
	defer rows.Close()

	var result []NodeRow
	for rows.Next() {
		var n NodeRow
		if err := rows.Scan(&n.CommitHash, &n.OwnerID, &n.InputTree, &n.OutputTree, &n.NodeType, &n.Timestamp, &n.Summary, &n.GeneratorID, &n.MetaJSON, &n.PlanMDCache); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		result = append(result, n)
	}

	return result, rows.Err()
}

// AllEdges returns every row in the edges table.
func (m *DatabaseManager) AllEdges(ctx context.Context) ([]EdgeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.QueryContext(ctx, `SELECT child_hash, parent_hash FROM edges`)
	if err != nil {
		return nil, fmt.Errorf("query all edges: %w", err)
	}
	defer rows.Close()

	var result []EdgeRow
	for rows.Next() {
		var e EdgeRow
		if err := rows.Scan(&e.ChildHash, &e.ParentHash); err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

// BackfillContent sets plan_md_cache for a node once its payload has been
// read through from Git. Failures here are logged by the caller, not
// surfaced: the read-through path must still return the content it found.
func (m *DatabaseManager) BackfillContent(ctx context.Context, commitHash, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, `UPDATE nodes SET plan_md_cache = ? WHERE commit_hash = ?`, content, commitHash)
	return err
}

// GetNode returns a single node row by commit hash.
func (m *DatabaseManager) GetNode(ctx context.Context, commitHash string) (NodeRow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n NodeRow
	row := m.db.QueryRowContext(ctx, `
		SELECT commit_hash, owner_id, input_tree, output_tree, node_type, timestamp, summary, generator_id, meta_json, plan_md_cache
		FROM nodes WHERE commit_hash = ?`, commitHash)

	if err := row.Scan(&n.CommitHash, &n.OwnerID, &n.InputTree, &n.OutputTree, &n.NodeType, &n.Timestamp, &n.Summary, &n.GeneratorID, &n.MetaJSON, &n.PlanMDCache); err != nil {
		if err == sql.ErrNoRows {
			return NodeRow{}, false, nil
		}
		return NodeRow{}, false, fmt.Errorf("get node %s: %w", commitHash, err)
	}

	return n, true, nil
}
