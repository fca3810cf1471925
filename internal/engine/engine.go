// SPDX-License-Identifier: Apache-2.0

// Package engine ties a working directory to its history graph. It
// computes the ORPHAN/ALIGNED/DIRTY state, selects the storage backend
// (git-object, sqlite, or legacy filesystem), and exposes Align,
// CaptureDrift, and Checkout as the surface higher layers (CLI, act-plugin
// executor, TUI) build on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/config"
	"github.com/quipu-vcs/quipu/internal/fsstore"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/hydrator"
	"github.com/quipu-vcs/quipu/internal/ignoresync"
	"github.com/quipu-vcs/quipu/internal/reader"
	"github.com/quipu-vcs/quipu/internal/refs"
	"github.com/quipu-vcs/quipu/internal/sqlitedb"
	"github.com/quipu-vcs/quipu/internal/writer"
)

// State is the Engine's alignment with the working directory.
type State int

const (
	// StateOrphan means no history node exists yet for this owner.
	StateOrphan State = iota
	// StateAligned means the working tree hash equals CurrentNode's OutputTree.
	StateAligned
	// StateDirty means the working tree has drifted from CurrentNode.
	StateDirty
)

func (s State) String() string {
	switch s {
	case StateOrphan:
		return "ORPHAN"
	case StateAligned:
		return "ALIGNED"
	case StateDirty:
		return "DIRTY"
	default:
		return "UNKNOWN"
	}
}

// defaultIgnores is used when .quipu/config.yml sets no persistent_ignores.
var defaultIgnores = []string{".envs", ".vscode", "o.md", ".quipu/cache/"}

// Engine is the top-level object gluing the Git repository, the storage
// backend, and the in-memory history graph together for one working
// directory.
type Engine struct {
	repo   *gitinterface.Repository
	reader history.Reader
	writer history.Writer
	db     *sqlitedb.DatabaseManager

	root       string
	branch     string
	localOwner string
	log        logrus.FieldLogger

	nodes   []*history.HistoryNode
	current *history.HistoryNode
	state   State
}

// New constructs an Engine rooted at root (the repository's working
// directory) wrapping repo, and immediately runs Align. branch names the
// local head this Engine tracks (refs/quipu/local/heads/<branch>);
// localOwner is this machine's owner id, attributed to nodes it creates.
func New(ctx context.Context, root string, repo *gitinterface.Repository, branch, localOwner string, log logrus.FieldLogger) (*Engine, error) {
	e := &Engine{
		repo:       repo,
		root:       root,
		branch:     branch,
		localOwner: localOwner,
		log:        log,
	}

	if err := e.selectBackend(ctx); err != nil {
		return nil, err
	}

	if err := e.Align(ctx); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// selectBackend picks the Reader/Writer implementation per §6: legacy
// filesystem storage if .quipu/history/ already holds files, otherwise
// whatever storage.type names in .quipu/config.yml (default git_object).
func (e *Engine) selectBackend(ctx context.Context) error {
	if fsstore.IsLegacyRepo(e.root) {
		e.log.WithField("root", e.root).Debug("legacy filesystem history detected, never mixing backends")
		e.reader = reader.NewFilesystemReader(e.root, e.log)
		e.writer = writer.NewFilesystemWriter(e.root)
		return nil
	}

	cfg, err := config.Load(e.root)
	if err != nil {
		return err
	}

	c := codec.NewGitObjectCodec(e.repo)

	switch cfg.Storage.Type {
	case config.StorageSQLite:
		db, err := sqlitedb.Open(ctx, filepath.Join(e.root, ".quipu", "history.sqlite"), e.log)
		if err != nil {
			return fmt.Errorf("open sqlite mirror: %w", err)
		}
		e.db = db

		h := hydrator.New(e.repo, c, db, e.localOwner, e.log)
		if err := h.Sync(ctx); err != nil {
			db.Close()
			return fmt.Errorf("hydrate sqlite mirror: %w", err)
		}

		gitReader := reader.NewGitObjectReader(e.repo, c, e.localOwner, e.log)
		gitWriter := writer.NewGitObjectWriter(e.repo, c, e.branch, e.localOwner, e.log)
		e.reader = reader.NewSQLiteReader(db, gitReader, e.log)
		e.writer = writer.NewSQLiteWriter(gitWriter, db, e.branch, e.log)

	case config.StorageFilesystem:
		e.reader = reader.NewFilesystemReader(e.root, e.log)
		e.writer = writer.NewFilesystemWriter(e.root)

	default:
		e.reader = reader.NewGitObjectReader(e.repo, c, e.localOwner, e.log)
		e.writer = writer.NewGitObjectWriter(e.repo, c, e.branch, e.localOwner, e.log)
	}

	return nil
}

// Align loads the history graph, syncs persistent ignores, identifies
// CurrentNode, and recomputes State. It is idempotent on an unchanged
// working tree and repeatable at any point in the Engine's lifetime.
func (e *Engine) Align(ctx context.Context) error {
	if err := e.syncIgnores(); err != nil {
		return err
	}

	nodes, err := e.reader.LoadAllNodes(ctx)
	if err != nil {
		return fmt.Errorf("load history graph: %w", err)
	}
	e.nodes = nodes

	current, err := e.resolveCurrentNode(ctx, nodes)
	if err != nil {
		return err
	}
	e.current = current

	if e.current == nil {
		e.state = StateOrphan
		return nil
	}

	treeHash, err := e.repo.GetTreeHash(ctx)
	if err != nil {
		return fmt.Errorf("compute working tree hash: %w", err)
	}

	if treeHash == e.current.OutputTree {
		e.state = StateAligned
	} else {
		e.state = StateDirty
	}

	return nil
}

// syncIgnores rewrites the managed ignore block in .git/info/exclude from
// configuration, falling back to the documented default set.
func (e *Engine) syncIgnores() error {
	patterns := defaultIgnores

	cfg, err := config.Load(e.root)
	if err == nil && len(cfg.Sync.PersistentIgnores) > 0 {
		patterns = cfg.Sync.PersistentIgnores
	}

	return ignoresync.Sync(ignoresync.ExcludePath(e.repo.GetGitDir()), patterns)
}

// resolveCurrentNode finds the tip of the local head. Git-backed storage
// (git_object, sqlite) tracks this via refs/quipu/local/heads/<branch>;
// legacy filesystem storage has no ref concept, so the tip is whichever
// loaded node has no children, preferring the most recently created one if
// more than one leaf exists.
func (e *Engine) resolveCurrentNode(ctx context.Context, nodes []*history.HistoryNode) (*history.HistoryNode, error) {
	if fsstore.IsLegacyRepo(e.root) {
		return latestLeaf(nodes), nil
	}

	head, err := e.repo.GetReference(ctx, refs.LocalHead(e.branch))
	if err != nil {
		if errors.Is(err, gitinterface.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve local head: %w", err)
	}

	for _, n := range nodes {
		if n.CommitHash == head {
			return n, nil
		}
	}

	return nil, fmt.Errorf("local head %s has no corresponding history node", head)
}

// latestLeaf returns the childless node with the greatest Timestamp, or nil
// if nodes is empty.
func latestLeaf(nodes []*history.HistoryNode) *history.HistoryNode {
	var latest *history.HistoryNode
	for _, n := range nodes {
		if len(n.Children) > 0 {
			continue
		}
		if latest == nil || n.Timestamp > latest.Timestamp {
			latest = n
		}
	}
	return latest
}

// CaptureDrift anchors the working directory's current drift as a new
// capture node: InputTree is CurrentNode's OutputTree (or the genesis tree
// if the Engine is ORPHAN), OutputTree is dirtyTree. On success CurrentNode
// advances to the new node and State becomes ALIGNED. The underlying
// writer retries once internally on a lost ref race (§5); a second failure
// is returned to the caller unretried.
func (e *Engine) CaptureDrift(ctx context.Context, dirtyTree string) (*history.HistoryNode, error) {
	return e.anchor(ctx, history.NodeCapture, dirtyTree, "capture", "")
}

// Save anchors the working directory's current state (computed fresh via
// GetTreeHash rather than supplied by a caller) as a new save node carrying
// summary as its message. It is the primitive behind the `save` CLI
// subcommand, which knows a human message but not a pre-computed tree.
func (e *Engine) Save(ctx context.Context, summary string) (*history.HistoryNode, error) {
	treeHash, err := e.repo.GetTreeHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute working tree hash: %w", err)
	}

	return e.anchor(ctx, history.NodeSave, treeHash.String(), summary, "")
}

// anchor is the shared implementation behind CaptureDrift and Save: it
// writes a new node via the selected backend's Writer and splices it into
// the in-memory graph.
func (e *Engine) anchor(ctx context.Context, nodeType history.NodeType, outputTree, summary, content string) (*history.HistoryNode, error) {
	inputTree := gitinterface.GenesisTree.String()
	if e.current != nil {
		inputTree = e.current.OutputTree.String()
	}

	meta := history.NodeMeta{
		MetaVersion: history.CurrentMetaVersion,
		Summary:     summary,
		Type:        nodeType,
		Exec:        history.ExecMeta{Start: float64(time.Now().Unix())},
	}

	node, err := e.writer.CreateNode(ctx, nodeType, inputTree, outputTree, content, meta)
	if err != nil {
		return nil, fmt.Errorf("anchor %s node: %w", nodeType, err)
	}

	node.Parent = e.current
	if e.current != nil {
		e.current.Children = append(e.current.Children, node)
	}
	e.nodes = append(e.nodes, node)
	e.current = node
	e.state = StateAligned

	return node, nil
}

// Checkout materializes outputTree into the working directory and, on
// success, advances CurrentNode to the node owning that output tree.
// Reachable from any State; the result is always ALIGNED.
func (e *Engine) Checkout(ctx context.Context, outputTree string) error {
	tree, err := gitinterface.NewHash(outputTree)
	if err != nil {
		return fmt.Errorf("invalid output tree %q: %w", outputTree, err)
	}

	var owner *history.HistoryNode
	for _, n := range e.nodes {
		if n.OutputTree == tree {
			owner = n
			break
		}
	}
	if owner == nil {
		return fmt.Errorf("no history node has output tree %s", outputTree)
	}

	if err := e.repo.CheckoutTree(ctx, tree); err != nil {
		return fmt.Errorf("checkout %s: %w", outputTree, err)
	}

	e.current = owner
	e.state = StateAligned

	return nil
}

// CurrentNode returns the tip node the Engine is anchored on, or nil in
// State ORPHAN.
func (e *Engine) CurrentNode() *history.HistoryNode {
	return e.current
}

// State returns the Engine's current alignment.
func (e *Engine) State() State {
	return e.state
}

// HistoryGraph returns every loaded node in the order the reader returned
// them, Timestamp ascending, with nodes anchored since appended after them.
// Children of each node are sorted by Timestamp ascending.
func (e *Engine) HistoryGraph() []*history.HistoryNode {
	return e.nodes
}

// Close releases resources the Engine opened, such as the SQLite mirror
// connection. It is always safe to call, including when no such resource
// was opened.
func (e *Engine) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}
