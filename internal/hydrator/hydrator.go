// SPDX-License-Identifier: Apache-2.0

// Package hydrator performs the one-way, incremental projection of quipu
// history from Git into the SQLite mirror.
package hydrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/refs"
	"github.com/quipu-vcs/quipu/internal/sqlitedb"
)

// Hydrator projects commits reachable from refs/quipu/** that the SQLite
// mirror doesn't yet know about.
type Hydrator struct {
	repo       *gitinterface.Repository
	codec      *codec.GitObjectCodec
	db         *sqlitedb.DatabaseManager
	localOwner string
	log        logrus.FieldLogger
}

// New returns a Hydrator bound to repo and db. localOwner is the owner id
// attributed to refs/quipu/local/heads/* commits.
func New(repo *gitinterface.Repository, c *codec.GitObjectCodec, db *sqlitedb.DatabaseManager, localOwner string, log logrus.FieldLogger) *Hydrator {
	return &Hydrator{repo: repo, codec: c, db: db, localOwner: localOwner, log: log}
}

// Sync runs one hydration pass: it is idempotent, so running it twice with
// no intervening writes inserts nothing the second time.
func (h *Hydrator) Sync(ctx context.Context) error {
	refHeads, err := h.repo.GetAllRefHeads(ctx, refs.Namespace)
	if err != nil {
		return fmt.Errorf("enumerate quipu refs: %w", err)
	}

	refNames := make([]string, 0, len(refHeads))
	hashOf := make(map[string]string, len(refHeads))
	for _, rh := range refHeads {
		refNames = append(refNames, rh.RefName)
		hashOf[rh.RefName] = rh.Hash.String()
	}

	heads := refs.ResolveHeads(refNames, hashOf, h.localOwner)
	if len(heads) == 0 {
		return nil
	}

	known, err := h.db.KnownCommitHashes(ctx)
	if err != nil {
		return fmt.Errorf("load known commit hashes: %w", err)
	}

	excludeHashes := make([]string, 0, len(known))
	for hash := range known {
		excludeHashes = append(excludeHashes, hash)
	}

	var allCommits []gitinterface.CommitInfo
	commitOwner := map[string]string{}

	for _, head := range heads {
		commits, err := h.repo.LogRefSince(ctx, head.RefName, excludeHashes...)
		if err != nil {
			return fmt.Errorf("walk incremental history for %s: %w", head.RefName, err)
		}

		for _, c := range commits {
			hash := c.Hash.String()
			if _, seen := commitOwner[hash]; seen {
				continue
			}
			commitOwner[hash] = head.Owner
			allCommits = append(allCommits, c)
		}
	}

	if len(allCommits) == 0 {
		return nil
	}

	treeHashes := make([]gitinterface.Hash, 0, len(allCommits))
	for _, c := range allCommits {
		treeHashes = append(treeHashes, c.Tree)
	}

	treeResults, err := h.repo.BatchCatFile(ctx, treeHashes)
	if err != nil {
		return fmt.Errorf("batch read node trees: %w", err)
	}
	treeByHash := map[string][]byte{}
	for _, r := range treeResults {
		treeByHash[r.Hash.String()] = r.Contents
	}

	var nodeRows []sqlitedb.NodeRow
	var edgeRows []sqlitedb.EdgeRow

	// outputTreeOf tracks the output tree decoded for each commit hydrated
	// so far in this pass; allCommits is oldest-first, so a commit's
	// parent (if it's also in this batch) is always resolved before it.
	outputTreeOf := map[string]string{}

	for _, c := range allCommits {
		treeContents, ok := treeByHash[c.Tree.String()]
		if !ok {
			h.log.WithField("commit", c.Hash.String()).Warn("skipping commit with unreadable anchor tree")
			continue
		}

		decoded, err := h.codec.Decode(ctx, c, treeContents)
		if err != nil {
			h.log.WithError(err).WithField("commit", c.Hash.String()).Warn("skipping undecodable quipu commit")
			continue
		}

		metaJSON, err := json.Marshal(decoded.Meta)
		if err != nil {
			h.log.WithError(err).WithField("commit", c.Hash.String()).Warn("skipping commit with unmarshalable metadata")
			continue
		}

		inputTree, err := h.inputTreeFor(ctx, c, outputTreeOf)
		if err != nil {
			h.log.WithError(err).WithField("commit", c.Hash.String()).Warn("skipping commit with unresolvable input tree")
			continue
		}

		outputTreeOf[c.Hash.String()] = decoded.OutputTree.String()

		nodeRows = append(nodeRows, sqlitedb.NodeRow{
			CommitHash:  c.Hash.String(),
			OwnerID:     commitOwner[c.Hash.String()],
			InputTree:   inputTree,
			OutputTree:  decoded.OutputTree.String(),
			NodeType:    string(decoded.Meta.Type),
			Timestamp:   float64(c.Timestamp),
			Summary:     decoded.Summary,
			GeneratorID: decoded.Meta.Generator.ID,
			MetaJSON:    string(metaJSON),
		})

		for _, p := range c.Parents {
			edgeRows = append(edgeRows, sqlitedb.EdgeRow{ChildHash: c.Hash.String(), ParentHash: p.String()})
		}
	}

	if len(nodeRows) == 0 && len(edgeRows) == 0 {
		return nil
	}

	return h.db.BatchInsert(ctx, nodeRows, edgeRows)
}

// inputTreeFor derives a commit's input tree (I1: equal to its parent's
// output tree) by first checking commits already decoded earlier in this
// pass, then falling back to an already-hydrated row in the SQLite mirror.
func (h *Hydrator) inputTreeFor(ctx context.Context, c gitinterface.CommitInfo, outputTreeOf map[string]string) (string, error) {
	if len(c.Parents) == 0 {
		return gitinterface.GenesisTree.String(), nil
	}

	parent := c.Parents[0].String()
	if tree, ok := outputTreeOf[parent]; ok {
		return tree, nil
	}

	row, ok, err := h.db.GetNode(ctx, parent)
	if err != nil {
		return "", fmt.Errorf("look up parent node %s: %w", parent, err)
	}
	if !ok {
		return "", fmt.Errorf("parent node %s not yet hydrated", parent)
	}

	return row.OutputTree, nil
}
