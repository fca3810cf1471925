// SPDX-License-Identifier: Apache-2.0

// Package writer implements history.Writer against each of Quipu's storage
// backends: directly against Git, double-writing through to the SQLite
// mirror, and the legacy filesystem store.
package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/quipu-vcs/quipu/internal/codec"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
	"github.com/quipu-vcs/quipu/internal/refs"
)

// GitObjectWriter anchors new history nodes as Git commits and advances the
// local owner's head ref with a compare-and-set update, matching the
// teacher's retry-once-on-race policy for reference-state-log appends.
type GitObjectWriter struct {
	repo       *gitinterface.Repository
	codec      *codec.GitObjectCodec
	branch     string
	localOwner string
	log        logrus.FieldLogger
}

// NewGitObjectWriter returns a writer that advances refs/quipu/local/heads/<branch>
// on behalf of localOwner.
func NewGitObjectWriter(repo *gitinterface.Repository, c *codec.GitObjectCodec, branch, localOwner string, log logrus.FieldLogger) *GitObjectWriter {
	return &GitObjectWriter{repo: repo, codec: c, branch: branch, localOwner: localOwner, log: log}
}

// CreateNode implements history.Writer. It reads the current head, encodes
// the node as a child commit of that head, and advances the ref with a
// compare-and-set update, retrying once if a concurrent writer won the
// race.
func (w *GitObjectWriter) CreateNode(ctx context.Context, nodeType history.NodeType, inputTree, outputTree string, content string, meta history.NodeMeta) (*history.HistoryNode, error) {
	inputHash, err := gitinterface.NewHash(inputTree)
	if err != nil {
		return nil, fmt.Errorf("invalid input tree %q: %w", inputTree, err)
	}
	outputHash, err := gitinterface.NewHash(outputTree)
	if err != nil {
		return nil, fmt.Errorf("invalid output tree %q: %w", outputTree, err)
	}

	refName := refs.LocalHead(w.branch)

	commit, err := w.createNodeOnce(ctx, refName, nodeType, inputHash, outputHash, content, meta)
	if err != nil {
		if !errors.Is(err, gitinterface.ErrRefRaceLost) {
			return nil, err
		}

		w.log.WithField("ref", refName).Warn("lost ref race creating node, retrying once")
		commit, err = w.createNodeOnce(ctx, refName, nodeType, inputHash, outputHash, content, meta)
		if err != nil {
			return nil, fmt.Errorf("create node after retry: %w", err)
		}
	}

	return &history.HistoryNode{
		CommitHash:  commit.Hash,
		OwnerID:     w.localOwner,
		InputTree:   inputHash,
		OutputTree:  outputHash,
		NodeType:    nodeType,
		Timestamp:   float64(commit.Timestamp),
		Summary:     meta.Summary,
		GeneratorID: meta.Generator.ID,
		Content:     content,
		Meta:        meta,
	}, nil
}

// createNodeOnce performs a single attempt: read the current head, encode a
// child commit, and compare-and-set the ref. A race detected by UpdateRef
// surfaces as ErrRefRaceLost for the caller to retry.
func (w *GitObjectWriter) createNodeOnce(ctx context.Context, refName string, nodeType history.NodeType, inputTree, outputTree gitinterface.Hash, content string, meta history.NodeMeta) (gitinterface.CommitInfo, error) {
	currentHead, err := w.repo.GetReference(ctx, refName)
	if err != nil {
		if !errors.Is(err, gitinterface.ErrReferenceNotFound) {
			return gitinterface.CommitInfo{}, fmt.Errorf("%w: read head %s: %v", gitinterface.ErrGitUnavailable, refName, err)
		}
		currentHead = gitinterface.ZeroHash
	}

	commitHash, err := w.codec.Encode(ctx, nodeType, inputTree, outputTree, content, meta, currentHead)
	if err != nil {
		return gitinterface.CommitInfo{}, fmt.Errorf("%w: encode node: %v", gitinterface.ErrGitUnavailable, err)
	}

	if currentHead.IsZero() {
		if err := w.repo.SetReference(ctx, refName, commitHash); err != nil {
			return gitinterface.CommitInfo{}, fmt.Errorf("%w: %v", gitinterface.ErrGitUnavailable, err)
		}
	} else if err := w.repo.UpdateRef(ctx, refName, commitHash, currentHead); err != nil {
		return gitinterface.CommitInfo{}, err
	}

	commit, err := w.repo.GetCommit(ctx, commitHash.String())
	if err != nil {
		return gitinterface.CommitInfo{}, fmt.Errorf("%w: read back new commit: %v", gitinterface.ErrGitUnavailable, err)
	}

	return commit, nil
}
