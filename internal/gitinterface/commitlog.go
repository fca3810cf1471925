// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CommitInfo is the subset of a Git commit's fields Quipu's codec and
// hydrator need, decoded from `git log`/`git cat-file` output.
type CommitInfo struct {
	Hash        Hash
	Parents     []Hash
	Tree        Hash
	Timestamp   int64
	AuthorName  string
	AuthorEmail string
	Body        string
}

// commitLogFormat separates the fields of a single commit with unit
// separators and commits from each other with a record separator, so the
// free-form commit body can safely contain spaces and newlines.
const commitLogFormat = "%H%x1f%P%x1f%T%x1f%at%x1f%an%x1f%ae%x1f%B%x1e"

// CommitTree creates a new commit with the given tree and parents, and
// returns its hash without moving any reference. Callers update the target
// ref themselves via UpdateRef, so a lost CAS race never leaves behind an
// orphan commit pointed to by anything.
func (r *Repository) CommitTree(ctx context.Context, tree Hash, parents []Hash, message string) (Hash, error) {
	args := []string{"commit-tree", tree.String(), "-m", message}
	for _, p := range parents {
		if !p.IsZero() {
			args = append(args, "-p", p.String())
		}
	}

	stdOut, stdErr, err := r.executeGitCommand(ctx, args...)
	if err != nil {
		return ZeroHash, fmt.Errorf("unable to create commit: %s", stdErr)
	}

	hash, err := NewHash(strings.TrimSpace(stdOut))
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid commit ID: %w", err)
	}

	return hash, nil
}

// GetCommit returns a single commit's info without walking its ancestry.
func (r *Repository) GetCommit(ctx context.Context, commit string) (CommitInfo, error) {
	stdOut, stdErr, err := r.executeGitCommand(ctx, "log", "-1", "--format="+commitLogFormat, commit)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("unable to read commit %s: %s", commit, stdErr)
	}

	commits, err := parseCommitLog(stdOut)
	if err != nil {
		return CommitInfo{}, err
	}
	if len(commits) != 1 {
		return CommitInfo{}, fmt.Errorf("%w: commit %s", ErrObjectNotFound, commit)
	}

	return commits[0], nil
}

// LogRef walks history reachable from the given ref heads (and not already
// walked via an earlier head, when multiple are passed) and returns the
// commits in topological order, oldest first.
func (r *Repository) LogRef(ctx context.Context, heads ...string) ([]CommitInfo, error) {
	args := append([]string{"log", "--topo-order", "--reverse", "--format=" + commitLogFormat}, heads...)

	stdOut, stdErr, err := r.executeGitCommand(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to walk history: %s", stdErr)
	}

	return parseCommitLog(stdOut)
}

// LogRefSince walks commits reachable from head but not from any of
// excludeHeads, the `git log head --not excludeHeads...` idiom the hydrator
// uses to find only the commits missing from the SQLite mirror.
func (r *Repository) LogRefSince(ctx context.Context, head string, excludeHeads ...string) ([]CommitInfo, error) {
	args := []string{"log", "--topo-order", "--reverse", "--format=" + commitLogFormat, head, "--not"}
	args = append(args, excludeHeads...)

	stdOut, stdErr, err := r.executeGitCommand(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to walk incremental history: %s", stdErr)
	}

	return parseCommitLog(stdOut)
}

// outputTreeTrailerPattern matches the X-Quipu-Output-Tree commit trailer.
// It is duplicated from the codec package's own pattern (rather than
// imported) because codec depends on gitinterface, not the reverse.
var outputTreeTrailerPattern = regexp.MustCompile(`(?m)^X-Quipu-Output-Tree:\s*([0-9a-f]{40})\s*$`)

func outputTreeTrailerOf(body string) (Hash, bool) {
	match := outputTreeTrailerPattern.FindStringSubmatch(body)
	if match == nil {
		return ZeroHash, false
	}

	hash, err := NewHash(match[1])
	if err != nil {
		return ZeroHash, false
	}

	return hash, true
}

// GetCommitByOutputTree returns the most recent commit reachable from head
// whose X-Quipu-Output-Tree trailer matches treeSHA, returning
// ErrObjectNotFound if none does. Refs other than head are not searched. Used to resolve a node's input tree back to the history
// node that produced it as output, e.g. when inserting a SQLite edge row.
func (r *Repository) GetCommitByOutputTree(ctx context.Context, head string, treeSHA Hash) (CommitInfo, error) {
	commits, err := r.LogRef(ctx, head)
	if err != nil {
		return CommitInfo{}, err
	}

	for i := len(commits) - 1; i >= 0; i-- {
		if ot, ok := outputTreeTrailerOf(commits[i].Body); ok && ot == treeSHA {
			return commits[i], nil
		}
	}

	return CommitInfo{}, fmt.Errorf("%w: no commit in %s has output tree %s", ErrObjectNotFound, head, treeSHA)
}

func parseCommitLog(stdOut string) ([]CommitInfo, error) {
	stdOut = strings.TrimRight(stdOut, "\n")
	if stdOut == "" {
		return nil, nil
	}

	records := strings.Split(stdOut, "\x1e")
	commits := make([]CommitInfo, 0, len(records))
	for _, record := range records {
		record = strings.TrimPrefix(record, "\n")
		if record == "" {
			continue
		}

		fields := strings.SplitN(record, "\x1f", 7)
		if len(fields) != 7 {
			return nil, fmt.Errorf("malformed commit log record: unexpected field count %d", len(fields))
		}

		hash, err := NewHash(fields[0])
		if err != nil {
			return nil, fmt.Errorf("invalid commit ID in log output: %w", err)
		}

		var parents []Hash
		if strings.TrimSpace(fields[1]) != "" {
			for _, p := range strings.Fields(fields[1]) {
				parentHash, err := NewHash(p)
				if err != nil {
					return nil, fmt.Errorf("invalid parent ID in log output: %w", err)
				}
				parents = append(parents, parentHash)
			}
		}

		tree, err := NewHash(fields[2])
		if err != nil {
			return nil, fmt.Errorf("invalid tree ID in log output: %w", err)
		}

		timestamp, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid commit timestamp in log output: %w", err)
		}

		commits = append(commits, CommitInfo{
			Hash:        hash,
			Parents:     parents,
			Tree:        tree,
			Timestamp:   timestamp,
			AuthorName:  fields[4],
			AuthorEmail: fields[5],
			Body:        strings.TrimSuffix(fields[6], "\n"),
		})
	}

	return commits, nil
}
