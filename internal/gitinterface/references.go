// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"context"
	"fmt"
	"strings"
)

// SetReference sets refName to gitID unconditionally, creating a reflog
// entry for it.
func (r *Repository) SetReference(ctx context.Context, refName string, gitID Hash) error {
	_, stdErr, err := r.executeGitCommand(ctx, "update-ref", "--create-reflog", refName, gitID.String())
	if err != nil {
		return fmt.Errorf("unable to set git reference '%s' to '%s': %s", refName, gitID.String(), stdErr)
	}

	return nil
}

// UpdateRef performs a compare-and-set update of refName: it only succeeds
// if the reference currently points at expected. On a mismatch it returns
// ErrRefRaceLost.
func (r *Repository) UpdateRef(ctx context.Context, refName string, newGitID, expected Hash) error {
	_, stdErr, err := r.executeGitCommand(ctx, "update-ref", "--create-reflog", refName, newGitID.String(), expected.String())
	if err != nil {
		if strings.Contains(stdErr, "expected") || strings.Contains(stdErr, "compare-and-swap") || strings.Contains(stdErr, "ref is at") {
			return fmt.Errorf("%w: %s", ErrRefRaceLost, stdErr)
		}
		return fmt.Errorf("unable to set git reference '%s' to '%s': %s", refName, newGitID.String(), stdErr)
	}

	return nil
}

// GetReference resolves refName to its current hash.
func (r *Repository) GetReference(ctx context.Context, refName string) (Hash, error) {
	stdOut, stdErr, err := r.executeGitCommand(ctx, "rev-parse", refName)
	if err != nil {
		if strings.Contains(stdErr, "unknown revision or path not in the working tree") {
			return ZeroHash, ErrReferenceNotFound
		}
		return ZeroHash, fmt.Errorf("unable to read reference '%s': %s", refName, stdErr)
	}

	hash, err := NewHash(strings.TrimSpace(stdOut))
	if err != nil {
		return ZeroHash, fmt.Errorf("invalid git ID for reference '%s': %w", refName, err)
	}

	return hash, nil
}

// RefHead pairs a reference name with the hash it currently resolves to.
type RefHead struct {
	RefName string
	Hash    Hash
}

// GetAllRefHeads returns every ref under prefix and the commit hash it
// currently points to.
func (r *Repository) GetAllRefHeads(ctx context.Context, prefix string) ([]RefHead, error) {
	stdOut, stdErr, err := r.executeGitCommand(ctx, "for-each-ref", "--format=%(objectname) %(refname)", prefix)
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate refs under '%s': %s", prefix, stdErr)
	}

	stdOut = strings.TrimSpace(stdOut)
	if stdOut == "" {
		return nil, nil
	}

	lines := strings.Split(stdOut, "\n")
	heads := make([]RefHead, 0, len(lines))
	for _, line := range lines {
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}

		hash, err := NewHash(fields[0])
		if err != nil {
			return nil, fmt.Errorf("invalid git ID '%s' for ref '%s': %w", fields[0], fields[1], err)
		}

		heads = append(heads, RefHead{RefName: fields[1], Hash: hash})
	}

	return heads, nil
}
