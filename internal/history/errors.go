// SPDX-License-Identifier: Apache-2.0

package history

import "errors"

var (
	// ErrDecodeError indicates a quipu commit exists but its metadata is
	// malformed or its Output-Tree trailer is missing. Callers always skip
	// with a logged warning; it is never fatal.
	ErrDecodeError = errors.New("unable to decode history node from git object")

	// ErrMirrorInconsistent indicates the SQLite double-write failed after
	// the corresponding Git commit already succeeded. Git remains the
	// source of truth; the next Hydrator run reconciles it.
	ErrMirrorInconsistent = errors.New("sqlite mirror is out of sync with git history")

	// ErrConfigError indicates a malformed .quipu/config.yml.
	ErrConfigError = errors.New("invalid quipu configuration")

	// ErrIOError indicates a filesystem error on payload read/write.
	ErrIOError = errors.New("i/o error accessing history payload")
)
