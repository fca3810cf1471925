// SPDX-License-Identifier: Apache-2.0

package gitinterface

import "errors"

var (
	// ErrGitUnavailable indicates the git binary could not be found or an
	// underlying git invocation failed in a way that suggests the
	// repository itself is unusable.
	ErrGitUnavailable = errors.New("git operation failed or repository is unavailable")

	// ErrRefRaceLost indicates a compare-and-set ref update lost a race
	// against a concurrent writer.
	ErrRefRaceLost = errors.New("ref update lost a race against a concurrent writer")

	// ErrReferenceNotFound indicates the requested Git reference does not
	// exist.
	ErrReferenceNotFound = errors.New("requested git reference not found")

	// ErrObjectNotFound indicates a requested Git object is missing from
	// the object store.
	ErrObjectNotFound = errors.New("requested git object not found")
)
