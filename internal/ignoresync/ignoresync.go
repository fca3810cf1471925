// SPDX-License-Identifier: Apache-2.0

// Package ignoresync maintains a managed block of persistent ignore
// patterns inside a repository's .git/info/exclude file, leaving any
// surrounding content the user put there untouched.
package ignoresync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quipu-vcs/quipu/internal/history"
)

const (
	beginSentinel = "# --- Managed by Quipu ---"
	endSentinel   = "# --- End Managed by Quipu ---"
)

// ExcludePath returns the conventional exclude file path for a repository
// whose Git directory is gitDir.
func ExcludePath(gitDir string) string {
	return filepath.Join(gitDir, "info", "exclude")
}

// Sync rewrites the managed block in the exclude file at path to contain
// exactly patterns, preserving everything outside the sentinel lines
// byte-for-byte. If no managed block exists yet, one is appended.
func Sync(path string, patterns []string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: read %s: %v", history.ErrIOError, path, err)
	}

	before, after, hadBlock := splitManagedBlock(string(existing))

	var block strings.Builder
	block.WriteString(beginSentinel + "\n")
	for _, p := range patterns {
		block.WriteString(p + "\n")
	}
	block.WriteString(endSentinel + "\n")

	var out strings.Builder
	out.WriteString(before)
	if !hadBlock && before != "" && !strings.HasSuffix(before, "\n") {
		out.WriteString("\n")
	}
	out.WriteString(block.String())
	out.WriteString(after)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", history.ErrIOError, filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, []byte(out.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", history.ErrIOError, path, err)
	}

	return nil
}

// splitManagedBlock locates an existing sentinel-bounded block in content
// and returns everything before it, everything after it, and whether a
// block was found at all.
func splitManagedBlock(content string) (before, after string, found bool) {
	startIdx := strings.Index(content, beginSentinel)
	if startIdx == -1 {
		return content, "", false
	}

	endIdx := strings.Index(content[startIdx:], endSentinel)
	if endIdx == -1 {
		return content, "", false
	}
	endIdx += startIdx + len(endSentinel)

	after = content[endIdx:]
	after = strings.TrimPrefix(after, "\n")

	return content[:startIdx], after, true
}
