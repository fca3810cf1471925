// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// CatFileResult is one object returned from a batch cat-file session.
type CatFileResult struct {
	Hash     Hash
	Kind     ObjectKind
	Contents []byte
}

// BatchCatFile streams the requested object hashes through a single
// `git cat-file --batch` subprocess, avoiding a fork per object when the
// hydrator is pulling hundreds of commits' worth of trees and blobs.
func (r *Repository) BatchCatFile(ctx context.Context, hashes []Hash) ([]CatFileResult, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, "git", "--git-dir", r.gitDirPath, "cat-file", "--batch")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to open cat-file stdin: %w", err)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to start cat-file: %w", err)
	}

	go func() {
		defer stdin.Close()
		for _, h := range hashes {
			fmt.Fprintln(stdin, h.String())
		}
	}()

	if err := cmd.Wait(); err != nil {
		r.log.WithError(err).WithField("stderr", stderr.String()).Debug("batch cat-file failed")
		return nil, fmt.Errorf("cat-file --batch failed: %s", stderr.String())
	}

	return parseBatchOutput(stdout.Bytes())
}

// parseBatchOutput decodes the `git cat-file --batch` wire format:
// a header line "<sha> <type> <size>\n" followed by <size> bytes of content
// and a trailing newline, repeated once per requested object.
func parseBatchOutput(raw []byte) ([]CatFileResult, error) {
	reader := bufio.NewReader(bytes.NewReader(raw))

	var results []CatFileResult
	for {
		header, err := reader.ReadString('\n')
		if err == io.EOF && header == "" {
			break
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("unable to read cat-file header: %w", err)
		}

		fields := bytes.Fields([]byte(header))
		if len(fields) < 2 {
			continue
		}
		if len(fields) == 2 && string(fields[1]) == "missing" {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed cat-file header: %q", header)
		}

		hash, err := NewHash(string(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid object ID in cat-file output: %w", err)
		}

		size, err := strconv.Atoi(string(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid size in cat-file output: %w", err)
		}

		content := make([]byte, size)
		if _, err := io.ReadFull(reader, content); err != nil {
			return nil, fmt.Errorf("unable to read cat-file content: %w", err)
		}

		// consume the trailing newline after the object's content
		if _, err := reader.ReadByte(); err != nil && err != io.EOF {
			return nil, fmt.Errorf("unable to read cat-file trailer: %w", err)
		}

		results = append(results, CatFileResult{
			Hash:     hash,
			Kind:     ObjectKind(fields[1]),
			Contents: content,
		})
	}

	return results, nil
}

// TreeItem is one decoded entry of a Git tree object.
type TreeItem struct {
	Mode string
	Name string
	Hash Hash
}

// DecodeTree parses the raw contents of a tree object as returned by
// BatchCatFile, without shelling out to `git ls-tree`. The binary format is
// a sequence of "<mode> <name>\0<20-byte sha>" records.
func DecodeTree(contents []byte) ([]TreeItem, error) {
	var items []TreeItem

	for len(contents) > 0 {
		sp := bytes.IndexByte(contents, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("malformed tree entry: missing mode separator")
		}
		mode := string(contents[:sp])
		contents = contents[sp+1:]

		nul := bytes.IndexByte(contents, 0)
		if nul < 0 {
			return nil, fmt.Errorf("malformed tree entry: missing name terminator")
		}
		name := string(contents[:nul])
		contents = contents[nul+1:]

		if len(contents) < 20 {
			return nil, fmt.Errorf("malformed tree entry: truncated object ID")
		}
		shaBytes := contents[:20]
		contents = contents[20:]

		items = append(items, TreeItem{
			Mode: mode,
			Name: name,
			Hash: Hash{hash: fmt.Sprintf("%x", shaBytes)},
		})
	}

	return items, nil
}
