// SPDX-License-Identifier: Apache-2.0

// Package fsstore implements Quipu's legacy filesystem storage backend:
// history nodes as YAML-front-matter Markdown files under
// .quipu/history/, predating the Git-object and SQLite backends. It is
// used for repositories that already hold legacy files, or when
// storage.type is set to "filesystem".
package fsstore

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // legacy node identity, not a security boundary
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quipu-vcs/quipu/internal/history"
)

// HistoryDir is the directory holding legacy node files, relative to a
// repository root.
const HistoryDir = ".quipu/history"

const (
	frontMatterDelim = "---"
	timestampLayout  = "20060102150405"
)

// frontMatter is the YAML document bounded by the `---` delimiters at the
// top of a legacy node file.
type frontMatter struct {
	InputTree   string           `yaml:"input_tree"`
	OutputTree  string           `yaml:"output_tree"`
	NodeType    history.NodeType `yaml:"node_type"`
	Timestamp   float64          `yaml:"timestamp"`
	Summary     string           `yaml:"summary"`
	GeneratorID string           `yaml:"generator_id,omitempty"`
	Meta        history.NodeMeta `yaml:"meta"`
}

// IsLegacyRepo reports whether root contains a non-empty .quipu/history/
// directory with at least one *.md file, the detection rule the Engine
// uses to pick the filesystem backend over Git-object/SQLite.
func IsLegacyRepo(root string) bool {
	entries, err := os.ReadDir(filepath.Join(root, HistoryDir))
	if err != nil {
		return false
	}

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			return true
		}
	}

	return false
}

// SyntheticHash derives a stable 40-hex identity for a legacy node from its
// filename, since legacy files have no underlying Git commit to anchor on.
func SyntheticHash(filename string) string {
	sum := sha1.Sum([]byte(filename)) //nolint:gosec // identity only
	return hex.EncodeToString(sum[:])
}

// filenameFor builds the conventional legacy filename for a node, appending
// a numeric disambiguator only when a file with that exact name already
// exists, since the scheme's second-resolution timestamp can collide.
func filenameFor(dir, inputTree, outputTree string, ts time.Time) (string, error) {
	base := fmt.Sprintf("%s_%s_%s", inputTree, outputTree, ts.UTC().Format(timestampLayout))

	candidate := base + ".md"
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("%w: stat %s: %v", history.ErrIOError, candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d.md", base, i)
	}
}

// WriteNode serializes node to a new legacy file under root's history
// directory and returns the filename written.
func WriteNode(root string, node *history.HistoryNode, content string) (string, error) {
	dir := filepath.Join(root, HistoryDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create history dir: %v", history.ErrIOError, err)
	}

	fm := frontMatter{
		InputTree:   node.InputTree.String(),
		OutputTree:  node.OutputTree.String(),
		NodeType:    node.NodeType,
		Timestamp:   node.Timestamp,
		Summary:     node.Summary,
		GeneratorID: node.GeneratorID,
		Meta:        node.Meta,
	}

	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("%w: marshal front matter: %v", history.ErrIOError, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(yamlBytes)
	buf.WriteString(frontMatterDelim + "\n\n")
	buf.WriteString(content)

	name, err := filenameFor(dir, fm.InputTree, fm.OutputTree, time.Unix(int64(node.Timestamp), 0))
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", history.ErrIOError, name, err)
	}

	return name, nil
}

// ParsedFile is one legacy node file's decoded form.
type ParsedFile struct {
	Filename    string
	InputTree   string
	OutputTree  string
	NodeType    history.NodeType
	Timestamp   float64
	Summary     string
	GeneratorID string
	Meta        history.NodeMeta
	Content     string
}

// parseFile splits a legacy node file into its front matter and body.
func parseFile(path string) (ParsedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ParsedFile{}, fmt.Errorf("%w: read %s: %v", history.ErrIOError, path, err)
	}

	text := string(raw)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return ParsedFile{}, fmt.Errorf("%w: %s has no front matter", history.ErrDecodeError, path)
	}
	rest := strings.TrimPrefix(text, frontMatterDelim+"\n")

	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end == -1 {
		return ParsedFile{}, fmt.Errorf("%w: %s has unterminated front matter", history.ErrDecodeError, path)
	}

	yamlPart := rest[:end]
	body := strings.TrimPrefix(rest[end+len(frontMatterDelim)+2:], "\n")

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(yamlPart), &fm); err != nil {
		return ParsedFile{}, fmt.Errorf("%w: %s has malformed front matter: %v", history.ErrDecodeError, path, err)
	}

	return ParsedFile{
		Filename:    filepath.Base(path),
		InputTree:   fm.InputTree,
		OutputTree:  fm.OutputTree,
		NodeType:    fm.NodeType,
		Timestamp:   fm.Timestamp,
		Summary:     fm.Summary,
		GeneratorID: fm.GeneratorID,
		Meta:        fm.Meta,
		Content:     body,
	}, nil
}

// LoadAll reads and decodes every legacy node file under root's history
// directory, sorted oldest first by timestamp. Files that fail to parse
// are skipped silently; their errors are not returned to the caller.
func LoadAll(root string) ([]ParsedFile, error) {
	dir := filepath.Join(root, HistoryDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read history dir: %v", history.ErrIOError, err)
	}

	var files []ParsedFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}

		parsed, err := parseFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		files = append(files, parsed)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp < files[j].Timestamp })

	return files, nil
}
