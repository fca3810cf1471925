// SPDX-License-Identifier: Apache-2.0

// Package history defines the node graph Quipu builds on top of Git commits,
// and the reader/writer interfaces every storage backend implements.
package history

import "github.com/quipu-vcs/quipu/internal/gitinterface"

// NodeType classifies what produced a HistoryNode.
type NodeType string

const (
	NodePlan    NodeType = "plan"
	NodeCapture NodeType = "capture"
	NodeSave    NodeType = "save"
)

// HistoryNode is a single point in a repository's history DAG: a Git commit
// anchoring an input/output tree pair, plus the metadata and payload
// attached to it.
type HistoryNode struct {
	// CommitHash is the Git commit SHA of the node's anchor commit. It is
	// the node's identity across every storage layer.
	CommitHash gitinterface.Hash

	// OwnerID is an opaque, stable identifier for the node's author,
	// resolved from the ref the node was reached through: the owner segment
	// of a remote mirror ref, or the configured local owner id for local
	// heads.
	OwnerID string

	// InputTree is the tree hash of the node's input working tree. Roots
	// carry gitinterface.GenesisTree.
	InputTree gitinterface.Hash

	// OutputTree is the tree hash of the resulting working tree, the
	// node's observable state.
	OutputTree gitinterface.Hash

	NodeType NodeType

	// Timestamp is a fractional-seconds Unix epoch.
	Timestamp float64

	Summary     string
	GeneratorID string

	// Content is the primary textual payload. It is loaded lazily: a node
	// freshly produced by LoadAllNodes may carry an empty Content even
	// though a payload exists in storage, until GetNodeContent is called.
	Content string

	Meta NodeMeta

	// Parent is nil for root nodes.
	Parent *HistoryNode

	// Children is sorted by Timestamp ascending; callers rely on this
	// order.
	Children []*HistoryNode
}

// NodeMeta is the canonical metadata.json payload. Field order matches the
// wire schema's declared key order (meta_version, summary, type, generator,
// env, exec); encoding/json preserves Go struct declaration order for
// struct marshaling, so no custom marshaler is needed to keep it stable.
type NodeMeta struct {
	MetaVersion string         `json:"meta_version"`
	Summary     string         `json:"summary"`
	Type        NodeType       `json:"type"`
	Generator   GeneratorMeta  `json:"generator"`
	Env         map[string]any `json:"env,omitempty"`
	Exec        ExecMeta       `json:"exec"`
}

// GeneratorMeta identifies the agent or tool that produced a node.
type GeneratorMeta struct {
	ID string `json:"id"`
}

// ExecMeta records when a node's production started and how long it took.
type ExecMeta struct {
	Start      float64 `json:"start"`
	DurationMS int64   `json:"duration_ms"`
}

const CurrentMetaVersion = "1.0"
