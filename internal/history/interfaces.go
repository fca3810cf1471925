// SPDX-License-Identifier: Apache-2.0

package history

import "context"

// Reader loads the history graph and fetches node payloads. It is
// implemented by the GitObject, SQLite, and filesystem backends; callers
// depend only on this interface, never on a concrete variant.
type Reader interface {
	// LoadAllNodes returns the complete, linked history graph. Each node's
	// Children slice is sorted by Timestamp ascending.
	LoadAllNodes(ctx context.Context) ([]*HistoryNode, error)

	// GetNodeContent lazily fetches a node's textual payload, returning an
	// empty string if none is present.
	GetNodeContent(ctx context.Context, node *HistoryNode) (string, error)
}

// Writer creates new history nodes.
type Writer interface {
	// CreateNode anchors a new node: inputTree and outputTree are Git tree
	// hashes, content is the node's primary textual payload, and meta is
	// its metadata record. The returned node's CommitHash is the new
	// anchor commit.
	CreateNode(ctx context.Context, nodeType NodeType, inputTree, outputTree string, content string, meta NodeMeta) (*HistoryNode, error)
}
