// SPDX-License-Identifier: Apache-2.0

// Package refs builds and parses the Git reference names under
// refs/quipu/ that Quipu uses to track per-owner history heads, modeled on
// the way gittuf's reference state log pins a single well-known namespace
// (refs/gittuf/reference-state-log) but generalized to many owners.
package refs

import (
	"fmt"
	"regexp"
)

const (
	// Namespace is the root under which every quipu ref lives.
	Namespace = "refs/quipu/"

	// LocalHeadsPrefix holds this machine's own heads.
	LocalHeadsPrefix = "refs/quipu/local/heads/"

	// RemotesPrefix holds local mirrors of other owners' heads, fetched
	// from a remote: refs/quipu/remotes/<remote>/<owner_id>/heads/<branch>.
	RemotesPrefix = "refs/quipu/remotes/"

	// UsersPrefix is the canonical remote-side layout a user publishes
	// their own heads under: refs/quipu/users/<owner_id>/heads/<branch>.
	UsersPrefix = "refs/quipu/users/"
)

var remoteOwnerPattern = regexp.MustCompile(`^refs/quipu/remotes/[^/]+/([^/]+)/heads/`)

// LocalHead returns the local ref name for the given branch.
func LocalHead(branch string) string {
	return LocalHeadsPrefix + branch
}

// RemoteHead returns the local mirror ref name for a branch owned by owner
// on the named remote.
func RemoteHead(remote, owner, branch string) string {
	return fmt.Sprintf("%s%s/%s/heads/%s", RemotesPrefix, remote, owner, branch)
}

// UserHead returns the canonical publish-side ref name for a branch owned
// by owner.
func UserHead(owner, branch string) string {
	return fmt.Sprintf("%s%s/heads/%s", UsersPrefix, owner, branch)
}

// ResolveOwner determines which owner a quipu ref belongs to, following
// §4.3's resolution order: a refs/quipu/remotes/<remote>/<owner>/heads/*
// ref resolves to its embedded owner; a refs/quipu/local/heads/* ref
// resolves to localOwner; anything else is unresolved.
func ResolveOwner(refName, localOwner string) (owner string, ok bool) {
	if match := remoteOwnerPattern.FindStringSubmatch(refName); match != nil {
		return match[1], true
	}

	if len(refName) >= len(LocalHeadsPrefix) && refName[:len(LocalHeadsPrefix)] == LocalHeadsPrefix {
		return localOwner, true
	}

	return "", false
}

// Head pairs a ref name with its owner and the hash it currently resolves
// to. It mirrors gitinterface.RefHead plus the resolved owner, so the
// hydrator doesn't need to re-run ResolveOwner per head.
type Head struct {
	RefName string
	Owner   string
	Hash    string
}

// ResolveHeads classifies a batch of ref heads, dropping any whose owner
// can't be resolved. When the same head hash appears under more than one
// ref, the first ref encountered wins attribution for that hash; owners
// are non-authoritative metadata, not identity, so later refs pointing at
// an already-attributed hash are ignored rather than overriding it.
func ResolveHeads(refNames []string, hashOf map[string]string, localOwner string) []Head {
	seenHash := map[string]bool{}

	heads := make([]Head, 0, len(refNames))
	for _, refName := range refNames {
		owner, ok := ResolveOwner(refName, localOwner)
		if !ok {
			continue
		}

		hash := hashOf[refName]
		if seenHash[hash] {
			continue
		}
		seenHash[hash] = true

		heads = append(heads, Head{RefName: refName, Owner: owner, Hash: hash})
	}

	return heads
}
