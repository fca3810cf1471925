// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSinceRFC3339(t *testing.T) {
	got, err := parseSince("2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())
}

func TestParseSinceDuration(t *testing.T) {
	before := time.Now().Add(-24 * time.Hour)
	got, err := parseSince("24h")
	require.NoError(t, err)
	assert.WithinDuration(t, before, got, time.Minute)
}

func TestParseSinceRejectsGarbage(t *testing.T) {
	_, err := parseSince("not-a-time")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUsage)
}
