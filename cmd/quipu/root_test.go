// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil succeeds", nil, 0},
		{"usage error", usageErrorf("bad flag"), 1},
		{"config error", history.ErrConfigError, 1},
		{"config error text without wrapping", errors.New("wrap: " + history.ErrConfigError.Error()), 2},
		{"engine error", gitinterface.ErrRefRaceLost, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
