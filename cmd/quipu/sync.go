// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/quipu-vcs/quipu/internal/refs"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and push local heads against a configured remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := runGit(ctx, "fetch", remoteFlag); err != nil {
			return fmt.Errorf("fetch from %s: %w", remoteFlag, err)
		}

		local := refs.LocalHead(branchFlag)
		if err := runGit(ctx, "push", remoteFlag, local+":"+local); err != nil {
			return fmt.Errorf("push to %s: %w", remoteFlag, err)
		}

		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "synced %s with %s, state is now %s\n", branchFlag, remoteFlag, e.State())
		return nil
	},
}

// runGit shells out to the git binary the way quipu-remote-helper does,
// leaving the configured remote's URL scheme (ext::quipu-remote-helper
// ...) to pick the transport.
func runGit(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err, output)
	}
	return nil
}
