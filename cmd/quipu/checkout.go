// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quipu-vcs/quipu/internal/engine"
	"github.com/quipu-vcs/quipu/internal/history"
)

var checkoutForce bool

var checkoutCmd = &cobra.Command{
	Use:   "checkout <tree-prefix>",
	Short: "Restore the working directory to a past output tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if e.State() == engine.StateDirty && !checkoutForce {
			return usageErrorf("working directory has uncommitted drift, pass -f to discard it")
		}

		tree, err := resolvePrefix(e.HistoryGraph(), args[0])
		if err != nil {
			return err
		}

		if err := e.Checkout(ctx, tree); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", tree)
		return nil
	},
}

// resolvePrefix finds the unique node in nodes whose output tree starts
// with prefix, returning its full hash string.
func resolvePrefix(nodes []*history.HistoryNode, prefix string) (string, error) {
	var match string
	count := 0
	for _, n := range nodes {
		full := n.OutputTree.String()
		if strings.HasPrefix(full, prefix) {
			match = full
			count++
		}
	}
	switch count {
	case 0:
		return "", usageErrorf("no history node has an output tree starting with %q", prefix)
	case 1:
		return match, nil
	default:
		return "", usageErrorf("%q matches more than one output tree", prefix)
	}
}

func init() {
	checkoutCmd.Flags().BoolVarP(&checkoutForce, "force", "f", false, "discard uncommitted drift before checking out")
}
