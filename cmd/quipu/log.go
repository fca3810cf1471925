// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/quipu-vcs/quipu/internal/history"
)

var (
	logLimit int
	logSince string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List history nodes, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var since time.Time
		if logSince != "" {
			t, err := parseSince(logSince)
			if err != nil {
				return err
			}
			since = t
		}

		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		nodes := append([]*history.HistoryNode(nil), e.HistoryGraph()...)
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Timestamp > nodes[j].Timestamp })

		printed := 0
		for _, n := range nodes {
			if !since.IsZero() && n.Timestamp < float64(since.Unix()) {
				continue
			}
			if logLimit > 0 && printed >= logLimit {
				break
			}

			when := time.Unix(int64(n.Timestamp), 0).Format(time.RFC3339)
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-8s %s\n", n.OutputTree, when, n.NodeType, n.Summary)
			printed++
		}

		return nil
	},
}

// parseSince accepts either an RFC3339 timestamp or a duration (e.g. "24h")
// taken relative to now.
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Time{}, usageErrorf("--since %q is neither an RFC3339 timestamp nor a duration", raw)
}

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 0, "maximum number of nodes to print (0 means unlimited)")
	logCmd.Flags().StringVar(&logSince, "since", "", "only print nodes at or after this time (RFC3339 or duration like 24h)")
}
