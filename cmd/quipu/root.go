// SPDX-License-Identifier: Apache-2.0

// Command quipu is a minimal CLI over internal/engine: log inspects the
// history graph, save anchors the working tree, checkout restores a past
// output tree, and sync exchanges heads with a configured remote.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quipu-vcs/quipu/internal/config"
	"github.com/quipu-vcs/quipu/internal/engine"
	"github.com/quipu-vcs/quipu/internal/gitinterface"
	"github.com/quipu-vcs/quipu/internal/history"
)

// errUsage marks an error as the caller's fault: bad arguments, an
// unparseable flag, an ambiguous tree prefix. main exits 1 for these and 2
// for everything else, per the engine/user error split.
var errUsage = errors.New("usage error")

var (
	branchFlag string
	remoteFlag string
)

var rootCmd = &cobra.Command{
	Use:           "quipu",
	Short:         "Inspect and advance a quipu history graph",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&branchFlag, "branch", "main", "local head to operate on")
	rootCmd.PersistentFlags().StringVar(&remoteFlag, "remote", "origin", "remote name used by sync")

	rootCmd.AddCommand(logCmd, saveCmd, checkoutCmd, syncCmd)
}

// newEngine constructs an Engine rooted at the current working directory,
// the shape every subcommand needs before it can do anything else.
func newEngine(ctx context.Context) (*engine.Engine, error) {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	repo, err := gitinterface.LoadRepository(log)
	if err != nil {
		return nil, err
	}

	root := "."
	localOwner := config.LocalOwner(root)

	return engine.New(ctx, root, repo, branchFlag, localOwner, log)
}

// exitCode classifies err per §6/§7: nil succeeds, errUsage and malformed
// configuration are the caller's fault, everything else is an engine
// failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errUsage) || errors.Is(err, history.ErrConfigError) {
		return 1
	}
	return 2
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
