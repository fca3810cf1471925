// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const binary = "git"

// Repository is a thin command-level adapter over a local Git repository. It
// stores the location of the repository's GIT_DIR and shells out to the git
// binary for every plumbing operation rather than re-implementing Git's
// object formats.
type Repository struct {
	gitDirPath string
	clock      clockwork.Clock
	log        logrus.FieldLogger
}

// GetGitDir returns the GIT_DIR path for the repository.
func (r *Repository) GetGitDir() string {
	return r.gitDirPath
}

// LoadRepository returns a Repository instance using the current working
// directory. It also inspects PATH to ensure Git is installed.
func LoadRepository(log logrus.FieldLogger) (*Repository, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: unable to find git binary, is git installed?", ErrGitUnavailable)
	}

	repo := &Repository{clock: clockwork.NewRealClock(), log: log}

	if envVar := os.Getenv("GIT_DIR"); envVar != "" {
		repo.gitDirPath = envVar
		return repo, nil
	}

	stdOut, stdErr, err := repo.executeGitCommandDirect(context.Background(), "rev-parse", "--git-dir")
	if err != nil {
		return nil, fmt.Errorf("%w: unable to identify GIT_DIR: %s", ErrGitUnavailable, stdErr)
	}
	repo.gitDirPath = strings.TrimSpace(stdOut)

	return repo, nil
}

// LoadRepositoryAt returns a Repository instance rooted at the given GIT_DIR,
// bypassing working-directory discovery. Used by tests and by callers that
// already know the repository location.
func LoadRepositoryAt(gitDirPath string, log logrus.FieldLogger) *Repository {
	return &Repository{gitDirPath: gitDirPath, clock: clockwork.NewRealClock(), log: log}
}

// executeGitCommand runs the specified command in the repository, adding the
// explicit --git-dir parameter.
func (r *Repository) executeGitCommand(ctx context.Context, args ...string) (string, string, error) {
	args = append([]string{"--git-dir", r.gitDirPath}, args...)
	return r.executeGitCommandDirect(ctx, args...)
}

// executeGitCommandDirect runs the specified command without adding
// --git-dir, for invocations (like rev-parse --git-dir itself) that must run
// relative to the current working directory.
func (r *Repository) executeGitCommandDirect(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	err := cmd.Run()
	stdOutString := stdOut.String() // sometimes we want the trailing new line, e.g. cat-file -p of a blob
	stdErrString := strings.TrimSpace(stdErr.String())
	if err != nil {
		if stdErrString == "" {
			stdErrString = "error running `git " + strings.Join(args, " ") + "`"
		}
		if r.log != nil {
			r.log.WithError(err).WithField("args", args).Debug("git command failed")
		}
	}
	return stdOutString, stdErrString, err
}

// executeGitCommandWithStdIn runs the specified command with stdInContents
// piped to the process's stdin, adding --git-dir.
func (r *Repository) executeGitCommandWithStdIn(ctx context.Context, stdInContents []byte, args ...string) (string, string, error) {
	args = append([]string{"--git-dir", r.gitDirPath}, args...)
	return r.executeGitCommandDirectWithStdIn(ctx, stdInContents, args...)
}

func (r *Repository) executeGitCommandDirectWithStdIn(ctx context.Context, stdInContents []byte, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdOut, stdErr bytes.Buffer
	cmd.Stdout = &stdOut
	cmd.Stderr = &stdErr

	stdInWriter, err := cmd.StdinPipe()
	if err != nil {
		return "", "", fmt.Errorf("unable to create stdin writer: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("error starting command: %w", err)
	}

	if _, err := stdInWriter.Write(stdInContents); err != nil {
		return "", "", fmt.Errorf("unable to write stdin contents: %w", err)
	}
	if err := stdInWriter.Close(); err != nil {
		return "", "", fmt.Errorf("unable to close stdin writer: %w", err)
	}

	err = cmd.Wait()
	stdOutString := stdOut.String()
	stdErrString := strings.TrimSpace(stdErr.String())
	if err != nil {
		if stdErrString == "" {
			stdErrString = "error running `git " + strings.Join(args, " ") + "`"
		}
		if r.log != nil {
			r.log.WithError(err).WithField("args", args).Debug("git command failed")
		}
	}
	return stdOutString, stdErrString, err
}
