// SPDX-License-Identifier: Apache-2.0

// Command quipu-remote-helper is a git-remote-ext-compatible helper
// process. It speaks the remote-helper line protocol over stdin/stdout and
// rewrites ref names between this machine's local namespace and the
// canonical per-owner namespace a remote publishes under, shelling out to
// git fetch-pack/send-pack for the actual object transfer.
//
// Sources:
// https://rovaughn.github.io/2015-2-9.html
// https://github.com/keybase/client/blob/master/go/kbfs/kbfsgit/runner.go
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"regexp"
	"strings"

	"github.com/quipu-vcs/quipu/internal/config"
	"github.com/quipu-vcs/quipu/internal/refs"
)

var logFile io.Writer

var userRefPattern = regexp.MustCompile(`^refs/quipu/users/([^/]+)/heads/(.+)$`)
var mirrorRefPattern = regexp.MustCompile(`^refs/quipu/remotes/([^/]+)/([^/]+)/heads/(.+)$`)
var localRefPattern = regexp.MustCompile(`^refs/quipu/local/heads/(.+)$`)

func run() (reterr error) {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: %s <remote-name> <url>", os.Args[0])
	}

	remoteName := os.Args[1]
	url := os.Args[2]
	localOwner := config.LocalOwner(".")

	refSpecs := []string{
		fmt.Sprintf("refs/quipu/local/heads/*:refs/quipu/remotes/%s/*", remoteName),
	}

	stdInReader := bufio.NewReader(os.Stdin)

	log("entering helper loop")
	for {
		command, err := stdInReader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("unable to read command from stdin: %w", err)
		}

		if command != "\n" {
			log("command: " + strings.TrimSpace(command))
		}

		switch {
		case command == "capabilities\n":
			logAndWrite("fetch\n")
			logAndWrite("push\n")
			for _, refSpec := range refSpecs {
				logAndWrite(fmt.Sprintf("refspec %s\n", refSpec))
			}

			fmt.Fprintf(os.Stdout, "\n")

		case command == "list\n", command == "list for-push\n":
			remoteRefs, err := gitListRefs(path.Join(url, ".git"), refs.Namespace)
			if err != nil {
				return fmt.Errorf("error listing remote refs: %w", err)
			}

			for name, hash := range remoteRefs {
				owner, branch, ok := parseUserRef(name)
				if !ok {
					log("skipping remote ref outside the canonical user namespace: " + name)
					continue
				}
				logAndWrite(fmt.Sprintf("? %s %s\n", hash, refs.RemoteHead(remoteName, owner, branch)))
			}

			fmt.Fprintf(os.Stdout, "\n")

		case strings.HasPrefix(command, "fetch "):
			requestedRefs := []string{}

			for {
				fetchRequest := strings.TrimSpace(strings.TrimPrefix(command, "fetch "))

				parts := strings.Split(fetchRequest, " ")
				if len(parts) < 2 {
					return fmt.Errorf("malformed fetch request: %s", fetchRequest)
				}

				log("fetch request: " + fetchRequest)
				requestedRefs = append(requestedRefs, parts[1])

				command, err = stdInReader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("unable to read command from stdin: %w", err)
				}

				log("fetch command: " + strings.TrimSpace(command))

				if command == "\n" {
					break
				}

				if !strings.HasPrefix(command, "fetch ") {
					return fmt.Errorf("received non fetch command in fetch batch: '%s'", command)
				}
			}

			canonicalRefs := make([]string, 0, len(requestedRefs))
			for _, localName := range requestedRefs {
				remote, owner, branch, ok := parseMirrorRef(localName)
				if !ok || remote != remoteName {
					return fmt.Errorf("fetch requested unexpected ref: %s", localName)
				}
				canonicalRefs = append(canonicalRefs, refs.UserHead(owner, branch))
			}

			log("invoking fetch-pack")
			args := append([]string{"fetch-pack", url}, canonicalRefs...)
			log(strings.Join(args, " "))
			cmd := exec.Command("git", args...)
			cmd.Stderr = os.Stderr
			cmd.Stdout = os.Stdout

			if err := cmd.Run(); err != nil {
				return fmt.Errorf("unable to execute fetch-pack: %w", err)
			}

			targetRefs, err := gitListRefs(path.Join(url, ".git"), refs.Namespace)
			if err != nil {
				return fmt.Errorf("unable to list remote refs: %w", err)
			}

			for i, canonicalName := range canonicalRefs {
				targetObj, listed := targetRefs[canonicalName]
				if !listed {
					continue
				}

				localName := requestedRefs[i]
				args := []string{"update-ref", localName, targetObj}
				cmd := exec.Command("git", args...)
				cmd.Stderr = os.Stderr
				cmd.Stdout = os.Stdout

				if err := cmd.Run(); err != nil {
					return fmt.Errorf("unable to update local ref '%s': %w", localName, err)
				}
			}

			fmt.Fprintf(os.Stdout, "\n")

		case strings.HasPrefix(command, "push "):
			requestedPushRefSpecs := []string{}

			for {
				pushRequest := strings.TrimSpace(strings.TrimPrefix(command, "push "))
				requestedPushRefSpecs = append(requestedPushRefSpecs, pushRequest)

				command, err = stdInReader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("unable to read command from stdin: %w", err)
				}

				log("push command: " + strings.TrimSpace(command))

				if command == "\n" {
					break
				}

				if !strings.HasPrefix(command, "push ") {
					return fmt.Errorf("received non push command in push batch: '%s'", command)
				}
			}

			rewritten := make([]string, 0, len(requestedPushRefSpecs))
			for _, spec := range requestedPushRefSpecs {
				force := strings.HasPrefix(spec, "+")
				spec = strings.TrimPrefix(spec, "+")

				src, _, ok := strings.Cut(spec, ":")
				if !ok {
					return fmt.Errorf("malformed push refspec: %s", spec)
				}

				branch, ok := parseLocalRef(src)
				if !ok {
					return fmt.Errorf("push source outside the local head namespace: %s", src)
				}

				dst := refs.UserHead(localOwner, branch)
				rewrittenSpec := src + ":" + dst
				if force {
					rewrittenSpec = "+" + rewrittenSpec
				}
				rewritten = append(rewritten, rewrittenSpec)
			}

			args := append([]string{"send-pack", "--atomic", url}, rewritten...)
			log(strings.Join(args, " "))
			cmd := exec.Command("git", args...)
			cmd.Stderr = os.Stderr
			cmd.Stdout = os.Stdout

			if err := cmd.Run(); err != nil {
				return fmt.Errorf("unable to execute send-pack: %w", err)
			}

			fmt.Fprintf(os.Stdout, "\n")

		case command == "\n":
			return nil

		default:
			return fmt.Errorf("received unknown command '%s'", strings.TrimSpace(command))
		}
	}
}

// parseUserRef splits a canonical remote-side ref name into its owner and
// branch, per §4.3.
func parseUserRef(name string) (owner, branch string, ok bool) {
	match := userRefPattern.FindStringSubmatch(name)
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}

// parseMirrorRef splits a local mirror ref name into its remote, owner, and
// branch.
func parseMirrorRef(name string) (remote, owner, branch string, ok bool) {
	match := mirrorRefPattern.FindStringSubmatch(name)
	if match == nil {
		return "", "", "", false
	}
	return match[1], match[2], match[3], true
}

// parseLocalRef extracts the branch from a refs/quipu/local/heads/<branch>
// ref name.
func parseLocalRef(name string) (branch string, ok bool) {
	match := localRefPattern.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}
	return match[1], true
}

func gitListRefs(gitDir, prefix string) (map[string]string, error) {
	output, err := exec.Command("git", "--git-dir", gitDir, "for-each-ref", "--format=%(objectname) %(refname)", prefix).Output()
	if err != nil {
		return nil, fmt.Errorf("unable to list refs: %w", err)
	}

	lines := bytes.Split(output, []byte{'\n'})
	out := make(map[string]string, len(lines))

	for _, line := range lines {
		fields := bytes.Split(line, []byte{' '})
		if len(fields) < 2 {
			break
		}

		out[string(fields[1])] = string(fields[0])
	}

	return out, nil
}

func logAndWrite(message string) {
	log(strings.TrimSpace(message))
	fmt.Fprint(os.Stdout, message)
}

func log(message string) {
	if logFile != nil {
		fmt.Fprint(logFile, message+"\n")
	}
}

func main() {
	logFilePath := os.Getenv("QUIPU_REMOTE_HELPER_LOG_FILE")
	if logFilePath != "" {
		file, err := os.Create(logFilePath)
		if err != nil {
			panic(err)
		}

		logFile = file
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
