// Package tmux drives a tmux server, local or remote, for genie.
//
// Genie never parses agent processes directly; everything it knows about a
// worker comes from this driver: listing sessions/windows/panes, capturing
// rendered pane text, and sending keystrokes.
package tmux

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Client executes tmux commands, optionally on a remote host over ssh.
type Client struct {
	Remote string // "user@host" or empty for local
}

// NewClient creates a client for the given remote ("" for local).
func NewClient(remote string) *Client {
	return &Client{Remote: remote}
}

// DefaultClient is the default local client.
var DefaultClient = NewClient("")

// Run executes a tmux command and returns trimmed stdout.
func (c *Client) Run(args ...string) (string, error) {
	if c.Remote == "" {
		return runLocal(args...)
	}
	// ssh passes args concatenated; fine for the simple commands we issue.
	sshArgs := append([]string{c.Remote, "tmux"}, args...)
	return runSSH(sshArgs...)
}

// RunSilent executes a tmux command ignoring output.
func (c *Client) RunSilent(args ...string) error {
	_, err := c.Run(args...)
	return err
}

// IsInstalled checks if tmux is available on the target host.
func (c *Client) IsInstalled() bool {
	if c.Remote == "" {
		_, err := exec.LookPath("tmux")
		return err == nil
	}
	return c.RunSilent("-V") == nil
}

func runLocal(args ...string) (string, error) {
	cmd := exec.Command("tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func runSSH(args ...string) (string, error) {
	cmd := exec.Command("ssh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ssh %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}
