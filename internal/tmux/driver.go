package tmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Session is one tmux session.
type Session struct {
	Name     string
	Windows  int
	Attached bool
	Created  string
}

// Window is one window inside a session.
type Window struct {
	ID     string // "@3"
	Index  int
	Name   string
	Active bool
}

// Pane is one pane inside a window.
type Pane struct {
	ID      string // "%17"
	Index   int
	Title   string
	Command string
	Width   int
	Height  int
	Active  bool
}

// ErrNoSession is returned when a named session does not exist.
var ErrNoSession = errors.New("session not found")

// Driver is the multiplexer capability genie's core components consume.
// *Client implements it against a real tmux server; tests substitute fakes.
type Driver interface {
	ListSessions() ([]Session, error)
	FindSessionByName(name string) (*Session, error)
	ListWindows(session string) ([]Window, error)
	ListPanes(target string) ([]Pane, error)
	CapturePaneContent(paneID string, lines int) (string, error)
	SendKeys(paneID, text string, enter bool) error
	SplitPane(paneID string, vertical bool) (string, error)
	KillPane(paneID string) error
	KillWindow(windowID string) error
	PaneExists(paneID string) bool
}

var _ Driver = (*Client)(nil)

const fieldSep = "|#|"

// ListSessions returns all sessions on the server. A server that is not
// running is reported as zero sessions, not an error.
func (c *Client) ListSessions() ([]Session, error) {
	output, err := c.Run("list-sessions", "-F",
		"#{session_name}:#{session_windows}:#{session_attached}:#{session_created_string}")
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "no server running") ||
			strings.Contains(errMsg, "no sessions") ||
			strings.Contains(errMsg, "No such file or directory") ||
			strings.Contains(errMsg, "error connecting to") {
			return nil, nil
		}
		return nil, err
	}
	if output == "" {
		return nil, nil
	}

	var sessions []Session
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, ":", 4)
		if len(parts) < 4 {
			continue
		}
		windows, _ := strconv.Atoi(parts[1])
		sessions = append(sessions, Session{
			Name:     parts[0],
			Windows:  windows,
			Attached: parts[2] == "1",
			Created:  parts[3],
		})
	}
	return sessions, nil
}

// FindSessionByName returns the named session or ErrNoSession.
func (c *Client) FindSessionByName(name string) (*Session, error) {
	sessions, err := c.ListSessions()
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Name == name {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSession, name)
}

// ListWindows returns all windows in a session.
func (c *Client) ListWindows(session string) ([]Window, error) {
	format := strings.Join([]string{
		"#{window_id}", "#{window_index}", "#{window_name}", "#{window_active}",
	}, fieldSep)
	output, err := c.Run("list-windows", "-t", session, "-F", format)
	if err != nil {
		return nil, err
	}

	var windows []Window
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, fieldSep)
		if len(parts) < 4 {
			continue
		}
		index, _ := strconv.Atoi(parts[1])
		windows = append(windows, Window{
			ID:     parts[0],
			Index:  index,
			Name:   parts[2],
			Active: parts[3] == "1",
		})
	}
	return windows, nil
}

// ListPanes returns all panes under a target (session, session:window, or
// window id).
func (c *Client) ListPanes(target string) ([]Pane, error) {
	format := strings.Join([]string{
		"#{pane_id}", "#{pane_index}", "#{pane_title}", "#{pane_current_command}",
		"#{pane_width}", "#{pane_height}", "#{pane_active}",
	}, fieldSep)
	output, err := c.Run("list-panes", "-s", "-t", target, "-F", format)
	if err != nil {
		return nil, err
	}

	var panes []Pane
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, fieldSep)
		if len(parts) < 7 {
			continue
		}
		index, _ := strconv.Atoi(parts[1])
		width, _ := strconv.Atoi(parts[4])
		height, _ := strconv.Atoi(parts[5])
		panes = append(panes, Pane{
			ID:      parts[0],
			Index:   index,
			Title:   parts[2],
			Command: parts[3],
			Width:   width,
			Height:  height,
			Active:  parts[6] == "1",
		})
	}
	return panes, nil
}

// CapturePaneContent captures the last n lines of rendered pane text,
// including escape sequences so the detector can see styled prompts.
func (c *Client) CapturePaneContent(paneID string, lines int) (string, error) {
	return c.Run("capture-pane", "-e", "-p", "-t", paneID, "-S", fmt.Sprintf("-%d", lines))
}

// SendKeys sends literal text to a pane, optionally followed by Enter.
func (c *Client) SendKeys(paneID, text string, enter bool) error {
	if text != "" {
		if err := c.RunSilent("send-keys", "-t", paneID, "-l", "--", text); err != nil {
			return err
		}
	}
	if enter {
		return c.RunSilent("send-keys", "-t", paneID, "C-m")
	}
	return nil
}

// SplitPane splits the given pane and returns the new pane's id.
func (c *Client) SplitPane(paneID string, vertical bool) (string, error) {
	dir := "-h"
	if vertical {
		dir = "-v"
	}
	return c.Run("split-window", dir, "-t", paneID, "-P", "-F", "#{pane_id}")
}

// KillPane kills a single pane.
func (c *Client) KillPane(paneID string) error {
	return c.RunSilent("kill-pane", "-t", paneID)
}

// KillWindow kills a window and every pane in it.
func (c *Client) KillWindow(windowID string) error {
	return c.RunSilent("kill-window", "-t", windowID)
}

// PaneExists reports whether the pane is still alive on the server.
func (c *Client) PaneExists(paneID string) bool {
	out, err := c.Run("display-message", "-p", "-t", paneID, "#{pane_id}")
	return err == nil && out == paneID
}

// SendInterrupt sends Ctrl+C to a pane.
func (c *Client) SendInterrupt(paneID string) error {
	return c.RunSilent("send-keys", "-t", paneID, "C-c")
}

// SessionExists checks if a session exists without listing all of them.
func (c *Client) SessionExists(name string) bool {
	return c.RunSilent("has-session", "-t", name) == nil
}
