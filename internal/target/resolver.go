// Package target maps a human-typed identifier to a concrete pane address.
// Rules are tried in strict precedence: raw pane id, worker id (optionally
// with a sub-pane index), session:window, bare session name. The first match
// wins.
package target

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/getgenie/genie/internal/worker"
)

// ErrTargetNotFound means no resolution rule matched the input.
var ErrTargetNotFound = errors.New("target not found")

// Via names the rule that resolved a target.
type Via string

const (
	ViaRaw           Via = "raw"
	ViaWorker        Via = "worker"
	ViaSessionWindow Via = "session:window"
	ViaSession       Via = "session"
)

// Resolved is a fully resolved pane address.
type Resolved struct {
	PaneID      string `json:"pane_id"`
	WorkerID    string `json:"worker_id,omitempty"`
	PaneIndex   int    `json:"pane_index,omitempty"`
	SessionName string `json:"session_name,omitempty"`
	Via         Via    `json:"resolved_via"`
}

// WorkerFinder is the slice of the worker registry the resolver needs.
type WorkerFinder interface {
	Get(id string) (*worker.Worker, error)
}

// SessionLookup resolves a session (and optional window) to its active pane.
// window is empty for a bare session lookup. A lookup that finds nothing
// returns ("", nil).
type SessionLookup func(session, window string) (paneID string, err error)

// Resolver resolves target strings against the worker registry and the
// multiplexer session tree.
type Resolver struct {
	Workers  WorkerFinder
	Sessions SessionLookup
	// Liveness, when set, verifies a raw pane id still exists.
	Liveness func(paneID string) (bool, error)
}

var rawPanePattern = regexp.MustCompile(`^%\d+$`)

// Resolve maps input to a pane address, or ErrTargetNotFound.
func (r *Resolver) Resolve(input string) (*Resolved, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("resolve %q: %w", input, ErrTargetNotFound)
	}

	if rawPanePattern.MatchString(input) {
		if r.Liveness != nil {
			alive, err := r.Liveness(input)
			if err != nil {
				return nil, fmt.Errorf("check pane %s: %w", input, err)
			}
			if !alive {
				return nil, fmt.Errorf("pane %s: %w", input, ErrTargetNotFound)
			}
		}
		return &Resolved{PaneID: input, Via: ViaRaw}, nil
	}

	if res, err := r.resolveWorker(input); err != nil {
		return nil, err
	} else if res != nil {
		return res, nil
	}

	if session, window, ok := strings.Cut(input, ":"); ok && session != "" && window != "" {
		paneID, err := r.lookupSession(session, window)
		if err != nil {
			return nil, err
		}
		if paneID != "" {
			return &Resolved{PaneID: paneID, SessionName: session, Via: ViaSessionWindow}, nil
		}
	}

	if !strings.Contains(input, ":") {
		paneID, err := r.lookupSession(input, "")
		if err != nil {
			return nil, err
		}
		if paneID != "" {
			return &Resolved{PaneID: paneID, SessionName: input, Via: ViaSession}, nil
		}
	}

	return nil, fmt.Errorf("resolve %q: %w", input, ErrTargetNotFound)
}

// resolveWorker handles the worker-id rules: an exact id resolves to the
// worker's primary pane; "<id>:<N>" resolves to the N-th sub-pane. Returns
// (nil, nil) when the input names no known worker.
func (r *Resolver) resolveWorker(input string) (*Resolved, error) {
	if r.Workers == nil {
		return nil, nil
	}

	w, err := r.Workers.Get(input)
	if err != nil {
		return nil, fmt.Errorf("look up worker %q: %w", input, err)
	}
	if w != nil {
		return &Resolved{PaneID: w.PaneID, WorkerID: w.ID, SessionName: w.SessionName, Via: ViaWorker}, nil
	}

	base, suffix, ok := strings.Cut(input, ":")
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return nil, nil
	}
	w, err = r.Workers.Get(base)
	if err != nil {
		return nil, fmt.Errorf("look up worker %q: %w", base, err)
	}
	if w == nil {
		return nil, nil
	}
	paneID, err := w.SubPane(n)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", input, ErrTargetNotFound)
	}
	return &Resolved{
		PaneID:      paneID,
		WorkerID:    w.ID,
		PaneIndex:   n,
		SessionName: w.SessionName,
		Via:         ViaWorker,
	}, nil
}

func (r *Resolver) lookupSession(session, window string) (string, error) {
	if r.Sessions == nil {
		return "", nil
	}
	paneID, err := r.Sessions(session, window)
	if err != nil {
		return "", fmt.Errorf("look up session %q: %w", session, err)
	}
	return paneID, nil
}
