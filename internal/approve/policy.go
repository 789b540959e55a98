// Package approve decides, under policy, whether an agent's tool-permission
// prompts are confirmed automatically, denied, or escalated to a human. Every
// decision lands in an append-only audit log.
package approve

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Action is a policy decision.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionDeny     Action = "deny"
	ActionEscalate Action = "escalate"
)

// Rule matches a tool-permission request. Tool matches the tool name ("*"
// matches any); Pattern is a wildcard expression matched against the request
// input (command text or file path), where "*" matches any run of characters.
// An empty Pattern matches any input.
type Rule struct {
	Tool    string `toml:"tool" yaml:"tool" json:"tool"`
	Pattern string `toml:"pattern" yaml:"pattern" json:"pattern"`
}

// Matches reports whether the rule covers the given tool and input.
func (r Rule) Matches(tool, input string) bool {
	if r.Tool != "*" && !strings.EqualFold(r.Tool, tool) {
		return false
	}
	if r.Pattern == "" {
		return true
	}
	return wildcardMatch(r.Pattern, input)
}

// Policy is the effective rule set after hierarchical merging. Evaluation
// order: explicit deny wins, then explicit allow, then the default action.
type Policy struct {
	Default Action `json:"default"`
	Allow   []Rule `json:"allow,omitempty"`
	Deny    []Rule `json:"deny,omitempty"`
}

// Evaluate returns the action for a tool request plus a human-readable
// reason.
func (p *Policy) Evaluate(tool, input string) (Action, string) {
	for _, r := range p.Deny {
		if r.Matches(tool, input) {
			return ActionDeny, fmt.Sprintf("deny rule tool=%s pattern=%q", r.Tool, r.Pattern)
		}
	}
	for _, r := range p.Allow {
		if r.Matches(tool, input) {
			return ActionApprove, fmt.Sprintf("allow rule tool=%s pattern=%q", r.Tool, r.Pattern)
		}
	}
	def := p.Default
	if def == "" {
		def = ActionEscalate
	}
	return def, "default action"
}

// policyFile is one layer of policy as it appears on disk. Pointer/nil
// distinguishes "key absent" from "key set to empty": a later layer replaces
// exactly the keys it sets, and a set Allow/Deny list replaces the whole
// earlier list (no array deep-merge).
type policyFile struct {
	Default *Action `toml:"default" yaml:"default"`
	Allow   *[]Rule `toml:"allow" yaml:"allow"`
	Deny    *[]Rule `toml:"deny" yaml:"deny"`
}

// merge applies layer on top of p.
func (p *Policy) merge(layer *policyFile) {
	if layer == nil {
		return
	}
	if layer.Default != nil {
		p.Default = *layer.Default
	}
	if layer.Allow != nil {
		p.Allow = *layer.Allow
	}
	if layer.Deny != nil {
		p.Deny = *layer.Deny
	}
}

// LoadPolicy builds the effective policy from global config, overridden by
// per-repository config, overridden by inline overrides in the task's own
// descriptive document. Missing files are skipped; a file that exists but
// fails to parse is a hard error (the caller skips engine setup and the
// system runs without auto-approval).
func LoadPolicy(globalPath, repoPath, taskDoc string) (*Policy, error) {
	p := &Policy{Default: ActionEscalate}

	for _, path := range []string{globalPath, repoPath} {
		if path == "" {
			continue
		}
		layer, err := loadPolicyFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		p.merge(layer)
	}

	if taskDoc != "" {
		layer, err := parseTaskOverrides(taskDoc)
		if err != nil {
			return nil, err
		}
		p.merge(layer)
	}

	return p, nil
}

func loadPolicyFile(path string) (*policyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var layer policyFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("parse policy %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, &layer); err != nil {
			return nil, fmt.Errorf("parse policy %s: %w", path, err)
		}
	}
	return &layer, nil
}

// taskOverrideFence finds a ```genie-approve fenced block inside a task's
// descriptive document. The block body is YAML with the same keys as a
// policy file.
var taskOverrideFence = regexp.MustCompile("(?s)```genie-approve\\s*\n(.*?)```")

// parseTaskOverrides extracts the inline policy layer from a task document.
// A document with no fence contributes nothing.
func parseTaskOverrides(doc string) (*policyFile, error) {
	m := taskOverrideFence.FindStringSubmatch(doc)
	if m == nil {
		return nil, nil
	}
	var layer policyFile
	if err := yaml.Unmarshal([]byte(m[1]), &layer); err != nil {
		return nil, fmt.Errorf("parse task policy overrides: %w", err)
	}
	return &layer, nil
}

// wildcardMatch matches pattern against s, with "*" matching any run of
// characters (including none).
func wildcardMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}
