package detect

import (
	"regexp"
	"strings"
)

// ansiPattern matches CSI sequences (including private mode ?) and OSC
// sequences (title setting etc).
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\a\x1b]*(\a|\x1b\\)`)

// StripANSI removes ANSI escape sequences so pattern matching works on the
// logical text rather than the styled bytes.
func StripANSI(text string) string {
	return ansiPattern.ReplaceAllString(text, "")
}

// Permission prompt markers. These are the menu headers the agent renders
// when it wants approval to run a tool.
var permissionHeaderPatterns = []string{
	"do you want to proceed",
	"do you want to run",
	"do you want to allow",
	"do you want to make this edit",
	"do you want to create",
	"allow this command",
	"yes, and don't ask again",
}

// permissionToolLine extracts the tool invocation shown above a permission
// menu, e.g. "Bash(go test ./...)" or "Edit(internal/cli/root.go)".
var permissionToolLine = regexp.MustCompile(`(?m)^\s*[⏺●]?\s*(Bash|Edit|Write|Update|Create|Read|NotebookEdit)\((.+?)\)`)

// bashCommandLine matches the freestanding command echo some prompt styles
// use instead of the Tool(arg) form.
var bashCommandLine = regexp.MustCompile(`(?m)^\s*\$\s+(.+)$`)

// filePathLine matches a path-looking reference in a permission prompt body.
var filePathLine = regexp.MustCompile(`(?m)([~./]?[\w./-]+\.(?:go|md|ts|js|py|rs|json|yaml|yml|toml|txt|sh))\b`)

// menuOptionPattern matches one entry of a numbered option menu, with an
// optional cursor marker. Examples:
//
//	❯ 1. Yes
//	  2. Yes, and don't ask again for this session
//	  3. No, and tell Claude what to do differently
var menuOptionPattern = regexp.MustCompile(`^\s*(❯|>)?\s*(\d+)[.)]\s+(.+?)\s*$`)

// menuCursorPattern matches the cursor marker alone; a menu without a cursor
// anywhere is treated as plain numbered output, not an interactive menu.
var menuCursorPattern = regexp.MustCompile(`^\s*(❯|>)\s*\d+[.)]`)

// planApprovalPatterns mark a question as the plan-approval sub-type.
var planApprovalPatterns = []string{
	"ready to code?",
	"would you like to proceed with this plan",
	"approve this plan",
	"here is claude's plan",
}

// planFilePattern extracts a referenced plan file path.
var planFilePattern = regexp.MustCompile(`([\w./-]+(?:plan|PLAN)[\w.-]*\.md)\b`)

// Idle markers: an input prompt waiting for the user. The boxed prompt
// ("│ > ") is the current Claude Code render; the bare "> " trailer covers
// older versions and other agents.
var idlePromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*│\s*>\s*│?\s*$`),
	regexp.MustCompile(`(?m)^\s*│\s*>\s`),
	regexp.MustCompile(`>\s*$`),
	regexp.MustCompile(`\?\s+for\s+shortcuts`),
}

// Working markers: the agent is mid-turn. "esc to interrupt" is the most
// reliable; the spinner glyphs cover frames where the hint line scrolled off.
var workingPatterns = []string{
	"esc to interrupt",
	"ctrl+b to run in background",
	"(esc to interrupt)",
	"✻",
	"✽",
	"✢",
	"thinking",
	"pondering",
	"wrangling",
}

// toolUsePatterns distinguish tool execution from plain token streaming.
var toolUsePatterns = []string{
	"⏺ bash(",
	"⏺ read(",
	"⏺ edit(",
	"⏺ write(",
	"⏺ update(",
	"⏺ search(",
	"⏺ grep(",
	"⏺ glob(",
	"⏺ task(",
	"running…",
	"running...",
}

// Error markers: fatal phrasing near the end of output.
var errorPatterns = []string{
	"api error",
	"fatal:",
	"panic:",
	"error:",
	"failed with exit code",
	"connection refused",
	"request timed out",
	"unable to connect",
}

// Complete markers: end-of-turn phrasing.
var completePatterns = []string{
	"task complete",
	"all tasks complete",
	"✅ done",
	"finished successfully",
	"total cost:",
	"total duration",
}

// matchAny reports whether text contains any of the patterns,
// case-insensitively.
func matchAny(text string, patterns []string) bool {
	textLower := strings.ToLower(text)
	for _, p := range patterns {
		if strings.Contains(textLower, p) {
			return true
		}
	}
	return false
}

// countMatches returns how many distinct patterns occur in text.
func countMatches(text string, patterns []string) int {
	textLower := strings.ToLower(text)
	n := 0
	for _, p := range patterns {
		if strings.Contains(textLower, p) {
			n++
		}
	}
	return n
}

// matchAnyRegex reports whether text matches any of the regex patterns.
func matchAnyRegex(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// lastNLines returns the trailing n lines of text with trailing blank lines
// removed.
func lastNLines(text string, n int) []string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
