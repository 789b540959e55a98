package detect

import (
	"strconv"
	"strings"
)

// DefaultWindow is how many trailing lines of a snapshot are examined.
// Prompts and menus always render at the bottom of the pane.
const DefaultWindow = 40

// Classify analyzes raw pane text (ANSI escapes allowed) and returns the
// inferred agent state. It is a pure function and never panics; when no
// marker matches it returns StateUnknown with confidence 0.
func Classify(raw string) Result {
	return ClassifyWindow(raw, DefaultWindow)
}

// ClassifyWindow is Classify with an explicit trailing-line window.
func ClassifyWindow(raw string, window int) Result {
	if window <= 0 {
		window = DefaultWindow
	}
	clean := StripANSI(raw)
	lines := lastNLines(clean, window)
	if len(lines) == 0 {
		return Result{State: StateUnknown, Confidence: 0}
	}
	tail := strings.Join(lines, "\n")

	// Menus outrank everything: a permission or question prompt means the
	// agent is blocked on us regardless of what else is on screen.
	if opts, cursor := scanMenu(lines); len(opts) >= 2 && cursor {
		// Plan approval renders as a yes/no menu but is a question sub-type,
		// so it has to be recognized before the permission shape check.
		if matchAny(tail, planApprovalPatterns) {
			return questionResult(tail, opts)
		}
		if matchAny(tail, permissionHeaderPatterns) || looksLikeYesNoMenu(opts) {
			return permissionResult(tail)
		}
		return questionResult(tail, opts)
	}

	// An input prompt at rest means the agent finished its turn and is idle.
	// Check the very end of the pane only; ">" appears all over scrollback.
	promptTail := strings.Join(lastNLines(clean, 5), "\n")
	if matchAnyRegex(promptTail, idlePromptPatterns) && !matchAny(tail, workingPatterns) {
		conf := 0.6
		if matchAny(tail, completePatterns) {
			// Idle prompt plus end-of-turn phrasing: the turn completed.
			return Result{State: StateComplete, Confidence: 0.8}
		}
		return Result{State: StateIdle, Confidence: conf}
	}

	// Active output: spinner or interrupt hint present.
	if matchAny(tail, workingPatterns) {
		if matchAny(tail, toolUsePatterns) {
			return Result{State: StateToolUse, Confidence: confidence(2, countMatches(tail, toolUsePatterns))}
		}
		return Result{State: StateWorking, Confidence: confidence(1, countMatches(tail, workingPatterns))}
	}

	// No prompt and no activity markers. Fatal phrasing near the end wins
	// over completion phrasing: an error message is more specific.
	recent := strings.Join(lastNLines(clean, 10), "\n")
	if matchAny(recent, errorPatterns) {
		return Result{State: StateError, Confidence: confidence(1, countMatches(recent, errorPatterns))}
	}
	if matchAny(recent, completePatterns) {
		return Result{State: StateComplete, Confidence: confidence(1, countMatches(recent, completePatterns))}
	}

	return Result{State: StateUnknown, Confidence: 0}
}

// scanMenu collects numbered menu options from the trailing lines and reports
// whether a cursor marker was seen. Options must be consecutively numbered
// from 1 to count as a menu.
func scanMenu(lines []string) (options []string, cursor bool) {
	var opts []string
	expected := 1
	for _, line := range lines {
		m := menuOptionPattern.FindStringSubmatch(line)
		if m == nil {
			// A non-option line resets a partial match unless we have not
			// started collecting yet.
			if len(opts) > 0 && strings.TrimSpace(line) != "" {
				opts = nil
				expected = 1
				cursor = false
			}
			continue
		}
		num := m[2]
		if num != strconv.Itoa(expected) {
			// Restart: this may be the first option of a new menu.
			opts = nil
			expected = 1
			cursor = false
			if num != "1" {
				continue
			}
		}
		if menuCursorPattern.MatchString(line) {
			cursor = true
		}
		opts = append(opts, strings.TrimSpace(m[3]))
		expected++
	}
	return opts, cursor
}

// looksLikeYesNoMenu reports whether the options form a yes/no confirmation
// rather than an open question.
func looksLikeYesNoMenu(opts []string) bool {
	if len(opts) < 2 {
		return false
	}
	first := strings.ToLower(opts[0])
	last := strings.ToLower(opts[len(opts)-1])
	return strings.HasPrefix(first, "yes") && strings.HasPrefix(last, "no")
}

func permissionResult(tail string) Result {
	res := Result{
		State:      StatePermission,
		Confidence: confidence(2, countMatches(tail, permissionHeaderPatterns)+1),
		Permission: extractPermissionDetails(tail),
	}
	return res
}

func questionResult(tail string, opts []string) Result {
	res := Result{
		State:      StateQuestion,
		Confidence: confidence(2, 1),
		Question:   &QuestionDetails{Options: opts},
	}
	if matchAny(tail, planApprovalPatterns) {
		res.Detail = DetailPlanApproval
		if m := planFilePattern.FindStringSubmatch(tail); m != nil {
			res.Question.PlanFile = m[1]
		}
		res.Confidence = confidence(3, 2)
	}
	return res
}

// extractPermissionDetails pulls the tool kind plus command or file path from
// a permission prompt body. Best effort: a prompt with no recognizable body
// is still a bash permission, just without a command.
func extractPermissionDetails(tail string) *PermissionDetails {
	if m := permissionToolLine.FindStringSubmatch(tail); m != nil {
		tool := m[1]
		arg := strings.TrimSpace(m[2])
		switch tool {
		case "Bash":
			return &PermissionDetails{Kind: PermissionBash, Command: arg}
		default:
			return &PermissionDetails{Kind: PermissionFile, File: arg}
		}
	}
	if m := bashCommandLine.FindStringSubmatch(tail); m != nil {
		return &PermissionDetails{Kind: PermissionBash, Command: strings.TrimSpace(m[1])}
	}
	lower := strings.ToLower(tail)
	if strings.Contains(lower, "edit") || strings.Contains(lower, "write") || strings.Contains(lower, "create") {
		d := &PermissionDetails{Kind: PermissionFile}
		if m := filePathLine.FindStringSubmatch(tail); m != nil {
			d.File = m[1]
		}
		return d
	}
	return &PermissionDetails{Kind: PermissionBash}
}

// confidence maps marker specificity and agreement count to [0,1].
// Specificity 1 is a generic marker, 2 a menu-shaped prompt, 3 a nested
// sub-type match. Additional agreeing markers raise confidence.
func confidence(specificity, agreeing int) float64 {
	c := 0.5 + 0.1*float64(specificity)
	if agreeing > 1 {
		extra := agreeing - 1
		if extra > 3 {
			extra = 3
		}
		c += 0.05 * float64(extra)
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}
