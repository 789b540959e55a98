package detect

import (
	"strings"
	"testing"
)

func TestClassify_Empty(t *testing.T) {
	res := Classify("")
	if res.State != StateUnknown {
		t.Errorf("expected unknown for empty input, got %v", res.State)
	}
	if res.Confidence != 0 {
		t.Errorf("expected confidence 0, got %f", res.Confidence)
	}
}

func TestClassify_Idle(t *testing.T) {
	inputs := []string{
		"⏺ I updated the handler.\n\n│ > │\n",
		"some earlier output\n> ",
		"47% context left · ? for shortcuts",
	}
	for _, input := range inputs {
		t.Run(strings.TrimSpace(input), func(t *testing.T) {
			res := Classify(input)
			if res.State != StateIdle {
				t.Errorf("Classify(%q) = %v, want idle", input, res.State)
			}
			if res.Confidence <= 0 {
				t.Errorf("expected positive confidence, got %f", res.Confidence)
			}
		})
	}
}

func TestClassify_PermissionBash(t *testing.T) {
	input := `⏺ Bash(go test ./...)

Do you want to proceed?
❯ 1. Yes
  2. Yes, and don't ask again for go test commands in this session
  3. No, and tell Claude what to do differently
`
	res := Classify(input)
	if res.State != StatePermission {
		t.Fatalf("state = %v, want permission", res.State)
	}
	if res.Permission == nil {
		t.Fatal("expected permission details")
	}
	if res.Permission.Kind != PermissionBash {
		t.Errorf("kind = %v, want bash", res.Permission.Kind)
	}
	if res.Permission.Command != "go test ./..." {
		t.Errorf("command = %q, want %q", res.Permission.Command, "go test ./...")
	}
}

func TestClassify_PermissionFile(t *testing.T) {
	input := `⏺ Edit(internal/server/router.go)

Do you want to make this edit to router.go?
❯ 1. Yes
  2. No, and tell Claude what to do differently
`
	res := Classify(input)
	if res.State != StatePermission {
		t.Fatalf("state = %v, want permission", res.State)
	}
	if res.Permission == nil || res.Permission.Kind != PermissionFile {
		t.Fatalf("expected file permission, got %+v", res.Permission)
	}
	if res.Permission.File != "internal/server/router.go" {
		t.Errorf("file = %q", res.Permission.File)
	}
}

func TestClassify_Question(t *testing.T) {
	input := `Which approach should I take?
❯ 1. Refactor the existing parser
  2. Write a new parser from scratch
  3. Keep the parser and add a post-processing pass
`
	res := Classify(input)
	if res.State != StateQuestion {
		t.Fatalf("state = %v, want question", res.State)
	}
	if res.Question == nil {
		t.Fatal("expected question details")
	}
	want := []string{
		"Refactor the existing parser",
		"Write a new parser from scratch",
		"Keep the parser and add a post-processing pass",
	}
	if len(res.Question.Options) != len(want) {
		t.Fatalf("got %d options, want %d: %v", len(res.Question.Options), len(want), res.Question.Options)
	}
	for i, opt := range want {
		if res.Question.Options[i] != opt {
			t.Errorf("option %d = %q, want %q", i, res.Question.Options[i], opt)
		}
	}
	if res.Detail == DetailPlanApproval {
		t.Error("plain question should not be tagged plan_approval")
	}
}

func TestClassify_PlanApproval(t *testing.T) {
	input := `Here is Claude's plan, saved to docs/refactor-plan.md

Would you like to proceed with this plan?
❯ 1. Yes, start coding
  2. Keep planning
`
	res := Classify(input)
	if res.State != StateQuestion {
		t.Fatalf("state = %v, want question", res.State)
	}
	if res.Detail != DetailPlanApproval {
		t.Errorf("detail = %q, want %q", res.Detail, DetailPlanApproval)
	}
	if res.Question == nil || res.Question.PlanFile != "docs/refactor-plan.md" {
		t.Errorf("plan file = %+v, want docs/refactor-plan.md", res.Question)
	}
}

func TestClassify_Working(t *testing.T) {
	input := "✻ Thinking…\n\n  (esc to interrupt)\n"
	res := Classify(input)
	if res.State != StateWorking {
		t.Errorf("state = %v, want working", res.State)
	}
}

func TestClassify_ToolUse(t *testing.T) {
	input := "⏺ Bash(make build)\n  Running…\n\n  esc to interrupt\n"
	res := Classify(input)
	if res.State != StateToolUse {
		t.Errorf("state = %v, want tool_use", res.State)
	}
}

func TestClassify_Error(t *testing.T) {
	input := "building target\nAPI Error: connection refused\n"
	res := Classify(input)
	if res.State != StateError {
		t.Errorf("state = %v, want error", res.State)
	}
}

func TestClassify_Complete(t *testing.T) {
	input := "All tasks complete.\nTotal cost: $0.42\n"
	res := Classify(input)
	if res.State != StateComplete {
		t.Errorf("state = %v, want complete", res.State)
	}
}

func TestClassify_IdleOutranksStaleError(t *testing.T) {
	// An old error line in scrollback must not shadow a prompt at rest.
	input := "error: exit status 1\nfixed it, tests pass now\n\n│ > │\n"
	res := Classify(input)
	if res.State != StateIdle {
		t.Errorf("state = %v, want idle", res.State)
	}
}

func TestClassify_PermissionOutranksIdlePrompt(t *testing.T) {
	// The permission menu renders above the input box; the menu wins.
	input := `⏺ Bash(rm -rf build)

Do you want to proceed?
❯ 1. Yes
  2. No, and tell Claude what to do differently
`
	res := Classify(input)
	if res.State != StatePermission {
		t.Errorf("state = %v, want permission", res.State)
	}
}

func TestClassify_StripsANSI(t *testing.T) {
	input := "\x1b[38;5;153m⏺ Bash(ls)\x1b[0m\n\x1b[1mDo you want to proceed?\x1b[0m\n\x1b[7m❯ 1. Yes\x1b[0m\n  2. No, and tell Claude what to do differently\n"
	res := Classify(input)
	if res.State != StatePermission {
		t.Errorf("state = %v, want permission", res.State)
	}
}

func TestClassify_NumberedListWithoutCursorIsNotMenu(t *testing.T) {
	input := "Here are the steps:\n1. Install dependencies\n2. Run the migration\n3. Restart the server\n"
	res := Classify(input)
	if res.State == StateQuestion || res.State == StatePermission {
		t.Errorf("plain numbered list classified as %v", res.State)
	}
}

func TestClassify_NeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"\x1b[",
		strings.Repeat("x", 100000),
		"❯ 1.",
		"1000000. option",
	}
	for _, input := range inputs {
		res := Classify(input)
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Errorf("confidence out of range for %q: %f", input, res.Confidence)
		}
	}
}
