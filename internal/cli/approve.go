package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getgenie/genie/internal/approve"
	"github.com/getgenie/genie/internal/monitor"
	"github.com/getgenie/genie/internal/output"
)

var (
	approvePolicyFile string
	approveWatch      bool
	approveRepoPath   string
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Auto-approve agent tool permissions under policy",
}

const auditLogFile = "auto-approve-audit.jsonl"

func auditLogPath() string {
	return filepath.Join(cfg.StateDir, auditLogFile)
}

func loadApprovePolicy() (*approve.Policy, string, string, error) {
	globalPath := cfg.Approve.PolicyFile
	if approvePolicyFile != "" {
		globalPath = approvePolicyFile
	}
	repoPath := ""
	if approveRepoPath != "" {
		repoPath = cfg.RepoPolicyPath(approveRepoPath)
	}
	policy, err := approve.LoadPolicy(globalPath, repoPath, "")
	return policy, globalPath, repoPath, err
}

var approveRunCmd = &cobra.Command{
	Use:   "run <target>...",
	Short: "Watch panes and auto-approve permission prompts",
	Long: `Monitors each target pane and evaluates every permission prompt
against the policy: explicit deny wins, then explicit allow, then the default
action. Approvals confirm the prompt in the pane; escalations queue for
manual review. Every decision is appended to the audit log.

If the policy fails to load, the run is skipped and the agents continue
without auto-approval.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		d := driver()
		resolver := newResolver(reg, d)

		policy, globalPath, repoPolicyPath, err := loadApprovePolicy()
		if err != nil {
			// Invalid policy is non-fatal: run degraded, without approvals.
			formatter().Warn("policy load failed, escalating everything: %v", err)
			policy = nil
		}

		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return err
		}
		audit, err := approve.OpenAuditLog(auditLogPath())
		if err != nil {
			return err
		}
		defer audit.Close()

		engine := approve.NewEngine(approve.Config{
			Policy: policy,
			Audit:  audit,
			SendApproval: func(paneID string) error {
				// Permission menus put "Yes" first.
				return d.SendKeys(paneID, "1", true)
			},
			Debounce: cfg.Debounce(),
		})

		if approveWatch && policy != nil {
			watcher, err := approve.WatchPolicy(engine, globalPath, repoPolicyPath)
			if err != nil {
				formatter().Warn("policy watch unavailable: %v", err)
			} else {
				defer watcher.Close()
			}
		}

		var monitors []*monitor.Monitor
		for _, arg := range args {
			resolved, err := resolver.Resolve(arg)
			if err != nil {
				return err
			}
			m := monitor.New(d, resolved.PaneID, monitor.Config{
				PollInterval: cfg.PollInterval(),
				CaptureLines: cfg.Monitor.CaptureLines,
			})
			monitors = append(monitors, m)
		}

		engine.Start(monitors...)
		for _, m := range monitors {
			// Keep the registry's view of each pane current while approving.
			stop := reg.Track(m)
			defer stop()
			m.Start()
		}

		f := formatter()
		f.Textln("watching %s, ctrl-c to stop", output.CountStr(len(monitors), "pane", "panes"))

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		for _, m := range monitors {
			m.Stop()
		}
		counts := engine.Stop()
		if f.JSON() {
			return f.Emit(counts)
		}
		f.Line()
		f.Textln("approved %d, denied %d, escalated %d",
			counts.Approved, counts.Denied, counts.Escalated)
		return nil
	},
}

var approveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent auto-approve decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := approve.ReadAuditLog(auditLogPath())
		if err != nil {
			return err
		}
		rows := approve.GetStatusEntries(entries, nil)

		f := formatter()
		if f.JSON() {
			return f.Emit(rows)
		}
		if len(rows) == 0 {
			f.Textln("no decisions recorded")
			return nil
		}
		table := output.NewTable(f.Writer(), "TIME", "PANE", "TOOL", "STATUS", "REASON")
		for _, e := range rows {
			table.AddRow(e.Timestamp.Local().Format(time.RFC3339), e.PaneID, e.ToolName, e.Status, e.Reason)
		}
		table.Render()
		return nil
	},
}

var approvePolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the effective merged policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, globalPath, repoPolicyPath, err := loadApprovePolicy()
		if err != nil {
			return err
		}
		f := formatter()
		if f.JSON() {
			return f.Emit(policy)
		}
		f.Textln("global: %s", globalPath)
		if repoPolicyPath != "" {
			f.Textln("repo:   %s", repoPolicyPath)
		}
		f.Line()
		f.Textln("default: %s", policy.Default)
		for _, r := range policy.Deny {
			f.Textln("deny   tool=%s pattern=%s", r.Tool, ruleRepr(r.Pattern))
		}
		for _, r := range policy.Allow {
			f.Textln("allow  tool=%s pattern=%s", r.Tool, ruleRepr(r.Pattern))
		}
		return nil
	},
}

func ruleRepr(pattern string) string {
	if pattern == "" {
		return "(any)"
	}
	return fmt.Sprintf("%q", pattern)
}

func init() {
	approveCmd.PersistentFlags().StringVar(&approvePolicyFile, "policy", "", "override the global policy file")
	approveCmd.PersistentFlags().StringVar(&approveRepoPath, "repo", "", "repository whose policy overrides the global one")
	approveRunCmd.Flags().BoolVar(&approveWatch, "watch", false, "hot-reload the policy when its files change")

	approveCmd.AddCommand(approveRunCmd, approveStatusCmd, approvePolicyCmd)
	rootCmd.AddCommand(approveCmd)
}
