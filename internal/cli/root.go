// Package cli implements the genie command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/getgenie/genie/internal/batch"
	"github.com/getgenie/genie/internal/config"
	"github.com/getgenie/genie/internal/output"
	"github.com/getgenie/genie/internal/target"
	"github.com/getgenie/genie/internal/task"
	"github.com/getgenie/genie/internal/tmux"
	"github.com/getgenie/genie/internal/worker"
)

var (
	cfgFile    string
	cfg        *config.Config
	sshHost    string
	jsonOutput bool
	noColor    bool

	// Build information, set via ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "genie",
	Short: "Orchestrate autonomous coding agents in tmux panes",
	Long: `genie watches AI coding agents running in tmux panes: it classifies
what each agent is doing from its pane text, auto-approves tool permissions
under policy, tracks worker lifecycles, and admits batched tasks under a
concurrency ceiling.

Quick start:
  genie batch create --id nightly gt-1 gt-2 gt-3
  genie batch process nightly --session genie
  genie watch`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if sshHost != "" {
			cfg.Remote = sshHost
		}
		initLogging()
		return nil
	},
}

func initLogging() {
	level := slog.LevelWarn
	if os.Getenv("GENIE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		f := formatter()
		if f.JSON() {
			_ = f.Emit(map[string]string{"version": Version, "commit": Commit, "date": Date})
			return
		}
		f.Textln("genie %s (commit %s, built %s)", Version, Commit, Date)
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !jsonOutput {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/genie/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&sshHost, "ssh", "", "Remote host for tmux commands (e.g. user@host)")

	rootCmd.AddCommand(versionCmd)
}

func formatter() *output.Formatter {
	mode := output.ModeText
	if jsonOutput {
		mode = output.ModeJSON
	}
	return output.Stdout(mode, noColor)
}

func driver() *tmux.Client {
	return tmux.NewClient(cfg.Remote)
}

// hostLabel names the tmux host for error messages.
func hostLabel() string {
	if cfg.Remote != "" {
		return cfg.Remote
	}
	return "this host"
}

func openRegistry() (*worker.Registry, error) {
	return worker.NewRegistry(cfg.StateDir)
}

func openBatchStore() (*batch.Store, error) {
	return batch.NewStore(cfg.StateDir)
}

func openTasks() (task.Backend, error) {
	return task.NewFileBackend(cfg.StateDir)
}

// newResolver builds a target resolver against the registry and the live
// tmux session tree.
func newResolver(reg *worker.Registry, d tmux.Driver) *target.Resolver {
	return &target.Resolver{
		Workers:  reg,
		Sessions: sessionLookup(d),
		Liveness: func(paneID string) (bool, error) {
			return d.PaneExists(paneID), nil
		},
	}
}

// sessionLookup resolves a session (plus optional window name or index) to
// its active pane. A session or window that does not exist yields ("", nil)
// so the resolver can fall through to its not-found error.
func sessionLookup(d tmux.Driver) target.SessionLookup {
	return func(session, window string) (string, error) {
		if _, err := d.FindSessionByName(session); err != nil {
			return "", nil
		}
		tgt := session
		if window != "" {
			windows, err := d.ListWindows(session)
			if err != nil {
				return "", err
			}
			tgt = ""
			for _, w := range windows {
				if w.Name == window || fmt.Sprintf("%d", w.Index) == window {
					tgt = w.ID
					break
				}
			}
			if tgt == "" {
				return "", nil
			}
		}
		panes, err := d.ListPanes(tgt)
		if err != nil {
			return "", err
		}
		for _, p := range panes {
			if p.Active {
				return p.ID, nil
			}
		}
		if len(panes) > 0 {
			return panes[0].ID, nil
		}
		return "", nil
	}
}
