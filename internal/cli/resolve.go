package cli

import (
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <target>",
	Short: "Resolve a target string to a concrete pane",
	Long: `Resolution precedence: raw pane id (%N), worker id, worker:N
sub-pane, session:window, bare session name. Exits non-zero when no rule
matches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		resolved, err := newResolver(reg, driver()).Resolve(args[0])
		if err != nil {
			return err
		}
		f := formatter()
		if f.JSON() {
			return f.Emit(resolved)
		}
		f.Textln("%s (via %s)", resolved.PaneID, resolved.Via)
		if resolved.WorkerID != "" {
			f.Textln("worker: %s", resolved.WorkerID)
		}
		if resolved.PaneIndex > 0 {
			f.Textln("sub-pane index: %d", resolved.PaneIndex)
		}
		if resolved.SessionName != "" {
			f.Textln("session: %s", resolved.SessionName)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
