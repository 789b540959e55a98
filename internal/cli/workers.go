package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/getgenie/genie/internal/output"
	"github.com/getgenie/genie/internal/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Inspect and manage registered workers",
}

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		workers, err := reg.List()
		if err != nil {
			return err
		}

		f := formatter()
		if f.JSON() {
			return f.Emit(workers)
		}
		if len(workers) == 0 {
			f.Textln("no workers registered")
			return nil
		}
		table := output.NewTable(f.Writer(), "ID", "PANE", "STATE", "TASK", "ELAPSED")
		now := time.Now()
		for _, w := range workers {
			table.AddRow(w.ID, w.PaneID, string(w.State), w.TaskID, worker.FormatElapsed(w.StartedAt, now))
		}
		table.Render()
		f.Line()
		f.Textln("%s", output.CountStr(len(workers), "worker", "workers"))
		return nil
	},
}

var workersKillCmd = &cobra.Command{
	Use:   "kill <worker-id>",
	Short: "Kill a worker's pane and unregister it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		w, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("kill: %w: %s", worker.ErrWorkerNotFound, args[0])
		}

		d := driver()
		for _, pane := range append([]string{w.PaneID}, w.SubPaneIDs...) {
			if d.PaneExists(pane) {
				if err := d.KillPane(pane); err != nil {
					return fmt.Errorf("kill pane %s: %w", pane, err)
				}
			}
		}
		if err := reg.Unregister(w.ID); err != nil {
			return err
		}
		formatter().Success("killed %s (pane %s)", w.ID, w.PaneID)
		return nil
	},
}

var workersCloseCmd = &cobra.Command{
	Use:   "close <worker-id>",
	Short: "Unregister a worker but leave its pane running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		w, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("close: %w: %s", worker.ErrWorkerNotFound, args[0])
		}
		if err := reg.Unregister(w.ID); err != nil {
			return err
		}
		formatter().Success("closed %s, pane %s left running", w.ID, w.PaneID)
		return nil
	},
}

var workersInterruptCmd = &cobra.Command{
	Use:   "interrupt <worker-id>",
	Short: "Send Ctrl+C to a worker's pane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		w, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("interrupt: %w: %s", worker.ErrWorkerNotFound, args[0])
		}
		d := driver()
		if err := d.SendInterrupt(w.PaneID); err != nil {
			return fmt.Errorf("interrupt pane %s: %w", w.PaneID, err)
		}
		formatter().Success("interrupted %s (pane %s)", w.ID, w.PaneID)
		return nil
	},
}

var workersRetryCmd = &cobra.Command{
	Use:   "retry <worker-id>",
	Short: "Move an errored worker back to working",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		w, err := reg.Retry(args[0])
		if err != nil {
			return err
		}
		formatter().Success("worker %s now %s", w.ID, w.State)
		return nil
	},
}

func init() {
	workersCmd.AddCommand(workersListCmd, workersKillCmd, workersCloseCmd, workersInterruptCmd, workersRetryCmd)
	rootCmd.AddCommand(workersCmd)
}
