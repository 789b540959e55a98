package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/getgenie/genie/internal/batch"
	"github.com/getgenie/genie/internal/output"
	"github.com/getgenie/genie/internal/worker"
)

var (
	batchID            string
	batchMaxConcurrent int
	batchAutoApprove   bool
	batchSession       string
	batchAgentCmd      string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Create and drive batches of tasks",
}

var batchCreateCmd = &cobra.Command{
	Use:   "create <task-id>...",
	Short: "Create a batch from task ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBatchStore()
		if err != nil {
			return err
		}
		backend, err := openTasks()
		if err != nil {
			return err
		}

		items := make([]batch.Item, 0, len(args))
		for _, taskID := range args {
			item := batch.Item{ID: taskID, TaskID: taskID}
			if t, err := backend.Get(taskID); err == nil && t != nil {
				item.Title = t.Title
				item.Prompt = t.Description
			}
			items = append(items, item)
		}

		id := batchID
		if id == "" {
			id = fmt.Sprintf("batch-%s", time.Now().UTC().Format("20060102-150405"))
		}
		maxConcurrent := batchMaxConcurrent
		if !cmd.Flags().Changed("max-concurrent") {
			maxConcurrent = cfg.Batch.MaxConcurrent
		}

		b, err := store.Create(id, items, batch.Options{
			MaxConcurrent: maxConcurrent,
			AutoApprove:   batchAutoApprove,
		})
		if err != nil {
			return err
		}

		f := formatter()
		if f.JSON() {
			return f.Emit(b)
		}
		f.Success("created batch %s with %s", b.ID, output.CountStr(len(items), "item", "items"))
		return nil
	},
}

var batchProcessCmd = &cobra.Command{
	Use:   "process <batch-id>",
	Short: "Spawn eligible queued items under the concurrency ceiling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBatchStore()
		if err != nil {
			return err
		}
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		d := driver()
		if !d.IsInstalled() {
			return fmt.Errorf("tmux not found on %s", hostLabel())
		}
		if !d.SessionExists(batchSession) {
			return fmt.Errorf("session %q does not exist, create it first", batchSession)
		}

		basePane, err := sessionLookup(d)(batchSession, "")
		if err != nil {
			return err
		}
		if basePane == "" {
			return fmt.Errorf("session %q has no usable pane", batchSession)
		}

		spawn := func(item batch.Item) (string, error) {
			paneID, err := d.SplitPane(basePane, false)
			if err != nil {
				return "", fmt.Errorf("split pane for %s: %w", item.ID, err)
			}
			command := batchAgentCmd
			if item.Prompt != "" {
				command = fmt.Sprintf("%s %q", batchAgentCmd, item.Prompt)
			}
			if err := d.SendKeys(paneID, command, true); err != nil {
				return "", fmt.Errorf("start agent in %s: %w", paneID, err)
			}

			workerID, err := reg.GenerateWorkerID(item.TaskID, "")
			if err != nil {
				return "", err
			}
			err = reg.Register(&worker.Worker{
				ID:          workerID,
				PaneID:      paneID,
				SessionName: batchSession,
				TaskID:      item.TaskID,
			})
			if err != nil {
				return "", err
			}
			return paneID, nil
		}

		res, err := batch.ProcessQueue(store, args[0], spawn)
		if err != nil {
			return err
		}
		f := formatter()
		if f.JSON() {
			return f.Emit(res)
		}
		f.Success("spawned %d, failed %d", res.Spawned, res.Failed)
		return nil
	},
}

var batchCancelCmd = &cobra.Command{
	Use:   "cancel <batch-id>",
	Short: "Cancel a batch and its non-terminal workers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBatchStore()
		if err != nil {
			return err
		}
		b, err := batch.CancelBatch(store, args[0])
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("batch %s not found", args[0])
		}
		f := formatter()
		if f.JSON() {
			return f.Emit(b)
		}
		f.Success("cancelled batch %s", b.ID)
		return nil
	},
}

var batchStatusCmd = &cobra.Command{
	Use:   "status [batch-id]",
	Short: "Show batch progress",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBatchStore()
		if err != nil {
			return err
		}
		f := formatter()

		if len(args) == 0 {
			ids, err := store.List()
			if err != nil {
				return err
			}
			if f.JSON() {
				return f.Emit(ids)
			}
			if len(ids) == 0 {
				f.Textln("no batches")
				return nil
			}
			for _, id := range ids {
				f.Textln("%s", id)
			}
			return nil
		}

		b, err := store.Load(args[0])
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("batch %s not found", args[0])
		}
		if f.JSON() {
			return f.Emit(b)
		}

		f.Textln("batch %s  status=%s  created=%s", b.ID, b.Status,
			b.CreatedAt.Local().Format(time.RFC3339))
		table := output.NewTable(f.Writer(), "ITEM", "TITLE", "STATUS", "PANE")
		for _, item := range b.Items {
			bw := b.Workers[item.ID]
			status := string(batch.WorkerQueued)
			pane := ""
			if bw != nil {
				status = string(bw.Status)
				pane = bw.PaneID
			}
			table.AddRow(item.ID, strings.TrimSpace(item.Title), status, pane)
		}
		table.Render()
		return nil
	},
}

func init() {
	batchCreateCmd.Flags().StringVar(&batchID, "id", "", "batch id (default derived from timestamp)")
	batchCreateCmd.Flags().IntVar(&batchMaxConcurrent, "max-concurrent", 0, "concurrency ceiling (0 = unlimited)")
	batchCreateCmd.Flags().BoolVar(&batchAutoApprove, "auto-approve", false, "auto-approve permissions for this batch")

	batchProcessCmd.Flags().StringVar(&batchSession, "session", "genie", "tmux session to spawn workers in")
	batchProcessCmd.Flags().StringVar(&batchAgentCmd, "agent-cmd", "claude", "agent command to run in each new pane")

	batchCmd.AddCommand(batchCreateCmd, batchProcessCmd, batchCancelCmd, batchStatusCmd)
	rootCmd.AddCommand(batchCmd)
}
