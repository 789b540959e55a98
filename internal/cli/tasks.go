package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getgenie/genie/internal/output"
	"github.com/getgenie/genie/internal/task"
)

var (
	taskTitle     string
	taskDependsOn []string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage the local task queue",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show open tasks split by readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openTasks()
		if err != nil {
			return err
		}
		view, err := backend.Queue()
		if err != nil {
			return err
		}

		f := formatter()
		if f.JSON() {
			return f.Emit(view)
		}
		if len(view.Ready) == 0 && len(view.Blocked) == 0 {
			f.Textln("no open tasks")
			return nil
		}
		table := output.NewTable(f.Writer(), "ID", "TITLE", "READY", "DEPENDS ON")
		for _, t := range view.Ready {
			table.AddRow(t.ID, t.Title, "yes", strings.Join(t.DependsOn, ","))
		}
		for _, t := range view.Blocked {
			table.AddRow(t.ID, t.Title, "no", strings.Join(t.DependsOn, ","))
		}
		table.Render()
		return nil
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <task-id>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openTasks()
		if err != nil {
			return err
		}
		t := &task.Task{ID: args[0], Title: taskTitle, DependsOn: taskDependsOn}
		if err := backend.Create(t); err != nil {
			return err
		}
		formatter().Success("created task %s", t.ID)
		return nil
	},
}

var tasksClaimCmd = &cobra.Command{
	Use:   "claim <task-id> <worker-id>",
	Short: "Claim a task for a worker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openTasks()
		if err != nil {
			return err
		}
		t, err := backend.Claim(args[0], args[1])
		if err != nil {
			return err
		}
		formatter().Success("task %s claimed by %s", t.ID, t.Assignee)
		return nil
	},
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openTasks()
		if err != nil {
			return err
		}
		t, err := backend.MarkDone(args[0])
		if err != nil {
			return err
		}
		formatter().Success("task %s done", t.ID)
		return nil
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openTasks()
		if err != nil {
			return err
		}
		t, err := backend.Get(args[0])
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("show: %w: %s", task.ErrTaskNotFound, args[0])
		}
		f := formatter()
		if f.JSON() {
			return f.Emit(t)
		}
		f.Textln("%s  %s", t.ID, t.Title)
		f.Textln("status: %s", t.Status)
		if t.Assignee != "" {
			f.Textln("assignee: %s", t.Assignee)
		}
		if len(t.DependsOn) > 0 {
			f.Textln("depends on: %s", strings.Join(t.DependsOn, ", "))
		}
		if t.Description != "" {
			f.Line()
			f.Textln("%s", t.Description)
		}
		return nil
	},
}

func init() {
	tasksAddCmd.Flags().StringVar(&taskTitle, "title", "", "task title")
	tasksAddCmd.Flags().StringSliceVar(&taskDependsOn, "depends-on", nil, "task ids this task waits for")

	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksClaimCmd, tasksDoneCmd, tasksShowCmd)
	rootCmd.AddCommand(tasksCmd)
}
