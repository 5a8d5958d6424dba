package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/overcooked/overcooked/internal/store"
	enginesync "github.com/overcooked/overcooked/internal/sync"
	"github.com/overcooked/overcooked/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, list, and update tasks",
}

var (
	addDescription string
	addCategory    string
	addKind        string
	addPriority    string
	addNotes       string
	addGroup       string
	addDue         string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new task",
	Long: `Create a new task in the local store.

The task is visible immediately and pushed to the hub in the background.
Deadlines accept natural language:

  ovc task add "Pay rent" --due "tomorrow at 9am"
  ovc task add "Team sync" --group kitchen --due "next friday"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		rec := task.New(args[0])
		rec.OwnerID = e.owner
		rec.Description = addDescription
		rec.Category = addCategory
		rec.Notes = addNotes
		rec.GroupID = addGroup
		if addKind != "" {
			rec.Kind = task.Kind(strings.ToUpper(addKind))
			if !rec.Kind.Valid() {
				exitErr(fmt.Errorf("invalid kind %q", addKind))
			}
		}
		if addPriority != "" {
			rec.Priority = task.Priority(strings.ToUpper(addPriority))
			if !rec.Priority.Valid() {
				exitErr(fmt.Errorf("invalid priority %q", addPriority))
			}
		}
		if addDue != "" {
			due, err := parseDue(addDue)
			if err != nil {
				exitErr(err)
			}
			rec.Deadline = &due
		}

		trigger := &pendingTrigger{}
		mutator := enginesync.NewMutator(e.store, e.wallet, trigger, e.owner, e.cfg.NewLogger("[mutate] "))
		if err := mutator.Create(rec); err != nil {
			exitErr(err)
		}

		fmt.Printf("Created task %s: %s\n", rec.RemoteKey, rec.Title)
		if trigger.scheduled {
			e.tryDrain()
		}
	},
}

var (
	listCompleted bool
	listPending   bool
	listToday     bool
	listOverdue   bool
	listGroup     string
	listCategory  string
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		f := store.Filter{OwnerID: e.owner, GroupID: listGroup, Category: listCategory}
		if listCompleted {
			done := true
			f.Completed = &done
		}
		if listPending {
			done := false
			f.Completed = &done
		}

		records, err := e.store.List(f)
		if err != nil {
			exitErr(err)
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSTATUS\tPRI\tDUE\tTITLE")
		shown := 0
		for _, rec := range records {
			if listToday && !rec.DueToday(now) {
				continue
			}
			if listOverdue && !rec.Overdue(now) {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				shortKey(rec.RemoteKey), rec.Status, rec.Priority, formatDue(rec.Deadline), rec.Title)
			shown++
		}
		w.Flush()
		fmt.Printf("\n%d task(s)\n", shown)
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <key>",
	Short: "Mark a task as done",
	Long: `Mark a task as done.

Completing a task for the first time grants the completion reward to your
wallet. Reopening and completing again does not grant it twice.`,
	Args: cobra.ExactArgs(1),
	Run:  statusRun(task.StatusDone),
}

var taskStartCmd = &cobra.Command{
	Use:   "start <key>",
	Short: "Mark a task as in progress",
	Args:  cobra.ExactArgs(1),
	Run:   statusRun(task.StatusInProgress),
}

var taskReopenCmd = &cobra.Command{
	Use:   "reopen <key>",
	Short: "Mark a done task as not started",
	Args:  cobra.ExactArgs(1),
	Run:   statusRun(task.StatusNotStarted),
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		rec, err := resolveTask(e, args[0])
		if err != nil {
			exitErr(err)
		}

		trigger := &pendingTrigger{}
		mutator := enginesync.NewMutator(e.store, e.wallet, trigger, e.owner, e.cfg.NewLogger("[mutate] "))
		if err := mutator.Delete(rec); err != nil {
			exitErr(err)
		}

		fmt.Printf("Deleted task: %s\n", rec.Title)
		if trigger.scheduled {
			e.tryDrain()
		}
	},
}

// statusRun builds a Run func that moves a task to the given status.
func statusRun(status task.Status) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		rec, err := resolveTask(e, args[0])
		if err != nil {
			exitErr(err)
		}

		trigger := &pendingTrigger{}
		mutator := enginesync.NewMutator(e.store, e.wallet, trigger, e.owner, e.cfg.NewLogger("[mutate] "))
		if err := mutator.SetStatus(rec.RemoteKey, status); err != nil {
			exitErr(err)
		}

		fmt.Printf("Task %q is now %s\n", rec.Title, status)
		if trigger.scheduled {
			e.tryDrain()
		}
	}
}

// resolveTask finds a task by full key or unique key prefix.
func resolveTask(e *env, key string) (*task.Record, error) {
	rec, err := e.store.Get(key)
	if err == nil {
		return rec, nil
	}

	records, err := e.store.List(store.Filter{OwnerID: e.owner})
	if err != nil {
		return nil, err
	}
	var match *task.Record
	for _, r := range records {
		if strings.HasPrefix(r.RemoteKey, key) {
			if match != nil {
				return nil, fmt.Errorf("key prefix %q is ambiguous", key)
			}
			match = r
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no task matches %q", key)
	}
	return match, nil
}

// parseDue turns natural-language input like "tomorrow at 5pm" into a time.
func parseDue(input string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(input, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse deadline %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand deadline %q", input)
	}
	return r.Time, nil
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func init() {
	taskAddCmd.Flags().StringVarP(&addDescription, "desc", "d", "", "task description")
	taskAddCmd.Flags().StringVar(&addCategory, "category", "", "task category")
	taskAddCmd.Flags().StringVar(&addKind, "kind", "", "task kind (HOMEWORK, ASSIGNMENT, EXAM, PROJECT, OTHER)")
	taskAddCmd.Flags().StringVarP(&addPriority, "priority", "p", "", "priority (LOW, MEDIUM, HIGH)")
	taskAddCmd.Flags().StringVar(&addNotes, "notes", "", "free-form notes")
	taskAddCmd.Flags().StringVarP(&addGroup, "group", "g", "", "shared group id")
	taskAddCmd.Flags().StringVar(&addDue, "due", "", "deadline in natural language")

	taskListCmd.Flags().BoolVar(&listCompleted, "completed", false, "only completed tasks")
	taskListCmd.Flags().BoolVar(&listPending, "pending", false, "only incomplete tasks")
	taskListCmd.Flags().BoolVar(&listToday, "today", false, "only tasks due today")
	taskListCmd.Flags().BoolVar(&listOverdue, "overdue", false, "only overdue tasks")
	taskListCmd.Flags().StringVarP(&listGroup, "group", "g", "", "filter by group id")
	taskListCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskReopenCmd)
	taskCmd.AddCommand(taskRmCmd)
}
