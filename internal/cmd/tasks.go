package cmd

import (
	"strconv"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/orchestrator"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task <name>",
	Short: "Create a task (or show an existing one)",
	Long: `Create a task directory with the agent's scaffold and register it at the
first stage. Running it again for an existing task prints its state and,
with --description, updates the description.`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

var holdCmd = &cobra.Command{
	Use:   "hold <name>",
	Short: "Move a task to the backlog",
	Args:  cobra.ExactArgs(1),
	RunE:  runHold,
}

var dequeueCmd = &cobra.Command{
	Use:   "dequeue <name>",
	Short: "Move a task to the backlog (same as hold)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHold,
}

var activateCmd = &cobra.Command{
	Use:   "activate <name>",
	Short: "Return a held task to the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a task directory",
	Long: `Delete a task and its directory. Open issues assigned to the task block
deletion; --force deletes anyway and leaves the issues unassigned.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var queueCmd = &cobra.Command{
	Use:     "queue [task]",
	Aliases: []string{"q"},
	Short:   "Show the queue, or register an existing task directory",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runQueue,
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <name> <position>",
	Short: "Move a build task to a position in the build queue",
	Args:  cobra.ExactArgs(2),
	RunE:  runReorder,
}

var setStageCmd = &cobra.Command{
	Use:   "set-stage <name> <stage>",
	Short: "Move a task to a stage",
	Long: `Move a task to a stage. Without --status the status is derived: issues
when the task has open issues, completed at the completed stage, otherwise
pending.`,
	Args: cobra.ExactArgs(2),
	RunE: runSetStage,
}

var historyCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show the stages a task has been through",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var planCmd = &cobra.Command{
	Use:   "plan <name>",
	Short: "Summarize a task's plan checklist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

var (
	taskHold        bool
	taskDescription string
	deleteForce     bool
	setStageStatus  string
)

func init() {
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(holdCmd)
	rootCmd.AddCommand(dequeueCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(reorderCmd)
	rootCmd.AddCommand(setStageCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(planCmd)

	taskCmd.Flags().BoolVar(&taskHold, "hold", false, "Create the task in the backlog")
	taskCmd.Flags().StringVar(&taskDescription, "description", "", "Short description of the task")
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Delete even with open issues (they become unassigned)")
	setStageCmd.Flags().StringVar(&setStageStatus, "status", "", "Status to set (pending, running, incomplete, failed, completed, issues)")
}

func runTask(cmd *cobra.Command, args []string) error {
	var description *string
	if cmd.Flags().Changed("description") {
		description = &taskDescription
	}
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		_, err := o.CreateTask(args[0], taskHold, description)
		return err
	})
}

func runHold(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.Hold(args[0])
	})
}

func runActivate(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.Activate(args[0])
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.Delete(args[0], deleteForce)
	})
}

func runQueue(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.Queue(name)
	})
}

func runReorder(cmd *cobra.Command, args []string) error {
	position, err := strconv.Atoi(args[1])
	if err != nil || position < 1 {
		return errors.Validation("Position must be a positive integer: %s", args[1])
	}
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.Reorder(args[0], position)
	})
}

func runSetStage(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.SetStage(args[0], args[1], setStageStatus)
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.History(args[0])
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.Plan(args[0])
	})
}
