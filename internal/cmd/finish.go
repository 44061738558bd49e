package cmd

import (
	"os"

	"github.com/iskng/metagent/internal/orchestrator"
	"github.com/iskng/metagent/internal/supervisor"
	"github.com/spf13/cobra"
)

var finishCmd = &cobra.Command{
	Use:   "finish [stage]",
	Short: "Mark the current stage finished (called by the agent)",
	Long: `Called by the agent at the end of a stage. Marks the session finished and
advances the task to --next, or to the stage's default successor. The
session comes from --session, $METAGENT_SESSION or the only running
session; the task from --task, $METAGENT_TASK or the session record.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFinish,
}

var (
	finishNext    string
	finishSession string
	finishTask    string
)

func init() {
	rootCmd.AddCommand(finishCmd)

	finishCmd.Flags().StringVar(&finishNext, "next", "", "Stage to move the task to")
	finishCmd.Flags().StringVar(&finishSession, "session", "", "Session ID (default: $METAGENT_SESSION)")
	finishCmd.Flags().StringVar(&finishTask, "task", "", "Task name (default: $METAGENT_TASK)")
}

func runFinish(cmd *cobra.Command, args []string) error {
	req := orchestrator.FinishRequest{
		Next:      finishNext,
		SessionID: finishSession,
		Task:      finishTask,
	}
	if len(args) > 0 {
		req.Stage = args[0]
	}
	if req.Task == "" {
		req.Task = os.Getenv(supervisor.EnvTask)
	}
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		_, err := o.Finish(req)
		return err
	})
}
