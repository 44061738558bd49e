package cmd

import (
	"context"
	"strings"

	"github.com/iskng/metagent/internal/config"
	"github.com/iskng/metagent/internal/orchestrator"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an interactive session from the first stage",
	Long: `Run the agent from its first stage with no task. The agent creates the
task during the interview; metagent then follows it until the task is ready
for the queue.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a task through its stages until it completes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var runNextCmd = &cobra.Command{
	Use:     "run-next [name]",
	Aliases: []string{"rn"},
	Short:   "Run a single stage of the named or next eligible task",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runRunNext,
}

var runQueueCmd = &cobra.Command{
	Use:     "run-queue",
	Aliases: []string{"rq"},
	Short:   "Process the queue until no task is eligible",
	Long: `Process queue stages (spec review issues, build, review) until no task is
eligible. A task sent from review back to build more than --loop-limit
times in a row is moved to the backlog.`,
	Args: cobra.NoArgs,
	RunE: runRunQueue,
}

var reviewCmd = &cobra.Command{
	Use:   "review <task> [focus...]",
	Short: "Run a manual review of a task",
	Long: `Run the review stage for a task without advancing it. Any further
arguments are passed to the reviewer as the area to focus on.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReview,
}

var specReviewCmd = &cobra.Command{
	Use:   "spec-review <task>",
	Short: "Run the spec review stage of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpecReview,
}

var loopLimit int

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runNextCmd)
	rootCmd.AddCommand(runQueueCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(specReviewCmd)

	runQueueCmd.Flags().IntVar(&loopLimit, "loop-limit", 0, "Review/build round trips before a task is held (default from config, else 100)")
}

func runStart(cmd *cobra.Command, args []string) error {
	return withSupervision(cmd, func(ctx context.Context, o *orchestrator.Orchestrator, _ *config.Config) error {
		return o.Start(ctx)
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	return withSupervision(cmd, func(ctx context.Context, o *orchestrator.Orchestrator, _ *config.Config) error {
		return o.Run(ctx, args[0])
	})
}

func runRunNext(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return withSupervision(cmd, func(ctx context.Context, o *orchestrator.Orchestrator, _ *config.Config) error {
		return o.RunNext(ctx, name)
	})
}

func runRunQueue(cmd *cobra.Command, args []string) error {
	return withSupervision(cmd, func(ctx context.Context, o *orchestrator.Orchestrator, cfg *config.Config) error {
		limit := cfg.Queue.LoopLimit
		if cmd.Flags().Changed("loop-limit") {
			limit = loopLimit
		}
		return o.RunQueue(ctx, limit)
	})
}

func runReview(cmd *cobra.Command, args []string) error {
	focus := strings.Join(args[1:], " ")
	return withSupervision(cmd, func(ctx context.Context, o *orchestrator.Orchestrator, _ *config.Config) error {
		return o.Review(ctx, args[0], focus)
	})
}

func runSpecReview(cmd *cobra.Command, args []string) error {
	return withSupervision(cmd, func(ctx context.Context, o *orchestrator.Orchestrator, _ *config.Config) error {
		return o.SpecReview(ctx, args[0])
	})
}
