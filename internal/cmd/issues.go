package cmd

import (
	"fmt"
	"io"

	"github.com/iskng/metagent/internal/errors"
	"github.com/iskng/metagent/internal/issue"
	"github.com/iskng/metagent/internal/orchestrator"
	"github.com/spf13/cobra"
)

// issueFilterFlags holds the listing filters shared by "issues" and
// "issue list".
type issueFilterFlags struct {
	task       string
	unassigned bool
	status     string
	priority   string
	issueType  string
	source     string
	file       string
}

func (f *issueFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.task, "task", "", "Only issues assigned to this task")
	cmd.Flags().BoolVar(&f.unassigned, "unassigned", false, "Only issues without a task")
	cmd.Flags().StringVar(&f.status, "status", "open", "open, resolved or all")
	cmd.Flags().StringVar(&f.priority, "priority", "", "P0, P1, P2 or P3")
	cmd.Flags().StringVar(&f.issueType, "type", "", "spec, build, bug, test, perf or other")
	cmd.Flags().StringVar(&f.source, "source", "", "review, debug, submit or manual")
	cmd.Flags().StringVar(&f.file, "file", "", "Glob matched against the issue's file (e.g. 'src/**/*.go')")
}

func (f *issueFilterFlags) filter() (issue.Filter, error) {
	out := issue.Filter{Task: f.task, Unassigned: f.unassigned, File: f.file}
	var err error
	if out.Status, err = issue.ParseStatusFilter(f.status); err != nil {
		return out, err
	}
	if f.priority != "" {
		if out.Priority, err = issue.ParsePriority(f.priority); err != nil {
			return out, err
		}
	}
	if f.issueType != "" {
		if out.Type, err = issue.ParseType(f.issueType); err != nil {
			return out, err
		}
	}
	if f.source != "" {
		if out.Source, err = issue.ParseSource(f.source); err != nil {
			return out, err
		}
	}
	return out, out.Validate()
}

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List issues (open by default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listIssues(cmd, &issuesFlags)
	},
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long: `Manage issues filed against tasks. An open issue keeps its task out of
the completed stage until it is resolved.`,
}

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues (open by default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listIssues(cmd, &issueListFlags)
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "File a new issue",
	Long: `File a new open issue. With --task the task is marked as having issues
and, when it had already completed, sent back to the stage for the issue
type (or --stage).`,
	Args: cobra.NoArgs,
	RunE: runIssueAdd,
}

var issueResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve an issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueResolve,
}

var issueAssignCmd = &cobra.Command{
	Use:   "assign <id>",
	Short: "Assign an issue to a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueAssign,
}

var issueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueShow,
}

var (
	issuesFlags    issueFilterFlags
	issueListFlags issueFilterFlags

	issueAddTitle     string
	issueAddTask      string
	issueAddPriority  string
	issueAddType      string
	issueAddSource    string
	issueAddFile      string
	issueAddStage     string
	issueAddBody      string
	issueAddStdinBody bool

	issueResolution  string
	issueAssignTask  string
	issueAssignStage string
)

func init() {
	rootCmd.AddCommand(issuesCmd)
	rootCmd.AddCommand(issueCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueResolveCmd)
	issueCmd.AddCommand(issueAssignCmd)
	issueCmd.AddCommand(issueShowCmd)

	issuesFlags.register(issuesCmd)
	issueListFlags.register(issueListCmd)

	issueAddCmd.Flags().StringVar(&issueAddTitle, "title", "", "Issue title")
	_ = issueAddCmd.MarkFlagRequired("title")
	issueAddCmd.Flags().StringVar(&issueAddTask, "task", "", "Task the issue belongs to")
	issueAddCmd.Flags().StringVar(&issueAddPriority, "priority", "", "P0, P1, P2 or P3 (default P2)")
	issueAddCmd.Flags().StringVar(&issueAddType, "type", "", "spec, build, bug, test, perf or other (default build)")
	issueAddCmd.Flags().StringVar(&issueAddSource, "source", "", "review, debug, submit or manual (default manual)")
	issueAddCmd.Flags().StringVar(&issueAddFile, "file", "", "File the issue is about")
	issueAddCmd.Flags().StringVar(&issueAddStage, "stage", "", "Stage to send the task back to")
	issueAddCmd.Flags().StringVar(&issueAddBody, "body", "", "Issue body (markdown)")
	issueAddCmd.Flags().BoolVar(&issueAddStdinBody, "stdin-body", false, "Read the issue body from stdin")

	issueResolveCmd.Flags().StringVar(&issueResolution, "resolution", "", "How the issue was resolved")

	issueAssignCmd.Flags().StringVar(&issueAssignTask, "task", "", "Task to assign the issue to")
	_ = issueAssignCmd.MarkFlagRequired("task")
	issueAssignCmd.Flags().StringVar(&issueAssignStage, "stage", "", "Stage to send the task back to")
}

func listIssues(cmd *cobra.Command, flags *issueFilterFlags) error {
	f, err := flags.filter()
	if err != nil {
		return err
	}
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.ListIssues(f)
	})
}

func runIssueAdd(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("body") && issueAddStdinBody {
		return errors.Validation("Use --body or --stdin-body, not both")
	}
	body := issueAddBody
	if issueAddStdinBody {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read issue body from stdin: %w", err)
		}
		body = string(data)
	}
	req := orchestrator.AddIssueRequest{
		Title:    issueAddTitle,
		Task:     issueAddTask,
		Priority: issueAddPriority,
		Type:     issueAddType,
		Source:   issueAddSource,
		File:     issueAddFile,
		Stage:    issueAddStage,
		Body:     body,
	}
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		_, err := o.AddIssue(req)
		return err
	})
}

func runIssueResolve(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.ResolveIssue(args[0], issueResolution)
	})
}

func runIssueAssign(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.AssignIssue(args[0], issueAssignTask, issueAssignStage)
	})
}

func runIssueShow(cmd *cobra.Command, args []string) error {
	return withOrchestrator(cmd, func(o *orchestrator.Orchestrator) error {
		return o.ShowIssue(args[0])
	})
}
