package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iskng/metagent/internal/orchestrator"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize an agent in a repository",
	Long: `Initialize metagent for the selected agent.
This creates .agents/<agent>/tasks (and issues for the code agent) in the
given directory, or in the enclosing repository when no path is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	kind, err := agentKind()
	if err != nil {
		return err
	}

	var root string
	if len(args) > 0 {
		root, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", args[0], err)
		}
	} else if root, err = findRepoRoot(); err != nil {
		// Not inside a repository yet: initialize the working directory.
		if root, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	return orchestrator.Init(root, kind, cmd.OutOrStdout())
}
