package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/iskng/metagent/internal/config"
	"github.com/iskng/metagent/internal/model"
	"github.com/iskng/metagent/internal/orchestrator"
	"github.com/iskng/metagent/internal/stage"
	"github.com/iskng/metagent/internal/state"
	"github.com/iskng/metagent/internal/supervisor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// findRepoRoot locates the repository containing the working directory.
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return state.FindRepoRoot(cwd)
}

// agentKind returns the kind selected by --agent, $METAGENT_AGENT or the
// config file.
func agentKind() (stage.Kind, error) {
	name := viper.GetString("agent")
	if name == "" {
		name = config.Default().Agent
	}
	return stage.Lookup(name)
}

// modelChoice resolves --model, then $METAGENT_MODEL, then the configured
// model. Any of them counts as an explicit choice.
func modelChoice(cfg *config.Config) (model.Choice, error) {
	flag := modelFlag
	if flag == "" && os.Getenv(model.Env) == "" {
		flag = cfg.Model
	}
	return model.NewChoice(flag, forceModel)
}

// openOrchestrator builds an orchestrator for the current repository with
// output routed to the command's writers.
func openOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	kind, err := agentKind()
	if err != nil {
		return nil, nil, err
	}
	choice, err := modelChoice(cfg)
	if err != nil {
		return nil, nil, err
	}
	repoRoot, err := findRepoRoot()
	if err != nil {
		return nil, nil, err
	}
	orch, err := orchestrator.New(orchestrator.Options{
		Kind:     kind,
		RepoRoot: repoRoot,
		Config:   cfg,
		Choice:   choice,
		Out:      cmd.OutOrStdout(),
		Err:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}
	return orch, cfg, nil
}

// withOrchestrator runs fn against a freshly opened orchestrator.
func withOrchestrator(cmd *cobra.Command, fn func(o *orchestrator.Orchestrator) error) error {
	orch, _, err := openOrchestrator(cmd)
	if err != nil {
		return err
	}
	defer orch.Close()
	return fn(orch)
}

// withSupervision is withOrchestrator for commands that launch agents: the
// context passed to fn is cancelled on SIGINT or SIGTERM.
func withSupervision(cmd *cobra.Command, fn func(ctx context.Context, o *orchestrator.Orchestrator, cfg *config.Config) error) error {
	orch, cfg, err := openOrchestrator(cmd)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, stop := supervisor.InstallSignalHandler(cmd.Context())
	defer stop()
	return fn(ctx, orch, cfg)
}
