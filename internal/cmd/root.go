package cmd

import (
	"strings"

	"github.com/iskng/metagent/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "metagent",
	Short: "Agent workflow manager",
	Long: `metagent drives coding and writing agents (claude, codex) through a
fixed pipeline of stages. Tasks, sessions, claims and issues live as files
under .agents/<agent>/ in the repository, so several terminals can work the
same queue.

Running metagent without a subcommand starts an interactive session.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runStart,
}

var (
	modelFlag  string
	forceModel bool
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/metagent/config.yaml)")
	rootCmd.PersistentFlags().String("agent", "", "agent kind: code or writer (env METAGENT_AGENT)")
	bindFlags()
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model to run: claude or codex (env METAGENT_MODEL)")
	rootCmd.PersistentFlags().BoolVar(&forceModel, "force-model", false, "use --model even for tasks with open issues")
}

// bindFlags ties the persistent flags that override config keys to viper.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("agent", rootCmd.PersistentFlags().Lookup("agent"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/metagent")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("METAGENT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., METAGENT_CLAIMS_BACKEND for claims.backend
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
