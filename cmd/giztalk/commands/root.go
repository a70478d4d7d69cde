package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/go/pkg/cli"
)

var (
	// Global flags.
	verbose     bool
	contextName string // set via --context
	dataDir     string

	// Global CLI configuration, loaded at init time.
	globalConfig  *cli.Config
	configLoadErr error
)

var rootCmd = &cobra.Command{
	Use:   "giztalk",
	Short: "Voice assistant backend for giztalk devices",
	Long: `giztalk - the conversational backend for giztalk voice devices.

The server side accepts device websocket connections, segments speech,
transcribes it, runs the conversation through a chat model and streams
paced Opus audio back. The CLI manages the resources behind that
pipeline and ships a device simulator for local testing.

Configuration is stored in ~/.giztalk/config.yaml with kubectl-style
contexts.

Examples:
  # Run the gateway with a config file
  giztalk serve -f server.yaml

  # Create resources from a YAML file
  giztalk apply -f setup.yaml

  # Inspect the store
  giztalk get roles
  giztalk get messages dev1 r1

  # Talk to a running server from the terminal
  giztalk config add-context dev --server ws://localhost:8091/ws/giztalk/v1/
  giztalk gear`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&contextName, "context", "", "CLI context to use")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "server data directory override")
}

func initConfig() {
	cfg, err := cli.LoadConfig()
	if err != nil {
		// Deferred: commands that need config report it via GetConfig so
		// config-free commands like version still run.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global CLI configuration.
func GetConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config unavailable: %w", configLoadErr)
		}
		return nil, fmt.Errorf("config not loaded")
	}
	return globalConfig, nil
}

// IsVerbose reports whether --verbose was set.
func IsVerbose() bool {
	return verbose
}
