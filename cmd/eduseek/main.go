package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
)

// defaultConfigFiles are tried in order when no --config flag is given
var defaultConfigFiles = []string{"eduseek.toml", "deployments/local/eduseek.toml"}

func newRootCmd() *cobra.Command {
	var configFiles []string

	cmd := &cobra.Command{
		Use:           "eduseek",
		Short:         "EduSeek - LMS course content sync",
		Long:          "EduSeek logs into the LMS, downloads course content and uploads it to the document ingestion backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configFiles))
	cmd.AddCommand(newSyncCmd(&configFiles))
	cmd.AddCommand(newIngestCmd(&configFiles))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eduseek %s\n", common.GetFullVersion())
		},
	}
}

// loadConfig resolves config files (defaults -> files -> env) and initializes the logger
func loadConfig(configFiles []string) (*common.Config, arbor.ILogger, []string, error) {
	if len(configFiles) == 0 {
		for _, candidate := range defaultConfigFiles {
			if _, err := os.Stat(candidate); err == nil {
				configFiles = []string{candidate}
				break
			}
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := common.InitLogger(config)
	return config, logger, configFiles, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
