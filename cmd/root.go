// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/observability"
)

var (
	cfgFile string
	// cfg holds the fully resolved configuration after PersistentPreRunE.
	cfg *config.Config
)

// rootCmd is the base command for the taskpilot CLI.
var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "Drive a browser with natural language tasks",
	Long: `Taskpilot turns natural language task descriptions into verified
browser actions. It captures the page, plans a sequence of steps with an
LLM oracle, resolves target elements and executes each step with retries
until the task succeeds or is exhausted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := initializeConfig(cmd)
		if err != nil {
			// Initialize a fallback logger so the failure is at least visible.
			observability.InitializeLogger(config.NewDefaultConfig().Logger)
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		observability.InitializeLogger(cfg.Logger)
		return nil
	},
}

// Execute runs the root command with the provided context. The context is
// cancelled on SIGINT/SIGTERM by the caller.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command failed", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig reads configuration from file and environment into a
// validated Config. A missing config file is not an error; defaults apply.
func initializeConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.taskpilot")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("TASKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Explicit flags win over file and environment values.
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		headless, _ := cmd.Flags().GetBool("headless")
		v.Set("browser.headless", headless)
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		level, _ := cmd.Flags().GetString("log-level")
		v.Set("logger.level", level)
	}

	return config.NewConfigFromViper(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().Bool("headless", true, "run the browser headless")
	rootCmd.PersistentFlags().String("log-level", "", "override the configured log level")
}
