// File: cmd/config.go
package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/taskpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Config prints the fully resolved configuration after applying
defaults, the config file, environment variables and flags. API keys are
redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(redactConfig(cfg), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", encoded)
		return nil
	},
}

// redactConfig returns a copy of the configuration with secrets blanked.
func redactConfig(c *config.Config) config.Config {
	out := *c
	if len(c.Oracle.LLM.Models) > 0 {
		models := make(map[string]config.LLMModelConfig, len(c.Oracle.LLM.Models))
		for name, mc := range c.Oracle.LLM.Models {
			if mc.APIKey != "" {
				mc.APIKey = "[redacted]"
			}
			models[name] = mc
		}
		out.Oracle.LLM.Models = models
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
}
