// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/browser"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/engine"
	"github.com/xkilldash9x/taskpilot/internal/llmclient"
	"github.com/xkilldash9x/taskpilot/internal/observability"
	"github.com/xkilldash9x/taskpilot/internal/oracle"
)

const shutdownGracePeriod = 15 * time.Second

var (
	runStartURL   string
	runJSONOutput bool
)

var runCmd = &cobra.Command{
	Use:   "run \"<task description>\"",
	Short: "Execute a single natural language task",
	Long: `Run starts a browser session, optionally navigates to a starting URL,
and executes the given task to completion. The process exit code reflects
the task outcome.`,
	Example: `  taskpilot run --url https://example.com "click the Sign In button"
  taskpilot run "search for wireless headphones and open the first result"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

// components bundles everything a task run needs so that shutdown happens
// in one place regardless of how the run ends.
type components struct {
	manager *browser.Manager
	session *browser.Session
	router  *llmclient.LLMRouter
	engine  *engine.Engine
}

// startComponents brings up the browser, the model router and the engine.
// On error everything already started is torn down before returning.
func startComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	manager := browser.NewManager(cfg.Browser, logger)

	session, err := manager.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting browser session: %w", err)
	}

	router, err := llmclient.NewRouterFromConfig(cfg.Oracle.LLM, logger)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
		defer cancel()
		manager.Shutdown(shutdownCtx)
		return nil, fmt.Errorf("initializing LLM router: %w", err)
	}

	planner := oracle.NewLLMOracle(router, logger, cfg.Engine.HistoryPromptTail)
	eng := engine.New(session, planner, cfg, logger)

	return &components{manager: manager, session: session, router: router, engine: eng}, nil
}

// Shutdown tears the stack down in reverse construction order. Errors are
// logged rather than returned; shutdown is best effort.
func (c *components) Shutdown(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := c.engine.Close(); err != nil {
		logger.Warn("Engine close failed", zap.Error(err))
	}
	if err := c.router.Close(); err != nil {
		logger.Warn("LLM router close failed", zap.Error(err))
	}
	if err := c.manager.Shutdown(ctx); err != nil {
		logger.Warn("Browser shutdown failed", zap.Error(err))
	}
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	task := strings.TrimSpace(strings.Join(args, " "))

	comps, err := startComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Shutdown(logger)

	if runStartURL != "" {
		if err := comps.session.Navigate(ctx, runStartURL); err != nil {
			return fmt.Errorf("navigating to start URL %q: %w", runStartURL, err)
		}
	}

	result, taskErr := comps.engine.ExecuteTask(ctx, task)
	printResult(cmd, task, result)

	if taskErr != nil {
		return fmt.Errorf("task failed: %w", taskErr)
	}
	if !result.Success {
		return fmt.Errorf("task failed: %s", result.Error)
	}
	return nil
}

// printResult writes a human or JSON summary of the task outcome to stdout.
func printResult(cmd *cobra.Command, task string, result schemas.ActionResult) {
	out := cmd.OutOrStdout()

	if runJSONOutput {
		encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(out, "{\"success\": %t}\n", result.Success)
			return
		}
		fmt.Fprintf(out, "%s\n", encoded)
		return
	}

	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(out, "Task %s: %q\n", status, task)
	if result.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", result.Error)
	}
	if result.ScreenshotPath != "" {
		fmt.Fprintf(out, "  screenshot: %s\n", result.ScreenshotPath)
	}
	for key, value := range result.Data {
		fmt.Fprintf(out, "  %s: %v\n", key, value)
	}
}

func init() {
	runCmd.Flags().StringVar(&runStartURL, "url", "", "URL to navigate to before executing the task")
	runCmd.Flags().BoolVar(&runJSONOutput, "json", false, "print the task result as JSON")
	rootCmd.AddCommand(runCmd)
}
