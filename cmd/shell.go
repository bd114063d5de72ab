// File: cmd/shell.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/taskpilot/internal/observability"
)

const shellHelp = `Shell keeps one browser session open and executes each line you type
as a task. Lines starting with a command keyword are handled locally:

  url <address>     navigate the session to a URL
  analyze <task>    classify the current page against a task without acting
  history           print the recorded action history
  help              show this summary
  exit | quit       leave the shell`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive task shell against a single browser session",
	Long:  shellHelp,
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	comps, err := startComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Shutdown(logger)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "taskpilot shell. Type a task, or 'help' for commands.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "taskpilot > ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if err := dispatchShellLine(ctx, comps, out, line); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading shell input: %w", err)
	}
	fmt.Fprintln(out, "Exiting taskpilot shell.")
	return nil
}

// dispatchShellLine routes one input line. Anything that is not a known
// command keyword is treated as a task description.
func dispatchShellLine(ctx context.Context, comps *components, out io.Writer, line string) error {
	keyword, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch keyword {
	case "url":
		if rest == "" {
			return fmt.Errorf("usage: url <address>")
		}
		return comps.session.Navigate(ctx, rest)

	case "analyze":
		if rest == "" {
			return fmt.Errorf("usage: analyze <task>")
		}
		assessment, err := comps.engine.AnalyzeSituation(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "page=%s intent=%s relevance=%.2f approach=%s confidence=%.2f\n",
			assessment.PageType, assessment.Intent, assessment.RelevanceScore,
			assessment.Approach, assessment.Confidence)
		if len(assessment.MatchedKeywords) > 0 {
			fmt.Fprintf(out, "matched: %s\n", strings.Join(assessment.MatchedKeywords, ", "))
		}
		if len(assessment.Obstacles) > 0 {
			fmt.Fprintf(out, "obstacles: %s\n", strings.Join(assessment.Obstacles, ", "))
		}
		return nil

	case "history":
		entries := comps.engine.ActionHistory()
		if len(entries) == 0 {
			fmt.Fprintln(out, "history is empty")
			return nil
		}
		for _, entry := range entries {
			status := "ok"
			if !entry.Result.Success {
				status = "failed: " + entry.Result.Error
			}
			fmt.Fprintf(out, "%s  %-12s %s (%s)\n",
				entry.Timestamp.Format("15:04:05.000"), entry.Step.Action, entry.Step.Description, status)
		}
		return nil

	case "help":
		fmt.Fprintln(out, shellHelp)
		return nil

	default:
		result, err := comps.engine.ExecuteTask(ctx, line)
		if err != nil {
			return err
		}
		if result.Success {
			fmt.Fprintln(out, "task succeeded")
		} else {
			fmt.Fprintf(out, "task failed: %s\n", result.Error)
		}
		if result.ScreenshotPath != "" {
			fmt.Fprintf(out, "screenshot: %s\n", result.ScreenshotPath)
		}
		return nil
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
