// internal/oracle/prompts.go
package oracle

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// planSystemPrompt is the core instruction set for plan generation. The
// action list mirrors the executor's closed action set; anything outside it
// fails schema validation and triggers a re-request.
const planSystemPrompt = `You are the planning intelligence of 'taskpilot', an autonomous browser task agent.
You receive a natural language task and a structured observation of the current page, and you must respond with a single JSON object describing an ordered plan of browser actions.

Available action types and their parameters:

    - navigate: Load a URL. (Params: url)
      Example: {"action": "navigate", "parameters": {"url": "https://example.com"}, "description": "Open the site"}
    - click: Click an element. (Params: selector and/or text)
      Example: {"action": "click", "parameters": {"selector": "#submit"}, "description": "Press the submit button"}
    - type: Enter text into a field. (Params: selector and/or target_text, text)
      Example: {"action": "type", "parameters": {"selector": "input[name=\"q\"]", "text": "golang"}, "description": "Fill the search box"}
    - scroll: Scroll the page. (Params: direction="up" or "down", optional amount in pixels)
    - wait: Pause execution. (Params: seconds)
    - screenshot: Capture the viewport. (Params: none required)
    - get_text: Read an element's visible text. (Params: selector and/or text)
    - get_attribute: Read an attribute value. (Params: selector and/or text, attribute)
    - execute_script: Run JavaScript in the page. (Params: script)

Rules:
    - Respond with ONLY a JSON object of the form {"steps": [ ... ]}.
    - Every step must use one of the action types above with its required parameters.
    - Prefer selectors taken from the provided page elements; fall back to visible text only when no selector is available.
    - Keep plans short and concrete. Do not invent elements that are not in the observation.`

// assessSystemPrompt asks for advisory judgment, not a plan. Page type,
// intent and relevance are computed deterministically and supplied as input.
const assessSystemPrompt = `You are the situational awareness component of 'taskpilot', an autonomous browser task agent.
You receive a natural language task, a structured observation of the current page, and a pre-computed classification of the page and task.
Respond with ONLY a JSON object of the form:
{"approach": "direct"|"exploratory"|"cautious"|"aggressive", "obstacles": ["..."], "success_indicators": ["..."], "confidence": 0.0-1.0}

List in "obstacles" anything likely to block the task (cookie banners, login walls, captchas, overlays). List in "success_indicators" observable signs that the task has completed. Choose "direct" only when the target elements are clearly present.`

// buildPlanUserPrompt renders the task, page observation, deterministic
// assessment and recent history into the user prompt.
func buildPlanUserPrompt(req schemas.PlanRequest, historyTail int) (string, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Task: %s\n", req.Task)

	if req.Snapshot != nil {
		snapJSON, err := json.MarshalIndent(promptSnapshot(req.Snapshot), "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal page snapshot: %w", err)
		}
		fmt.Fprintf(&sb, "\nCurrent page observation (JSON):\n%s\n", string(snapJSON))
	} else {
		sb.WriteString("\nNo page is loaded yet. The plan must begin with a navigate step.\n")
	}

	if req.Assessment != nil {
		assessJSON, err := json.Marshal(req.Assessment)
		if err != nil {
			return "", fmt.Errorf("failed to marshal assessment: %w", err)
		}
		fmt.Fprintf(&sb, "\nSituational assessment (JSON):\n%s\n", string(assessJSON))
	}

	if tail := tailEntries(req.History, historyTail); len(tail) > 0 {
		sb.WriteString("\nRecent action history (oldest first):\n")
		for _, entry := range tail {
			outcome := "ok"
			if !entry.Result.Success {
				outcome = "failed: " + entry.Result.Error
			}
			fmt.Fprintf(&sb, "- %s %v (%s)\n", entry.Step.Action, entry.Step.Parameters, outcome)
		}
	}

	sb.WriteString("\nProduce the plan. Respond with a single JSON object.")
	return sb.String(), nil
}

func buildAssessUserPrompt(req schemas.AssessRequest) (string, error) {
	snapJSON, err := json.MarshalIndent(promptSnapshot(req.Snapshot), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal page snapshot: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", req.Task)
	fmt.Fprintf(&sb, "\nPre-computed classification: page_type=%s intent=%s relevance=%.2f\n", req.PageType, req.Intent, req.Relevance)
	fmt.Fprintf(&sb, "\nCurrent page observation (JSON):\n%s\n", string(snapJSON))
	sb.WriteString("\nJudge the situation. Respond with a single JSON object.")
	return sb.String(), nil
}

// promptSnapshotView is the trimmed snapshot embedded in prompts; full
// attribute maps and element geometry stay out to keep token usage bounded.
type promptSnapshotView struct {
	URL         string              `json:"url"`
	Title       string              `json:"title"`
	VisibleText string              `json:"visible_text"`
	Elements    []promptElementView `json:"elements"`
}

type promptElementView struct {
	Index    int    `json:"index"`
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	Selector string `json:"selector"`
	Visible  bool   `json:"visible"`
}

const (
	maxPromptText     = 4000
	maxPromptElements = 60
)

func promptSnapshot(snap *schemas.PageSnapshot) promptSnapshotView {
	if snap == nil {
		return promptSnapshotView{}
	}
	view := promptSnapshotView{
		URL:         snap.URL,
		Title:       snap.Title,
		VisibleText: snap.VisibleText,
	}
	if len(view.VisibleText) > maxPromptText {
		view.VisibleText = view.VisibleText[:maxPromptText]
	}
	for i, el := range snap.Elements {
		if i >= maxPromptElements {
			break
		}
		view.Elements = append(view.Elements, promptElementView{
			Index:    el.Index,
			Tag:      el.Tag,
			Text:     el.Text,
			Selector: el.Selector,
			Visible:  el.Visible,
		})
	}
	return view
}

// tailEntries returns up to n of the most recent entries, preserving order.
// The recorded history itself is never truncated; only the prompt view is.
func tailEntries(entries []schemas.ActionHistoryEntry, n int) []schemas.ActionHistoryEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
