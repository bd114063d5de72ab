// internal/engine/executor.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// stepState tracks one step through its lifecycle. Failed steps may return
// to Pending under the recovery controller, up to the retry policy's bound.
type stepState string

const (
	statePending   stepState = "pending"
	stateResolving stepState = "resolving"
	stateExecuting stepState = "executing"
	stateVerifying stepState = "verifying"
	stateSucceeded stepState = "succeeded"
	stateFailed    stepState = "failed"
)

// executor applies one validated step to the backend. Element-targeting
// steps resolve first; the click path then walks a fallback chain until one
// sub-strategy lands. Non-element actions map to a single backend call.
type executor struct {
	backend       schemas.Backend
	resolver      *resolver
	logger        *zap.Logger
	screenshotDir string

	// now is injectable for deterministic artifact names in tests.
	now func() time.Time
}

func newExecutor(backend schemas.Backend, res *resolver, screenshotDir string, logger *zap.Logger) *executor {
	return &executor{
		backend:       backend,
		resolver:      res,
		logger:        logger.Named("executor"),
		screenshotDir: screenshotDir,
		now:           time.Now,
	}
}

// Execute runs one step to completion. The returned error, when non-nil, is
// always an EngineError; the ActionResult mirrors it for history recording.
func (e *executor) Execute(ctx context.Context, step schemas.ActionStep, snap *schemas.PageSnapshot) (schemas.ActionResult, error) {
	state := statePending
	advance := func(next stepState) {
		e.logger.Debug("Step state transition.",
			zap.String("action", string(step.Action)),
			zap.String("from", string(state)),
			zap.String("to", string(next)))
		state = next
	}

	if !e.backend.Running() {
		return failedResult(schemas.ErrBackendUnavailable), schemas.ErrBackendUnavailable
	}

	var handle schemas.ElementHandle
	if step.TargetsElement() {
		advance(stateResolving)
		var err error
		handle, err = e.resolver.Resolve(ctx, step.Descriptor(), snap)
		if err != nil {
			advance(stateFailed)
			return failedResult(err), err
		}
	}

	advance(stateExecuting)
	result, err := e.dispatch(ctx, step, handle)
	if err != nil {
		advance(stateFailed)
		return failedResult(err), err
	}

	advance(stateVerifying)
	if !e.backend.Running() {
		advance(stateFailed)
		return failedResult(schemas.ErrBackendUnavailable), schemas.ErrBackendUnavailable
	}

	advance(stateSucceeded)
	result.Success = true
	return result, nil
}

// dispatch is the exhaustive switch over the closed action set. Steps
// reaching this point have passed Validate, so parameter lookups cannot
// fail for required keys.
func (e *executor) dispatch(ctx context.Context, step schemas.ActionStep, handle schemas.ElementHandle) (schemas.ActionResult, error) {
	switch step.Action {
	case schemas.ActionNavigate:
		url, _ := step.StringParam("url")
		if err := e.backend.Navigate(ctx, url); err != nil {
			return schemas.ActionResult{}, wrapExec(step.Action, err)
		}
		return schemas.ActionResult{Data: map[string]any{"url": url}}, nil

	case schemas.ActionClick:
		if err := e.clickChain(ctx, handle); err != nil {
			return schemas.ActionResult{}, err
		}
		return schemas.ActionResult{}, nil

	case schemas.ActionTypeText:
		text, _ := step.StringParam("text")
		if err := e.typeChain(ctx, handle, text); err != nil {
			return schemas.ActionResult{}, err
		}
		return schemas.ActionResult{}, nil

	case schemas.ActionScroll:
		direction, ok := step.StringParam("direction")
		if !ok {
			direction = "down"
		}
		amount, ok := step.NumberParam("amount")
		if !ok || amount <= 0 {
			amount = 600
		}
		delta := amount
		if direction == "up" {
			delta = -amount
		}
		if err := e.backend.Scroll(ctx, delta); err != nil {
			return schemas.ActionResult{}, wrapExec(step.Action, err)
		}
		return schemas.ActionResult{}, nil

	case schemas.ActionWait:
		seconds, ok := step.NumberParam("seconds")
		if !ok {
			seconds = 1
		}
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return schemas.ActionResult{}, schemas.NewTimeoutError("wait interrupted", ctx.Err())
		}
		return schemas.ActionResult{}, nil

	case schemas.ActionScreenshot:
		path := e.screenshotPath(step)
		if err := e.backend.Screenshot(ctx, path); err != nil {
			return schemas.ActionResult{}, wrapExec(step.Action, err)
		}
		return schemas.ActionResult{ScreenshotPath: path}, nil

	case schemas.ActionGetText:
		text, err := e.backend.Text(ctx, handle)
		if err != nil {
			return schemas.ActionResult{}, wrapExec(step.Action, err)
		}
		return schemas.ActionResult{Data: map[string]any{"text": text}}, nil

	case schemas.ActionGetAttribute:
		name, _ := step.StringParam("attribute")
		value, ok, err := e.backend.Attribute(ctx, handle, name)
		if err != nil {
			return schemas.ActionResult{}, wrapExec(step.Action, err)
		}
		return schemas.ActionResult{Data: map[string]any{"value": value, "found": ok}}, nil

	case schemas.ActionExecuteScript:
		script, _ := step.StringParam("script")
		var out any
		if err := e.backend.EvaluateScript(ctx, script, &out); err != nil {
			return schemas.ActionResult{}, wrapExec(step.Action, err)
		}
		return schemas.ActionResult{Data: map[string]any{"result": out}}, nil

	default:
		// Unreachable for validated steps.
		return schemas.ActionResult{}, schemas.NewSchemaValidationError(step.Action, "action", "unknown action kind")
	}
}

// clickChain tries each click sub-strategy in order until one succeeds.
// Individual failures are collected, not surfaced; only exhaustion of the
// whole chain is an execution error.
func (e *executor) clickChain(ctx context.Context, handle schemas.ElementHandle) error {
	type subStrategy struct {
		name string
		run  func(context.Context) error
	}
	chain := []subStrategy{
		{"direct", func(ctx context.Context) error {
			return e.backend.Click(ctx, handle)
		}},
		{"scroll_into_view", func(ctx context.Context) error {
			if err := e.backend.ScrollIntoView(ctx, handle); err != nil {
				return err
			}
			return e.backend.Click(ctx, handle)
		}},
		{"wait_visible", func(ctx context.Context) error {
			if err := e.backend.WaitVisible(ctx, handle); err != nil {
				return err
			}
			return e.backend.Click(ctx, handle)
		}},
		{"js_click", func(ctx context.Context) error {
			return e.backend.ClickJS(ctx, handle)
		}},
		{"keyboard", func(ctx context.Context) error {
			return e.backend.FocusAndEnter(ctx, handle)
		}},
		{"force", func(ctx context.Context) error {
			return e.backend.ForceClick(ctx, handle)
		}},
	}

	var failures []string
	for _, s := range chain {
		if err := ctx.Err(); err != nil {
			return schemas.NewTimeoutError("click interrupted", err)
		}
		err := s.run(ctx)
		if err == nil {
			if len(failures) > 0 {
				e.logger.Debug("Click landed after fallbacks.",
					zap.String("strategy", s.name),
					zap.Strings("failed", failures))
			}
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", s.name, err))
	}
	return schemas.NewExecutionError(schemas.ActionClick,
		fmt.Errorf("all click strategies exhausted: %s", strings.Join(failures, "; ")))
}

// typeChain types into the element, retrying once after scrolling it into
// view when the direct attempt fails.
func (e *executor) typeChain(ctx context.Context, handle schemas.ElementHandle, text string) error {
	firstErr := e.backend.TypeText(ctx, handle, text)
	if firstErr == nil {
		return nil
	}
	if err := e.backend.ScrollIntoView(ctx, handle); err == nil {
		if err := e.backend.TypeText(ctx, handle, text); err == nil {
			return nil
		}
	}
	return schemas.NewExecutionError(schemas.ActionTypeText, firstErr)
}

func (e *executor) screenshotPath(step schemas.ActionStep) string {
	if name, ok := step.StringParam("filename"); ok && name != "" {
		return filepath.Join(e.screenshotDir, name)
	}
	return filepath.Join(e.screenshotDir, fmt.Sprintf("taskpilot-%s.png", e.now().Format("20060102-150405.000")))
}

func wrapExec(action schemas.ActionType, err error) error {
	if errors.Is(err, schemas.ErrBackendUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return schemas.NewTimeoutError(fmt.Sprintf("%s timed out", action), err)
	}
	return schemas.NewExecutionError(action, err)
}

func failedResult(err error) schemas.ActionResult {
	return schemas.ActionResult{Success: false, Error: err.Error()}
}
