// internal/engine/engine.go
// Package engine implements the task execution engine: it converts a
// natural language task description into a verified sequence of browser
// actions through context collection, situational analysis, plan
// generation, element resolution, execution with fallback chains and
// bounded retry recovery.
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// Engine drives one browser session. The session is not safe for
// concurrent use, so a weighted semaphore of one admits a single task (or
// analysis) at a time; steps within a plan run strictly sequentially.
type Engine struct {
	backend  schemas.Backend
	oracle   schemas.Oracle
	cfg      config.EngineConfig
	logger   *zap.Logger
	sem      *semaphore.Weighted
	collect  *collector
	analyze  *analyzer
	plan     *planner
	recover  *recovery
	recorder *historyRecorder
}

// New wires an engine around the given backend and oracle.
func New(backend schemas.Backend, oracle schemas.Oracle, cfg *config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("engine")

	res := newResolver(backend, logger)
	exec := newExecutor(backend, res, cfg.Browser.ScreenshotDir, logger)

	return &Engine{
		backend:  backend,
		oracle:   oracle,
		cfg:      cfg.Engine,
		logger:   logger,
		sem:      semaphore.NewWeighted(1),
		collect:  newCollector(backend, logger),
		analyze:  newAnalyzer(oracle, logger),
		plan:     newPlanner(oracle, cfg.Oracle.RetryPolicy(), logger),
		recover:  newRecovery(exec, cfg.Engine.RetryPolicy(), logger),
		recorder: newHistoryRecorder(logger, cfg.Engine.HistoryFile),
	}
}

// ExecuteTask runs one task end to end and returns the aggregated result.
// The result's Success flag is true only when every step succeeded; partial
// progress is visible through the history, not the flag.
func (e *Engine) ExecuteTask(ctx context.Context, description string) (schemas.ActionResult, error) {
	if strings.TrimSpace(description) == "" {
		err := schemas.NewSchemaValidationError("", "task", "must not be empty")
		return failedResult(err), err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return failedResult(err), fmt.Errorf("waiting for engine slot: %w", err)
	}
	defer e.sem.Release(1)

	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	e.logger.Info("Task started.", zap.String("task", description))

	snap, err := e.collect.Capture(ctx)
	if err != nil {
		e.logger.Error("Task failed before planning.", zap.Error(err))
		return failedResult(err), err
	}

	assessment := e.analyze.Analyze(ctx, description, snap)
	e.logger.Info("Situation assessed.",
		zap.String("page_type", string(assessment.PageType)),
		zap.String("intent", string(assessment.Intent)),
		zap.Float64("relevance", assessment.RelevanceScore),
		zap.String("approach", string(assessment.Approach)))

	plan, planErr := e.plan.Generate(ctx, schemas.PlanRequest{
		Task:       description,
		Snapshot:   condenseSnapshot(snap, assessment),
		Assessment: &assessment,
		History:    e.recorder.All(),
	})

	result, stepErr := e.runPlan(ctx, description, plan, snap)

	if planErr != nil {
		// The fallback plan only gathers diagnostics; the task itself failed.
		result.Success = false
		result.Error = planErr.Error()
		e.logger.Warn("Task failed: no usable plan.", zap.Error(planErr))
		return result, planErr
	}
	if stepErr != nil {
		e.logger.Warn("Task failed.", zap.Error(stepErr))
		return result, stepErr
	}
	e.logger.Info("Task completed.", zap.Int("steps", len(plan.Steps)))
	return result, nil
}

// runPlan executes the steps strictly in order, recording each outcome.
// The first terminal failure aborts the plan and is returned; later steps
// never run.
func (e *Engine) runPlan(ctx context.Context, task string, plan schemas.TaskPlan, snap *schemas.PageSnapshot) (schemas.ActionResult, error) {
	aggregate := schemas.ActionResult{Success: true, Data: map[string]any{}}
	var terminal error

	for i, step := range plan.Steps {
		// Cancellation is observed at step boundaries only.
		if err := ctx.Err(); err != nil {
			terminal = fmt.Errorf("task aborted before step %d: %w", i+1, err)
			aggregate.Success = false
			aggregate.Error = terminal.Error()
			break
		}

		stepCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.StepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, e.cfg.StepTimeout)
		}
		stepResult, stepErr := e.recover.Run(stepCtx, step, snap)
		if cancel != nil {
			cancel()
		}

		e.recorder.Record(task, step, stepResult)

		if stepResult.ScreenshotPath != "" {
			aggregate.ScreenshotPath = stepResult.ScreenshotPath
		}
		for k, v := range stepResult.Data {
			aggregate.Data[k] = v
		}

		if stepErr != nil {
			terminal = fmt.Errorf("step %d (%s) failed: %w", i+1, step.Action, stepErr)
			aggregate.Success = false
			aggregate.Error = terminal.Error()
			break
		}

		// Navigation and clicks invalidate the snapshot the resolver consults.
		if step.Action == schemas.ActionNavigate || step.Action == schemas.ActionClick {
			if fresh, err := e.collect.Capture(ctx); err == nil {
				snap = fresh
			}
		}
	}

	if len(aggregate.Data) == 0 {
		aggregate.Data = nil
	}
	return aggregate, terminal
}

// AnalyzeSituation assesses the current page against a task description
// without executing anything.
func (e *Engine) AnalyzeSituation(ctx context.Context, description string) (schemas.SituationAssessment, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return schemas.SituationAssessment{}, fmt.Errorf("waiting for engine slot: %w", err)
	}
	defer e.sem.Release(1)

	snap, err := e.collect.Capture(ctx)
	if err != nil {
		return schemas.SituationAssessment{}, err
	}
	return e.analyze.Analyze(ctx, description, snap), nil
}

// ActionHistory returns the append-only action log in chronological order.
func (e *Engine) ActionHistory() []schemas.ActionHistoryEntry {
	return e.recorder.All()
}

// Close releases engine-owned resources. The backend and oracle are owned
// by the caller.
func (e *Engine) Close() error {
	return e.recorder.Close()
}

// maxPlanElements caps the element list sent to the oracle.
const maxPlanElements = 40

// condenseSnapshot bounds the snapshot the oracle sees, keeping clickable
// and relevance-matched elements first while preserving document order
// within each class.
func condenseSnapshot(snap *schemas.PageSnapshot, assessment schemas.SituationAssessment) *schemas.PageSnapshot {
	if snap == nil || len(snap.Elements) <= maxPlanElements {
		return snap
	}

	matches := func(el schemas.InteractiveElement) bool {
		digest := elementDigest(el)
		for _, kw := range assessment.MatchedKeywords {
			if kw != "" && strings.Contains(digest, kw) {
				return true
			}
		}
		return false
	}

	condensed := *snap
	condensed.Elements = nil
	for pass := 0; pass < 3 && len(condensed.Elements) < maxPlanElements; pass++ {
		for _, el := range snap.Elements {
			if len(condensed.Elements) >= maxPlanElements {
				break
			}
			keep := false
			switch pass {
			case 0:
				keep = el.Clickable && matches(el)
			case 1:
				keep = el.Clickable && !matches(el)
			case 2:
				keep = !el.Clickable
			}
			if keep {
				condensed.Elements = append(condensed.Elements, el)
			}
		}
	}
	return &condensed
}
