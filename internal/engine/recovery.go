// internal/engine/recovery.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// recovery wraps step execution in a bounded retry loop: an explicit
// attempt counter plus the policy's backoff schedule, no recursion.
// Cancellation is observed at attempt boundaries only; an attempt already
// in flight runs to completion.
type recovery struct {
	executor *executor
	policy   schemas.RetryPolicy
	logger   *zap.Logger

	// sleep is injectable so tests can assert the backoff schedule without
	// waiting it out.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRecovery(exec *executor, policy schemas.RetryPolicy, logger *zap.Logger) *recovery {
	return &recovery{
		executor: exec,
		policy:   policy,
		logger:   logger.Named("recovery"),
		sleep:    sleepContext,
	}
}

// Run executes the step with up to policy.MaxAttempts attempts. Fatal
// errors abort immediately; retryable ones wait min(base*2^(attempt-1),
// cap) and try again. Exhaustion yields a terminal failed result carrying
// the last error and, when possible, a diagnostic screenshot.
func (r *recovery) Run(ctx context.Context, step schemas.ActionStep, snap *schemas.PageSnapshot) (schemas.ActionResult, error) {
	var lastResult schemas.ActionResult
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = schemas.NewTimeoutError("step aborted before attempt", err)
			break
		}

		lastResult, lastErr = r.executor.Execute(ctx, step, snap)
		if lastErr == nil {
			return lastResult, nil
		}

		if !schemas.IsRetryable(lastErr) {
			r.logger.Warn("Step failed with a non-retryable error.",
				zap.String("action", string(step.Action)),
				zap.String("code", string(schemas.CodeOf(lastErr))),
				zap.Error(lastErr))
			return lastResult, lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		wait := r.policy.Backoff(attempt)
		r.logger.Info("Step failed, retrying.",
			zap.String("action", string(step.Action)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))
		if err := r.sleep(ctx, wait); err != nil {
			lastErr = schemas.NewTimeoutError("step aborted during backoff", err)
			break
		}
	}

	lastResult = failedResult(fmt.Errorf("step exhausted %d attempts: %w", r.policy.MaxAttempts, lastErr))
	if path := r.diagnosticScreenshot(ctx); path != "" {
		lastResult.ScreenshotPath = path
	}
	return lastResult, lastErr
}

// diagnosticScreenshot best-effort captures the page for the failure
// report. Runs on a short detached deadline so a dead page cannot stall
// the abort path.
func (r *recovery) diagnosticScreenshot(ctx context.Context) string {
	if !r.executor.backend.Running() {
		return ""
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	path := r.executor.screenshotPath(schemas.ActionStep{Action: schemas.ActionScreenshot})
	if err := r.executor.backend.Screenshot(shotCtx, path); err != nil {
		r.logger.Debug("Diagnostic screenshot failed.", zap.Error(err))
		return ""
	}
	return path
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
