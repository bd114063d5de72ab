// internal/engine/planner.go
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// planner turns a task plus page context into a validated plan. Malformed
// oracle responses are re-requested a bounded number of times with the
// policy's backoff; when all attempts fail the planner substitutes a
// minimal diagnostic plan and surfaces the oracle error alongside it.
type planner struct {
	oracle schemas.Oracle
	policy schemas.RetryPolicy
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func newPlanner(oracle schemas.Oracle, policy schemas.RetryPolicy, logger *zap.Logger) *planner {
	return &planner{
		oracle: oracle,
		policy: policy,
		logger: logger.Named("planner"),
		sleep:  sleepContext,
	}
}

// Generate returns a validated plan. When the returned error is non-nil the
// plan is the diagnostic fallback: still executable, but the task must be
// reported as failed with the error.
func (p *planner) Generate(ctx context.Context, req schemas.PlanRequest) (schemas.TaskPlan, error) {
	var lastErr error

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		plan, err := p.oracle.GeneratePlan(ctx, req)
		if err == nil {
			p.logger.Debug("Plan accepted.",
				zap.Int("attempt", attempt),
				zap.Int("steps", len(plan.Steps)))
			return plan, nil
		}
		lastErr = err

		var engErr *schemas.EngineError
		if !errors.As(err, &engErr) || engErr.Code != schemas.ErrCodeOracle {
			// Only oracle failures are worth re-prompting. Anything else
			// (cancellation, invalid request) will not improve on retry.
			break
		}
		if attempt == p.policy.MaxAttempts {
			break
		}

		wait := p.policy.Backoff(attempt)
		p.logger.Warn("Oracle plan rejected, re-prompting.",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.policy.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if serr := p.sleep(ctx, wait); serr != nil {
			break
		}
	}

	p.logger.Warn("Plan generation exhausted, substituting diagnostic fallback plan.", zap.Error(lastErr))
	return fallbackPlan(), lastErr
}

// fallbackPlan is the minimal diagnostic plan used when the oracle cannot
// produce a usable one: a single screenshot so the failure is inspectable.
func fallbackPlan() schemas.TaskPlan {
	return schemas.TaskPlan{Steps: []schemas.ActionStep{{
		Action:      schemas.ActionScreenshot,
		Parameters:  map[string]any{},
		Description: "Capture the page for diagnosis after plan generation failed.",
	}}}
}
