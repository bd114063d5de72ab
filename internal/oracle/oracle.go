// internal/oracle/oracle.go
// Package oracle implements the planning intelligence behind the engine:
// an LLM-backed schemas.Oracle that turns task descriptions and page
// observations into validated action plans.
package oracle

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// apiCallTimeout bounds each individual model call; the caller's context
// still governs the overall operation.
const apiCallTimeout = 30 * time.Second

// LLMOracle implements schemas.Oracle on top of an LLM client. Plan
// generation uses the powerful tier with JSON output forced; assessment
// uses the fast tier. Responses that do not parse into the expected schema
// are reported as oracle errors, never repaired.
type LLMOracle struct {
	llm         schemas.LLMClient
	logger      *zap.Logger
	historyTail int
}

// NewLLMOracle creates an oracle backed by the given LLM client.
// historyTail caps how many recent history entries are embedded in the
// plan prompt; values <= 0 mean no cap.
func NewLLMOracle(llm schemas.LLMClient, logger *zap.Logger, historyTail int) *LLMOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMOracle{
		llm:         llm,
		logger:      logger.Named("oracle"),
		historyTail: historyTail,
	}
}

// GeneratePlan asks the model for an ordered step sequence and validates it
// against the action schema before returning.
func (o *LLMOracle) GeneratePlan(ctx context.Context, req schemas.PlanRequest) (schemas.TaskPlan, error) {
	if req.Task == "" {
		return schemas.TaskPlan{}, schemas.NewSchemaValidationError("", "task", "must not be empty")
	}

	userPrompt, err := buildPlanUserPrompt(req, o.historyTail)
	if err != nil {
		return schemas.TaskPlan{}, schemas.NewOracleError("failed to build plan prompt", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()

	raw, err := o.llm.Generate(callCtx, schemas.GenerationRequest{
		SystemPrompt: planSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.2,
		},
	})
	if err != nil {
		return schemas.TaskPlan{}, schemas.NewOracleError("plan generation call failed", err)
	}

	plan, err := parsePlanResponse(raw)
	if err != nil {
		o.logger.Warn("Oracle returned a malformed plan.",
			zap.Error(err),
			zap.Int("response_length", len(raw)))
		return schemas.TaskPlan{}, err
	}

	o.logger.Debug("Plan generated.", zap.Int("steps", len(plan.Steps)))
	return plan, nil
}

// Assess asks the model for a semantic judgment of the page.
func (o *LLMOracle) Assess(ctx context.Context, req schemas.AssessRequest) (schemas.OracleAssessment, error) {
	if req.Snapshot == nil {
		return schemas.OracleAssessment{}, schemas.NewSchemaValidationError("", "snapshot", "must not be nil")
	}

	userPrompt, err := buildAssessUserPrompt(req)
	if err != nil {
		return schemas.OracleAssessment{}, schemas.NewOracleError("failed to build assess prompt", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()

	raw, err := o.llm.Generate(callCtx, schemas.GenerationRequest{
		SystemPrompt: assessSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.2,
		},
	})
	if err != nil {
		return schemas.OracleAssessment{}, schemas.NewOracleError("assessment call failed", err)
	}

	assessment, err := parseAssessResponse(raw)
	if err != nil {
		o.logger.Warn("Oracle returned a malformed assessment.", zap.Error(err))
		return schemas.OracleAssessment{}, err
	}
	return assessment, nil
}

// parsePlanResponse decodes a raw model response into a validated plan.
// Models may answer with either a {"steps": [...]} envelope or one bare
// action object; the latter becomes a single step plan. Any other deviation
// from the schema is an oracle error.
func parsePlanResponse(raw string) (schemas.TaskPlan, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return schemas.TaskPlan{}, schemas.NewOracleError("plan response contains no JSON", err)
	}

	var plan schemas.TaskPlan
	if err := json.UnmarshalFromString(jsonStr, &plan); err != nil {
		return schemas.TaskPlan{}, schemas.NewOracleError("plan response is not valid JSON", err)
	}
	if len(plan.Steps) == 0 {
		var step schemas.ActionStep
		if err := json.UnmarshalFromString(jsonStr, &step); err == nil && step.Action != "" {
			plan.Steps = []schemas.ActionStep{step}
		}
	}
	if err := plan.Validate(); err != nil {
		return schemas.TaskPlan{}, schemas.NewOracleError(fmt.Sprintf("plan failed schema validation: %v", err), err)
	}
	return plan, nil
}

func parseAssessResponse(raw string) (schemas.OracleAssessment, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return schemas.OracleAssessment{}, schemas.NewOracleError("assessment response contains no JSON", err)
	}

	var assessment schemas.OracleAssessment
	if err := json.UnmarshalFromString(jsonStr, &assessment); err != nil {
		return schemas.OracleAssessment{}, schemas.NewOracleError("assessment response is not valid JSON", err)
	}
	switch assessment.Approach {
	case schemas.ApproachDirect, schemas.ApproachExploratory,
		schemas.ApproachCautious, schemas.ApproachAggressive:
	case "":
		assessment.Approach = schemas.ApproachCautious
	default:
		return schemas.OracleAssessment{}, schemas.NewOracleError(
			fmt.Sprintf("assessment has unknown approach %q", assessment.Approach), nil)
	}
	if assessment.Confidence < 0 || assessment.Confidence > 1 {
		return schemas.OracleAssessment{}, schemas.NewOracleError(
			fmt.Sprintf("assessment confidence %.2f is out of range", assessment.Confidence), nil)
	}
	return assessment, nil
}
