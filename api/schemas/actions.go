package schemas

import (
	"encoding/json"
	"fmt"
	"time"
)

// -- Action Schemas --

// ActionType enumerates every browser operation the engine can execute.
// The set is closed: dispatch over it is an exhaustive switch, and a value
// outside this set never survives validation.
type ActionType string

const (
	ActionNavigate      ActionType = "navigate"
	ActionClick         ActionType = "click"
	ActionTypeText      ActionType = "type"
	ActionScroll        ActionType = "scroll"
	ActionWait          ActionType = "wait"
	ActionScreenshot    ActionType = "screenshot"
	ActionGetText       ActionType = "get_text"
	ActionGetAttribute  ActionType = "get_attribute"
	ActionExecuteScript ActionType = "execute_script"
)

// AllActionTypes lists the closed action set in a stable order, used for
// prompt construction and validation messages.
var AllActionTypes = []ActionType{
	ActionNavigate,
	ActionClick,
	ActionTypeText,
	ActionScroll,
	ActionWait,
	ActionScreenshot,
	ActionGetText,
	ActionGetAttribute,
	ActionExecuteScript,
}

// ActionStep is one concrete browser operation with its parameters.
// A step that reaches the executor has already passed Validate.
type ActionStep struct {
	Action      ActionType     `json:"action"`
	Parameters  map[string]any `json:"parameters"`
	Description string         `json:"description,omitempty"`
}

// TargetsElement reports whether the step needs element resolution before it
// can execute.
func (s ActionStep) TargetsElement() bool {
	switch s.Action {
	case ActionClick, ActionTypeText, ActionGetText, ActionGetAttribute:
		return true
	default:
		return false
	}
}

// StringParam returns a string-typed parameter, with ok=false when the key is
// absent or not a string.
func (s ActionStep) StringParam(key string) (string, bool) {
	v, ok := s.Parameters[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// NumberParam returns a numeric parameter. JSON unmarshaling yields float64,
// but callers that built steps in Go may have used int.
func (s ActionStep) NumberParam(key string) (float64, bool) {
	switch v := s.Parameters[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Validate checks the step's parameters against the schema for its action
// kind. Invalid parameters are a hard failure: retrying cannot fix a
// structurally invalid step.
func (s ActionStep) Validate() error {
	switch s.Action {
	case ActionNavigate:
		if v, ok := s.StringParam("url"); !ok || v == "" {
			return NewSchemaValidationError(s.Action, "url", "required non-empty string")
		}
	case ActionClick:
		if !s.hasTarget() {
			return NewSchemaValidationError(s.Action, "selector", "selector or text is required")
		}
	case ActionTypeText:
		if !s.hasTarget() {
			return NewSchemaValidationError(s.Action, "selector", "selector or text is required")
		}
		if _, ok := s.StringParam("text"); !ok {
			return NewSchemaValidationError(s.Action, "text", "required string")
		}
	case ActionScroll:
		dir, ok := s.StringParam("direction")
		if !ok {
			dir = "down"
		}
		if dir != "up" && dir != "down" {
			return NewSchemaValidationError(s.Action, "direction", "must be 'up' or 'down'")
		}
	case ActionWait:
		if v, ok := s.NumberParam("seconds"); ok && v < 0 {
			return NewSchemaValidationError(s.Action, "seconds", "must be non-negative")
		}
	case ActionScreenshot:
		// Filename is optional; the executor names artifacts itself.
	case ActionGetText:
		if !s.hasTarget() {
			return NewSchemaValidationError(s.Action, "selector", "selector or text is required")
		}
	case ActionGetAttribute:
		if !s.hasTarget() {
			return NewSchemaValidationError(s.Action, "selector", "selector or text is required")
		}
		if v, ok := s.StringParam("attribute"); !ok || v == "" {
			return NewSchemaValidationError(s.Action, "attribute", "required non-empty string")
		}
	case ActionExecuteScript:
		if v, ok := s.StringParam("script"); !ok || v == "" {
			return NewSchemaValidationError(s.Action, "script", "required non-empty string")
		}
	default:
		return NewSchemaValidationError(s.Action, "action", fmt.Sprintf("unknown action kind %q", s.Action))
	}
	return nil
}

func (s ActionStep) hasTarget() bool {
	if v, ok := s.StringParam("selector"); ok && v != "" {
		return true
	}
	if v, ok := s.StringParam("text"); ok && v != "" {
		return true
	}
	return false
}

// Descriptor derives the element-locating hints from the step's parameters.
// Only meaningful for element-targeting steps.
func (s ActionStep) Descriptor() ElementDescriptor {
	d := ElementDescriptor{}
	if v, ok := s.StringParam("selector"); ok {
		d.Selector = v
	}
	if v, ok := s.StringParam("text"); ok && s.Action != ActionTypeText {
		// For "type" steps the text parameter is the payload to enter, not a
		// locator hint.
		d.Text = v
	}
	if v, ok := s.StringParam("target_text"); ok {
		d.Text = v
	}
	if v, ok := s.StringParam("role"); ok {
		d.Role = v
	}
	return d
}

// MarshalWire serializes the step to its canonical wire form.
func (s ActionStep) MarshalWire() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalWire deserializes a step from its wire form and validates it.
func UnmarshalWire(data []byte) (ActionStep, error) {
	var s ActionStep
	if err := json.Unmarshal(data, &s); err != nil {
		return ActionStep{}, fmt.Errorf("decoding action step: %w", err)
	}
	if err := s.Validate(); err != nil {
		return ActionStep{}, err
	}
	return s, nil
}

// TaskPlan is an ordered, finite sequence of steps produced for one task.
// Plans are immutable: re-planning builds a new plan rather than editing one
// in place.
type TaskPlan struct {
	Steps []ActionStep `json:"steps"`
}

// Validate checks every step in order and reports the first invalid one.
func (p TaskPlan) Validate() error {
	if len(p.Steps) == 0 {
		return NewSchemaValidationError("", "steps", "plan must contain at least one step")
	}
	for i, step := range p.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// ActionResult captures the outcome of a single step, or the aggregate
// outcome of a whole task.
type ActionResult struct {
	Success        bool           `json:"success"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
	ScreenshotPath string         `json:"screenshot_path,omitempty"`
}

// RetryPolicy bounds step execution attempts. It is configuration, not
// mutable state.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BackoffBase time.Duration `json:"backoff_base"`
	BackoffCap  time.Duration `json:"backoff_cap"`
}

// Backoff returns the wait before retrying after the given attempt number
// (1-based): min(base * 2^(attempt-1), cap). The schedule is non-decreasing.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if p.BackoffCap > 0 && d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BackoffBase < 0 || p.BackoffCap < 0 {
		return fmt.Errorf("retry policy: backoff durations must be non-negative")
	}
	return nil
}
