package schemas_test

import (
	"encoding/json"
	"testing"
	"time"

	// Third party libraries for expressive and robust assertions.
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import the package we are testing.
	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// TestActionTypeValues pins the wire values of the action kinds. These
// strings appear in oracle prompts and recorded history, so accidental
// renames would break both.
func TestActionTypeValues(t *testing.T) {
	t.Parallel()
	expected := map[schemas.ActionType]string{
		schemas.ActionNavigate:      "navigate",
		schemas.ActionClick:         "click",
		schemas.ActionTypeText:      "type",
		schemas.ActionScroll:        "scroll",
		schemas.ActionWait:          "wait",
		schemas.ActionScreenshot:    "screenshot",
		schemas.ActionGetText:       "get_text",
		schemas.ActionGetAttribute:  "get_attribute",
		schemas.ActionExecuteScript: "execute_script",
	}
	require.Len(t, schemas.AllActionTypes, len(expected), "closed action set changed size")
	for _, at := range schemas.AllActionTypes {
		assert.Equal(t, expected[at], string(at))
	}
}

func TestActionStepValidate(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		step    schemas.ActionStep
		wantErr bool
	}{
		{
			name: "valid navigate",
			step: schemas.ActionStep{
				Action:     schemas.ActionNavigate,
				Parameters: map[string]any{"url": "https://example.com"},
			},
		},
		{
			name:    "navigate without url",
			step:    schemas.ActionStep{Action: schemas.ActionNavigate, Parameters: map[string]any{}},
			wantErr: true,
		},
		{
			name: "navigate with empty url",
			step: schemas.ActionStep{
				Action:     schemas.ActionNavigate,
				Parameters: map[string]any{"url": ""},
			},
			wantErr: true,
		},
		{
			name: "click by selector",
			step: schemas.ActionStep{
				Action:     schemas.ActionClick,
				Parameters: map[string]any{"selector": "#submit"},
			},
		},
		{
			name: "click by text",
			step: schemas.ActionStep{
				Action:     schemas.ActionClick,
				Parameters: map[string]any{"text": "Sign in"},
			},
		},
		{
			name:    "click without any target",
			step:    schemas.ActionStep{Action: schemas.ActionClick, Parameters: map[string]any{}},
			wantErr: true,
		},
		{
			name: "type with selector and text",
			step: schemas.ActionStep{
				Action:     schemas.ActionTypeText,
				Parameters: map[string]any{"selector": "input[name=q]", "text": "golang"},
			},
		},
		{
			name: "type without payload text",
			step: schemas.ActionStep{
				Action:     schemas.ActionTypeText,
				Parameters: map[string]any{"selector": "input[name=q]"},
			},
			wantErr: true,
		},
		{
			name: "scroll default direction",
			step: schemas.ActionStep{Action: schemas.ActionScroll, Parameters: map[string]any{}},
		},
		{
			name: "scroll invalid direction",
			step: schemas.ActionStep{
				Action:     schemas.ActionScroll,
				Parameters: map[string]any{"direction": "sideways"},
			},
			wantErr: true,
		},
		{
			name: "wait negative seconds",
			step: schemas.ActionStep{
				Action:     schemas.ActionWait,
				Parameters: map[string]any{"seconds": -1.0},
			},
			wantErr: true,
		},
		{
			name: "get_attribute without attribute name",
			step: schemas.ActionStep{
				Action:     schemas.ActionGetAttribute,
				Parameters: map[string]any{"selector": "a.main"},
			},
			wantErr: true,
		},
		{
			name: "execute_script with script",
			step: schemas.ActionStep{
				Action:     schemas.ActionExecuteScript,
				Parameters: map[string]any{"script": "return document.title"},
			},
		},
		{
			name:    "unknown action kind",
			step:    schemas.ActionStep{Action: "teleport", Parameters: map[string]any{}},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.step.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, schemas.ErrCodeSchemaValidation, schemas.CodeOf(err))
				assert.False(t, schemas.IsRetryable(err), "validation failures must not be retried")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestActionStepWireRoundTrip confirms a valid step survives serialization
// unchanged, so plans can be logged and replayed from history records.
func TestActionStepWireRoundTrip(t *testing.T) {
	t.Parallel()
	original := schemas.ActionStep{
		Action: schemas.ActionTypeText,
		Parameters: map[string]any{
			"selector": "input#search",
			"text":     "python selenium",
		},
		Description: "Enter the search query",
	}

	data, err := original.MarshalWire()
	require.NoError(t, err)

	decoded, err := schemas.UnmarshalWire(data)
	require.NoError(t, err)

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Fatalf("step changed across the wire (-want +got):\n%s", diff)
	}
}

func TestUnmarshalWireRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := schemas.UnmarshalWire([]byte(`{"action":"click","parameters":{}}`))
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeSchemaValidation, schemas.CodeOf(err))

	_, err = schemas.UnmarshalWire([]byte(`{not json`))
	require.Error(t, err)
}

func TestTaskPlanValidate(t *testing.T) {
	t.Parallel()

	empty := schemas.TaskPlan{}
	require.Error(t, empty.Validate(), "empty plans are not executable")

	plan := schemas.TaskPlan{Steps: []schemas.ActionStep{
		{Action: schemas.ActionNavigate, Parameters: map[string]any{"url": "https://example.com"}},
		{Action: schemas.ActionClick, Parameters: map[string]any{}},
	}}
	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2", "error should carry the 1-based step position")
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()
	policy := schemas.RetryPolicy{
		MaxAttempts: 4,
		BackoffBase: 500 * time.Millisecond,
		BackoffCap:  3 * time.Second,
	}
	require.NoError(t, policy.Validate())

	assert.Equal(t, 500*time.Millisecond, policy.Backoff(1))
	assert.Equal(t, 1*time.Second, policy.Backoff(2))
	assert.Equal(t, 2*time.Second, policy.Backoff(3))
	assert.Equal(t, 3*time.Second, policy.Backoff(4), "schedule is capped")
	assert.Equal(t, 3*time.Second, policy.Backoff(10), "stays at the cap")
	assert.Equal(t, 500*time.Millisecond, policy.Backoff(0), "attempts below 1 clamp to the base")

	// The schedule never decreases.
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := policy.Backoff(attempt)
		assert.GreaterOrEqual(t, d, prev, "backoff regressed at attempt %d", attempt)
		prev = d
	}

	bad := schemas.RetryPolicy{MaxAttempts: 0}
	assert.Error(t, bad.Validate())
}

func TestEngineErrorTaxonomy(t *testing.T) {
	t.Parallel()

	resErr := schemas.NewResolutionError(schemas.ElementDescriptor{Selector: "#missing"}, nil)
	assert.Equal(t, schemas.ErrCodeResolution, schemas.CodeOf(resErr))
	assert.True(t, schemas.IsRetryable(resErr))

	execErr := schemas.NewExecutionError(schemas.ActionClick, assert.AnError)
	assert.Equal(t, schemas.ErrCodeExecution, schemas.CodeOf(execErr))
	assert.True(t, schemas.IsRetryable(execErr))
	assert.ErrorIs(t, execErr, assert.AnError, "cause must stay unwrappable")

	assert.True(t, schemas.IsRetryable(schemas.NewOracleError("bad response", nil)))
	assert.True(t, schemas.IsRetryable(schemas.NewTimeoutError("page settle", nil)))

	wrapped := schemas.NewExecutionError(schemas.ActionNavigate, schemas.ErrBackendUnavailable)
	assert.ErrorIs(t, wrapped, schemas.ErrBackendUnavailable, "code-based matching through wrapping")

	assert.Equal(t, schemas.ErrorCode(""), schemas.CodeOf(assert.AnError))
	assert.False(t, schemas.IsRetryable(assert.AnError))
}

func TestStepDescriptor(t *testing.T) {
	t.Parallel()

	click := schemas.ActionStep{
		Action:     schemas.ActionClick,
		Parameters: map[string]any{"selector": "#go", "text": "Go"},
	}
	d := click.Descriptor()
	assert.Equal(t, "#go", d.Selector)
	assert.Equal(t, "Go", d.Text)

	// For type steps the text parameter is input payload, not a locator.
	typeStep := schemas.ActionStep{
		Action:     schemas.ActionTypeText,
		Parameters: map[string]any{"selector": "input", "text": "hello", "target_text": "Search box"},
	}
	d = typeStep.Descriptor()
	assert.Equal(t, "input", d.Selector)
	assert.Equal(t, "Search box", d.Text)

	assert.True(t, schemas.ElementDescriptor{}.Empty())
	assert.False(t, schemas.ElementDescriptor{Role: "button"}.Empty())
}

func TestSnapshotElementByIndex(t *testing.T) {
	t.Parallel()
	snap := &schemas.PageSnapshot{
		URL:   "https://example.com",
		Title: "Example",
		Elements: []schemas.InteractiveElement{
			{Index: 0, Tag: "a", Text: "Home", Selector: "a:nth-of-type(1)", Visible: true},
			{Index: 1, Tag: "button", Text: "Submit", Selector: "#submit", Visible: true, Clickable: true},
		},
		CollectedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}

	el, ok := snap.ElementByIndex(1)
	require.True(t, ok)
	assert.Equal(t, "#submit", el.Selector)

	_, ok = snap.ElementByIndex(7)
	assert.False(t, ok)
}

// TestHistoryEntrySerialization checks a recorded entry round-trips through
// JSON, since history is persisted as JSON lines.
func TestHistoryEntrySerialization(t *testing.T) {
	t.Parallel()
	entry := schemas.ActionHistoryEntry{
		ID:   "0b8f7f9e-0000-4000-8000-000000000001",
		Task: "search for python selenium",
		Step: schemas.ActionStep{
			Action:     schemas.ActionClick,
			Parameters: map[string]any{"selector": "#submit"},
		},
		Result: schemas.ActionResult{
			Success: true,
			Data:    map[string]any{"clicked": "#submit"},
		},
		Timestamp: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded schemas.ActionHistoryEntry
	require.NoError(t, json.Unmarshal(data, &decoded))

	if diff := cmp.Diff(entry, decoded); diff != "" {
		t.Fatalf("history entry changed across the wire (-want +got):\n%s", diff)
	}
}

func TestAssessmentNormalize(t *testing.T) {
	t.Parallel()
	a := schemas.SituationAssessment{MatchedKeywords: []string{"selenium", "python", "search"}}
	a.Normalize()
	assert.Equal(t, []string{"python", "search", "selenium"}, a.MatchedKeywords)
}
