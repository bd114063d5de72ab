// internal/engine/engine_test.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// A three step plan whose second step exhausts its retries: the task fails,
// the history holds exactly the two attempted steps, and the third step
// never runs.
func TestExecuteTask_AbortsAtFirstTerminalFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.CollectSnapshotFn = func(context.Context) (*schemas.PageSnapshot, error) {
		return searchPageSnapshot(), nil
	}
	backend.NavigateFn = func(_ context.Context, url string) error {
		if url == "https://example.com/broken" {
			return fmt.Errorf("connection refused")
		}
		return nil
	}

	oracle := &fakeOracle{
		GeneratePlanFn: func(_ context.Context, _ schemas.PlanRequest, _ int) (schemas.TaskPlan, error) {
			return schemas.TaskPlan{Steps: []schemas.ActionStep{
				{Action: schemas.ActionNavigate, Parameters: map[string]any{"url": "https://example.com"}},
				{Action: schemas.ActionNavigate, Parameters: map[string]any{"url": "https://example.com/broken"}},
				{Action: schemas.ActionScroll, Parameters: map[string]any{}},
			}}, nil
		},
	}

	e := newTestEngine(t, backend, oracle)
	e.recover.sleep = noSleep

	result, err := e.ExecuteTask(context.Background(), "visit both pages and scroll")

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "step 2")

	history := e.ActionHistory()
	require.Len(t, history, 2, "the aborted third step must not be recorded")
	assert.True(t, history[0].Result.Success)
	assert.False(t, history[1].Result.Success)
	assert.NotContains(t, backend.callLog(), "Scroll:600", "step 3 must never execute")
}

func TestExecuteTask_SuccessAggregatesSteps(t *testing.T) {
	backend := newFakeBackend()
	backend.CollectSnapshotFn = func(context.Context) (*schemas.PageSnapshot, error) {
		return searchPageSnapshot(), nil
	}
	backend.FindFn = func(_ context.Context, selector string) (schemas.ElementHandle, error) {
		return schemas.ElementHandle{Selector: selector}, nil
	}
	backend.TextFn = func(context.Context, schemas.ElementHandle) (string, error) {
		return "Example Domain", nil
	}

	oracle := &fakeOracle{
		GeneratePlanFn: func(_ context.Context, _ schemas.PlanRequest, _ int) (schemas.TaskPlan, error) {
			return schemas.TaskPlan{Steps: []schemas.ActionStep{
				{Action: schemas.ActionNavigate, Parameters: map[string]any{"url": "https://example.com"}},
				{Action: schemas.ActionGetText, Parameters: map[string]any{"selector": "h1"}},
			}}, nil
		},
	}

	e := newTestEngine(t, backend, oracle)
	result, err := e.ExecuteTask(context.Background(), "open example.com and read the heading")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.Equal(t, "Example Domain", result.Data["text"])
	assert.Len(t, e.ActionHistory(), 2)
}

// When the oracle never yields a usable plan the diagnostic fallback runs
// and the task is still reported as failed.
func TestExecuteTask_OracleExhaustionReportsFailure(t *testing.T) {
	backend := newFakeBackend()
	oracle := &fakeOracle{} // GeneratePlan always returns an oracle error

	e := newTestEngine(t, backend, oracle)
	e.plan.sleep = noSleep

	result, err := e.ExecuteTask(context.Background(), "do the impossible")

	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeOracle, schemas.CodeOf(err))
	assert.False(t, result.Success, "a diagnostic fallback run must not look like success")

	// The fallback screenshot step still executed and was recorded.
	history := e.ActionHistory()
	require.Len(t, history, 1)
	assert.Equal(t, schemas.ActionScreenshot, history[0].Step.Action)
	assert.True(t, history[0].Result.Success)
}

func TestExecuteTask_BackendDownFailsFast(t *testing.T) {
	backend := newFakeBackend()
	backend.running = false
	oracle := &fakeOracle{}

	e := newTestEngine(t, backend, oracle)
	result, err := e.ExecuteTask(context.Background(), "anything")

	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrBackendUnavailable)
	assert.False(t, result.Success)
	assert.Equal(t, 0, oracle.planCallCount(), "no planning without a page snapshot")
	assert.Empty(t, e.ActionHistory())
}

func TestExecuteTask_EmptyDescriptionRejected(t *testing.T) {
	e := newTestEngine(t, newFakeBackend(), &fakeOracle{})

	result, err := e.ExecuteTask(context.Background(), "   ")

	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeSchemaValidation, schemas.CodeOf(err))
	assert.False(t, result.Success)
}

// Two tasks submitted concurrently must serialize: the browser session is
// single-user.
func TestExecuteTask_SingleTaskAtATime(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32

	backend := newFakeBackend()
	backend.CollectSnapshotFn = func(context.Context) (*schemas.PageSnapshot, error) {
		return searchPageSnapshot(), nil
	}
	backend.NavigateFn = func(context.Context, string) error {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	oracle := &fakeOracle{
		GeneratePlanFn: func(_ context.Context, _ schemas.PlanRequest, _ int) (schemas.TaskPlan, error) {
			return schemas.TaskPlan{Steps: []schemas.ActionStep{
				{Action: schemas.ActionNavigate, Parameters: map[string]any{"url": "https://example.com"}},
			}}, nil
		},
	}

	e := newTestEngine(t, backend, oracle)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ExecuteTask(context.Background(), "open example.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load(), "tasks must never overlap on the session")
	assert.Len(t, e.ActionHistory(), 4)
}

func TestAnalyzeSituation_DoesNotExecute(t *testing.T) {
	backend := newFakeBackend()
	backend.CollectSnapshotFn = func(context.Context) (*schemas.PageSnapshot, error) {
		return searchPageSnapshot(), nil
	}
	oracle := &fakeOracle{}

	e := newTestEngine(t, backend, oracle)
	got, err := e.AnalyzeSituation(context.Background(), "search for python selenium")

	require.NoError(t, err)
	assert.Equal(t, schemas.PageSearch, got.PageType)
	assert.Equal(t, 1.0, got.RelevanceScore)
	assert.Equal(t, 0, oracle.planCallCount())
	assert.Empty(t, e.ActionHistory())
	for _, call := range backend.callLog() {
		assert.NotContains(t, call, "Click")
		assert.NotContains(t, call, "Navigate")
	}
}

func TestCondenseSnapshot_BoundsAndPrioritizes(t *testing.T) {
	snap := &schemas.PageSnapshot{}
	for i := 0; i < 100; i++ {
		el := schemas.InteractiveElement{
			Index:    i,
			Tag:      "a",
			Text:     fmt.Sprintf("link %d", i),
			Selector: fmt.Sprintf("#link-%d", i),
			Visible:  true,
		}
		el.Clickable = i%2 == 0
		if i == 99 {
			el.Text = "checkout now"
			el.Clickable = true
		}
		snap.Elements = append(snap.Elements, el)
	}

	assessment := schemas.SituationAssessment{MatchedKeywords: []string{"checkout"}}
	condensed := condenseSnapshot(snap, assessment)

	require.NotNil(t, condensed)
	assert.Len(t, condensed.Elements, maxPlanElements)
	assert.Equal(t, "checkout now", condensed.Elements[0].Text,
		"keyword-matched clickable elements come first")
	assert.Len(t, snap.Elements, 100, "the original snapshot is untouched")
}
