// internal/engine/helper_test.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// fakeBackend is a scriptable schemas.Backend. Each method delegates to an
// optional function field and records the call, so tests can both drive
// scenarios and assert strategy order. Unscripted methods fail.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	running bool

	NavigateFn        func(ctx context.Context, url string) error
	CollectSnapshotFn func(ctx context.Context) (*schemas.PageSnapshot, error)
	FindFn            func(ctx context.Context, selector string) (schemas.ElementHandle, error)
	WaitAttachedFn    func(ctx context.Context, selector string) (schemas.ElementHandle, error)
	FindByTextFn      func(ctx context.Context, text string) (schemas.ElementHandle, error)
	ClickFn           func(ctx context.Context, el schemas.ElementHandle) error
	ScrollIntoViewFn  func(ctx context.Context, el schemas.ElementHandle) error
	WaitVisibleFn     func(ctx context.Context, el schemas.ElementHandle) error
	ClickJSFn         func(ctx context.Context, el schemas.ElementHandle) error
	FocusAndEnterFn   func(ctx context.Context, el schemas.ElementHandle) error
	ForceClickFn      func(ctx context.Context, el schemas.ElementHandle) error
	TypeTextFn        func(ctx context.Context, el schemas.ElementHandle, text string) error
	TextFn            func(ctx context.Context, el schemas.ElementHandle) (string, error)
	AttributeFn       func(ctx context.Context, el schemas.ElementHandle, name string) (string, bool, error)
	ScrollFn          func(ctx context.Context, deltaY float64) error
	ScreenshotFn      func(ctx context.Context, path string) error
	EvaluateScriptFn  func(ctx context.Context, script string, out any) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{running: true}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBackend) Navigate(ctx context.Context, url string) error {
	f.record("Navigate:" + url)
	if f.NavigateFn != nil {
		return f.NavigateFn(ctx, url)
	}
	return nil
}

func (f *fakeBackend) CurrentURL(ctx context.Context) (string, error) { return "", nil }
func (f *fakeBackend) Title(ctx context.Context) (string, error)     { return "", nil }

func (f *fakeBackend) CollectSnapshot(ctx context.Context) (*schemas.PageSnapshot, error) {
	f.record("CollectSnapshot")
	if f.CollectSnapshotFn != nil {
		return f.CollectSnapshotFn(ctx)
	}
	return &schemas.PageSnapshot{URL: "https://example.com", CollectedAt: time.Now()}, nil
}

func (f *fakeBackend) Find(ctx context.Context, selector string) (schemas.ElementHandle, error) {
	f.record("Find:" + selector)
	if f.FindFn != nil {
		return f.FindFn(ctx, selector)
	}
	return schemas.ElementHandle{}, fmt.Errorf("not scripted: Find(%s)", selector)
}

func (f *fakeBackend) WaitAttached(ctx context.Context, selector string) (schemas.ElementHandle, error) {
	f.record("WaitAttached:" + selector)
	if f.WaitAttachedFn != nil {
		return f.WaitAttachedFn(ctx, selector)
	}
	return schemas.ElementHandle{}, fmt.Errorf("not scripted: WaitAttached(%s)", selector)
}

func (f *fakeBackend) FindByText(ctx context.Context, text string) (schemas.ElementHandle, error) {
	f.record("FindByText:" + text)
	if f.FindByTextFn != nil {
		return f.FindByTextFn(ctx, text)
	}
	return schemas.ElementHandle{}, fmt.Errorf("not scripted: FindByText(%s)", text)
}

func (f *fakeBackend) Click(ctx context.Context, el schemas.ElementHandle) error {
	f.record("Click:" + el.Selector)
	if f.ClickFn != nil {
		return f.ClickFn(ctx, el)
	}
	return nil
}

func (f *fakeBackend) ScrollIntoView(ctx context.Context, el schemas.ElementHandle) error {
	f.record("ScrollIntoView:" + el.Selector)
	if f.ScrollIntoViewFn != nil {
		return f.ScrollIntoViewFn(ctx, el)
	}
	return nil
}

func (f *fakeBackend) WaitVisible(ctx context.Context, el schemas.ElementHandle) error {
	f.record("WaitVisible:" + el.Selector)
	if f.WaitVisibleFn != nil {
		return f.WaitVisibleFn(ctx, el)
	}
	return nil
}

func (f *fakeBackend) ClickJS(ctx context.Context, el schemas.ElementHandle) error {
	f.record("ClickJS:" + el.Selector)
	if f.ClickJSFn != nil {
		return f.ClickJSFn(ctx, el)
	}
	return nil
}

func (f *fakeBackend) FocusAndEnter(ctx context.Context, el schemas.ElementHandle) error {
	f.record("FocusAndEnter:" + el.Selector)
	if f.FocusAndEnterFn != nil {
		return f.FocusAndEnterFn(ctx, el)
	}
	return nil
}

func (f *fakeBackend) ForceClick(ctx context.Context, el schemas.ElementHandle) error {
	f.record("ForceClick:" + el.Selector)
	if f.ForceClickFn != nil {
		return f.ForceClickFn(ctx, el)
	}
	return nil
}

func (f *fakeBackend) TypeText(ctx context.Context, el schemas.ElementHandle, text string) error {
	f.record("TypeText:" + el.Selector)
	if f.TypeTextFn != nil {
		return f.TypeTextFn(ctx, el, text)
	}
	return nil
}

func (f *fakeBackend) Text(ctx context.Context, el schemas.ElementHandle) (string, error) {
	f.record("Text:" + el.Selector)
	if f.TextFn != nil {
		return f.TextFn(ctx, el)
	}
	return "", nil
}

func (f *fakeBackend) Attribute(ctx context.Context, el schemas.ElementHandle, name string) (string, bool, error) {
	f.record("Attribute:" + name)
	if f.AttributeFn != nil {
		return f.AttributeFn(ctx, el, name)
	}
	return "", false, nil
}

func (f *fakeBackend) Scroll(ctx context.Context, deltaY float64) error {
	f.record(fmt.Sprintf("Scroll:%.0f", deltaY))
	if f.ScrollFn != nil {
		return f.ScrollFn(ctx, deltaY)
	}
	return nil
}

func (f *fakeBackend) Screenshot(ctx context.Context, path string) error {
	f.record("Screenshot")
	if f.ScreenshotFn != nil {
		return f.ScreenshotFn(ctx, path)
	}
	return nil
}

func (f *fakeBackend) EvaluateScript(ctx context.Context, script string, out any) error {
	f.record("EvaluateScript")
	if f.EvaluateScriptFn != nil {
		return f.EvaluateScriptFn(ctx, script, out)
	}
	return nil
}

func (f *fakeBackend) Running() bool { return f.running }
func (f *fakeBackend) Close() error  { f.running = false; return nil }

// fakeOracle scripts plan and assessment responses.
type fakeOracle struct {
	mu             sync.Mutex
	planCalls      int
	GeneratePlanFn func(ctx context.Context, req schemas.PlanRequest, call int) (schemas.TaskPlan, error)
	AssessFn       func(ctx context.Context, req schemas.AssessRequest) (schemas.OracleAssessment, error)
}

func (f *fakeOracle) GeneratePlan(ctx context.Context, req schemas.PlanRequest) (schemas.TaskPlan, error) {
	f.mu.Lock()
	f.planCalls++
	call := f.planCalls
	f.mu.Unlock()
	if f.GeneratePlanFn != nil {
		return f.GeneratePlanFn(ctx, req, call)
	}
	return schemas.TaskPlan{}, schemas.NewOracleError("not scripted", nil)
}

func (f *fakeOracle) Assess(ctx context.Context, req schemas.AssessRequest) (schemas.OracleAssessment, error) {
	if f.AssessFn != nil {
		return f.AssessFn(ctx, req)
	}
	return schemas.OracleAssessment{Approach: schemas.ApproachDirect, Confidence: 0.8}, nil
}

func (f *fakeOracle) planCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.planCalls
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Engine.BackoffBase = time.Millisecond
	cfg.Engine.BackoffCap = 5 * time.Millisecond
	cfg.Oracle.PlanBackoff = time.Millisecond
	cfg.Oracle.PlanBackoffCap = 5 * time.Millisecond
	cfg.Browser.ScreenshotDir = "" // keep artifacts out of the working dir
	return cfg
}

func newTestEngine(t *testing.T, backend schemas.Backend, oracle schemas.Oracle) *Engine {
	t.Helper()
	e := New(backend, oracle, testConfig(), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// noSleep replaces backoff waits in tests that only care about counts.
func noSleep(context.Context, time.Duration) error { return nil }
