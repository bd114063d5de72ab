package schemas

import "context"

// -- Engine Collaborator Interfaces --

// ElementHandle is an opaque reference to a live DOM node held by the
// backend. Handles are only valid for the page state they were resolved
// against; a navigation invalidates them.
type ElementHandle struct {
	// Selector is the locator the backend used to pin the node. Backends
	// re-evaluate it for operations that need a fresh node reference.
	Selector string `json:"selector"`
	// NodeID is the backend-internal node identifier, when the backend
	// exposes one. Zero means the handle is selector-only.
	NodeID int64 `json:"node_id,omitempty"`
}

// Backend is the browser automation surface the engine drives. All methods
// honor context cancellation; a backend that is not running returns
// ErrBackendUnavailable from every method.
type Backend interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the URL of the active page.
	CurrentURL(ctx context.Context) (string, error)
	// Title returns the document title of the active page.
	Title(ctx context.Context) (string, error)
	// CollectSnapshot observes the active page: URL, title, visible text and
	// interactive elements with stable indexes.
	CollectSnapshot(ctx context.Context) (*PageSnapshot, error)

	// Find locates an element matching the selector without waiting. Only
	// visible elements match.
	Find(ctx context.Context, selector string) (ElementHandle, error)
	// WaitAttached waits up to the context deadline for an element matching
	// the selector to be attached to the DOM, visible or not.
	WaitAttached(ctx context.Context, selector string) (ElementHandle, error)
	// FindByText locates a visible element whose trimmed text equals the
	// given string exactly.
	FindByText(ctx context.Context, text string) (ElementHandle, error)

	// Click dispatches a native click on the element.
	Click(ctx context.Context, el ElementHandle) error
	// ScrollIntoView scrolls the element into the viewport.
	ScrollIntoView(ctx context.Context, el ElementHandle) error
	// WaitVisible waits up to the context deadline for the element to become
	// visible.
	WaitVisible(ctx context.Context, el ElementHandle) error
	// ClickJS clicks the element via script injection, bypassing hit testing.
	ClickJS(ctx context.Context, el ElementHandle) error
	// FocusAndEnter focuses the element and sends an Enter keypress.
	FocusAndEnter(ctx context.Context, el ElementHandle) error
	// ForceClick dispatches a synthesized click event directly on the node,
	// ignoring visibility and overlays.
	ForceClick(ctx context.Context, el ElementHandle) error

	// TypeText clears the element and types the given text into it.
	TypeText(ctx context.Context, el ElementHandle, text string) error
	// Text returns the element's visible text content.
	Text(ctx context.Context, el ElementHandle) (string, error)
	// Attribute returns the value of the named attribute, with ok=false when
	// the attribute is absent.
	Attribute(ctx context.Context, el ElementHandle, name string) (value string, ok bool, err error)

	// Scroll scrolls the viewport by the given pixel delta; positive is down.
	Scroll(ctx context.Context, deltaY float64) error
	// Screenshot captures the viewport and writes it to path.
	Screenshot(ctx context.Context, path string) error
	// EvaluateScript runs the script in the page and returns its JSON result.
	EvaluateScript(ctx context.Context, script string, out any) error

	// Running reports whether the backend has a live browser session.
	Running() bool
	// Close tears down the browser session. Safe to call more than once.
	Close() error
}

// PlanRequest carries everything the planning oracle needs to produce a
// step sequence for a task.
type PlanRequest struct {
	Task       string               `json:"task"`
	Snapshot   *PageSnapshot        `json:"snapshot,omitempty"`
	Assessment *SituationAssessment `json:"assessment,omitempty"`
	History    []ActionHistoryEntry `json:"history,omitempty"`
}

// AssessRequest asks the oracle for a semantic judgment of the page against
// the task. The deterministic page type, intent and relevance are passed in
// as structured context; the oracle never recomputes them.
type AssessRequest struct {
	Task      string        `json:"task"`
	Snapshot  *PageSnapshot `json:"snapshot"`
	PageType  PageType      `json:"page_type"`
	Intent    TaskIntent    `json:"intent"`
	Relevance float64       `json:"relevance"`
}

// OracleAssessment is the oracle's advisory reading of the situation:
// obstacle prediction, success indicators, recommended approach and its
// confidence in them. The deterministic analyzer remains the source of truth
// for page type, intent and relevance.
type OracleAssessment struct {
	Approach          Approach `json:"approach"`
	Obstacles         []string `json:"obstacles,omitempty"`
	SuccessIndicators []string `json:"success_indicators,omitempty"`
	Confidence        float64  `json:"confidence"`
}

// Oracle is the planning intelligence behind the engine. Implementations
// translate task descriptions and page observations into validated plans.
// A response that cannot be parsed into the plan schema is an OracleError;
// the oracle never silently repairs malformed output.
type Oracle interface {
	// GeneratePlan produces an ordered step sequence for the task. Every
	// returned step has passed schema validation.
	GeneratePlan(ctx context.Context, req PlanRequest) (TaskPlan, error)
	// Assess produces a semantic judgment of the current page.
	Assess(ctx context.Context, req AssessRequest) (OracleAssessment, error)
}
