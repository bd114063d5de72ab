package schemas

import "sort"

// -- Situational Assessment Schemas --

// PageType classifies the kind of page currently loaded. The set is closed;
// anything unrecognized is PageGeneral.
type PageType string

const (
	PageLogin    PageType = "login"
	PageSearch   PageType = "search"
	PageForm     PageType = "form"
	PageCheckout PageType = "checkout"
	PageShopping PageType = "shopping"
	PageGeneral  PageType = "general"
)

// TaskIntent classifies what the task description is asking for.
type TaskIntent string

const (
	IntentNavigation   TaskIntent = "navigation"
	IntentInteraction  TaskIntent = "interaction"
	IntentInput        TaskIntent = "input"
	IntentSearch       TaskIntent = "search"
	IntentExtraction   TaskIntent = "extraction"
	IntentVerification TaskIntent = "verification"
	IntentMultiStep    TaskIntent = "multi_step"
)

// Approach is the recommended execution strategy for the task.
type Approach string

const (
	ApproachDirect      Approach = "direct"
	ApproachExploratory Approach = "exploratory"
	ApproachCautious    Approach = "cautious"
	ApproachAggressive  Approach = "aggressive"
)

// SituationAssessment is the analyzer's judgment of the current page against
// the task. It is advisory only: it never mutates page or history state, and
// assessing twice against the same snapshot yields the same result.
//
// PageType, Intent, RelevanceScore and MatchedKeywords are computed by
// deterministic rules. Approach, Obstacles, SuccessIndicators and Confidence
// come from the planning oracle; when the oracle is unreachable or returns
// unparseable output they fall back to a conservative default (cautious,
// empty sets, zero confidence).
type SituationAssessment struct {
	PageType          PageType   `json:"page_type"`
	Intent            TaskIntent `json:"intent"`
	RelevanceScore    float64    `json:"relevance_score"`
	MatchedKeywords   []string   `json:"matched_keywords,omitempty"`
	Approach          Approach   `json:"approach"`
	Obstacles         []string   `json:"obstacles,omitempty"`
	SuccessIndicators []string   `json:"success_indicators,omitempty"`
	Confidence        float64    `json:"confidence"`
}

// Normalize sorts the set-valued fields so equal assessments compare equal
// regardless of construction order.
func (a *SituationAssessment) Normalize() {
	sort.Strings(a.MatchedKeywords)
	sort.Strings(a.Obstacles)
	sort.Strings(a.SuccessIndicators)
}
