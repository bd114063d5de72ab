package schemas

import "time"

// -- Page Snapshot Schemas --

// BoundingBox is an element's viewport-relative geometry in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InteractiveElement is one actionable element found on the page. Index is
// its stable position within the snapshot it was collected into; indexes are
// not comparable across snapshots.
type InteractiveElement struct {
	Index      int               `json:"index"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Box        BoundingBox       `json:"box"`
	Visible    bool              `json:"visible"`
	Clickable  bool              `json:"clickable"`
	Selector   string            `json:"selector"`
}

// PageSnapshot is a point-in-time observation of the page. It is never
// mutated after collection; a fresh observation means a fresh snapshot.
type PageSnapshot struct {
	URL         string               `json:"url"`
	Title       string               `json:"title"`
	VisibleText string               `json:"visible_text"`
	Elements    []InteractiveElement `json:"elements"`
	CollectedAt time.Time            `json:"collected_at"`
}

// ElementByIndex returns the element at the given snapshot index, with
// ok=false when no such element exists.
func (s *PageSnapshot) ElementByIndex(idx int) (InteractiveElement, bool) {
	for _, el := range s.Elements {
		if el.Index == idx {
			return el, true
		}
	}
	return InteractiveElement{}, false
}

// ElementDescriptor carries the hints used to locate an element: a CSS
// selector, visible text, a role, attribute constraints, or any mix. At
// least one field must be populated for resolution to be attempted.
type ElementDescriptor struct {
	Selector   string            `json:"selector,omitempty"`
	Text       string            `json:"text,omitempty"`
	Role       string            `json:"role,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Empty reports whether the descriptor carries no usable hint.
func (d ElementDescriptor) Empty() bool {
	return d.Selector == "" && d.Text == "" && d.Role == "" && len(d.Attributes) == 0
}
