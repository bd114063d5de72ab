package schemas

import "time"

// -- History Schemas --

// ActionHistoryEntry is one executed step and its outcome, recorded in
// execution order. Entries are immutable once recorded.
type ActionHistoryEntry struct {
	ID        string       `json:"id"`
	Task      string       `json:"task"`
	Step      ActionStep   `json:"step"`
	Result    ActionResult `json:"result"`
	Timestamp time.Time    `json:"timestamp"`
}
