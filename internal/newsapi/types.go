package newsapi

import "time"

// Item is one digest-ready news entry. Title is never empty.
type Item struct {
	Title   string
	Summary string
	URL     string
	Source  string
	PageAge string
}

type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeEmpty  Outcome = "empty"
	OutcomeFailed Outcome = "failed"
)

// Result distinguishes an empty success from a failed call. Both carry no
// items; callers render them the same way and only logs and metrics differ.
type Result struct {
	Items   []Item
	Outcome Outcome
	// Strategy names the response shape the items were extracted from.
	Strategy string
	// Raw is the number of upstream items before filtering.
	Raw  int
	Err  error
	Took time.Duration
}
