package domain

import "time"

// StreamUpdate is emitted to a delivery sink whenever observed response
// content grows, plus exactly once with Complete set when the response is
// judged finished.
type StreamUpdate struct {
	Anchor    AnchorID
	Content   string
	Complete  bool
	Timestamp time.Time
}

// CompletionSignal is a per-poll snapshot of the surface used to decide
// whether generation has finished. It is derived fresh on every check and
// never persisted.
type CompletionSignal struct {
	StillBusy      bool
	HasContent     bool
	InputAvailable bool
}

// Decided reports completion. InputAvailable is deliberately excluded: the
// input can be enabled while generation visibly continues, and vice versa,
// so it is logged as a corroborating diagnostic only.
func (s CompletionSignal) Decided() bool {
	return !s.StillBusy && s.HasContent
}

// FinalResult is the terminal outcome of one monitored request. Failures
// and timeouts are reported through Success/Message rather than errors so
// a delivery platform always receives something it can render.
type FinalResult struct {
	Anchor   AnchorID
	Success  bool
	Complete bool
	Content  string
	Message  string
	Elapsed  time.Duration
	Updates  int
}
