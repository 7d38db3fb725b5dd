package runstate

import "sync"

// Ledger accumulates token and cost counters across a run. Loop and parallel
// iterations share their parent's ledger, so subflow model calls bill the
// run as a whole.
type Ledger struct {
	mu               sync.Mutex
	promptTokens     int64
	completionTokens int64
	cost             float64
}

// LedgerSnapshot is a point-in-time copy of the counters.
type LedgerSnapshot struct {
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	Cost             float64 `json:"cost"`
}

// AddTokens records prompt and completion token usage.
func (l *Ledger) AddTokens(prompt, completion int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.promptTokens += prompt
	l.completionTokens += completion
}

// AddCost records a monetary cost increment.
func (l *Ledger) AddCost(cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cost += cost
}

// Snapshot returns a copy of the current counters.
func (l *Ledger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerSnapshot{
		PromptTokens:     l.promptTokens,
		CompletionTokens: l.completionTokens,
		TotalTokens:      l.promptTokens + l.completionTokens,
		Cost:             l.cost,
	}
}
