package harness

import "github.com/roach88/authsync/internal/event"

// TraceEvent records one executed step or one published change event.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Kind   string         `json:"kind"`
	Detail map[string]any `json:"detail"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Pass   bool                `json:"pass"`
	Trace  []TraceEvent        `json:"trace"`
	Errors []string            `json:"errors,omitempty"`
	Events []event.ChangeEvent `json:"-"`
}

// NewResult returns a passing, empty result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(seq int64, kind string, detail map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Kind: kind, Detail: detail})
}
