package app

import "time"

// runIDFormat stamps each CLI run; the stamp tags every log line of the run.
const runIDFormat = "20060102T150405Z"

// Operation tracks one CLI command from start to Close.
type Operation struct {
	Name      string
	RunID     string
	StartedAt time.Time
	Status    string // "success" or "error"
	Err       error
}

// NewOperation creates an operation that starts now and succeeds unless
// Fail is called.
func NewOperation(name string) *Operation {
	return newOperationAt(name, time.Now().UTC())
}

func newOperationAt(name string, now time.Time) *Operation {
	return &Operation{
		Name:      name,
		RunID:     now.Format(runIDFormat),
		StartedAt: now,
		Status:    "success",
	}
}

// Fail marks the operation as failed. The first error is kept.
func (op *Operation) Fail(err error) {
	op.Status = "error"
	if op.Err == nil {
		op.Err = err
	}
}

// Failed reports whether Fail has been called.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.StartedAt).Truncate(time.Millisecond)
}
