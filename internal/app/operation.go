package app

import "time"

// Operation tracks one CLI command for logging. Its ID tags every log
// line written while the command runs.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
	Status  string // "success" or "error"
	Err     error
}

// NewOperation creates an operation started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:      now.UTC().Format("20060102T150405Z"),
		Name:    name,
		Started: now,
		Status:  "success",
	}
}

// Fail marks the operation as failed. The first error is kept.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = "error"
	if op.Err == nil {
		op.Err = err
	}
}

// Failed reports whether Fail was called with an error.
func (op *Operation) Failed() bool {
	return op.Err != nil
}
