package storage

import "time"

// Run represents a stored run record.
type Run struct {
	ID          string     `json:"id" db:"id"`
	Mode        string     `json:"mode" db:"mode"` // run, test
	CodeHash    string     `json:"code_hash" db:"code_hash"`
	ExitCode    int        `json:"exit_code" db:"exit_code"`
	Stdout      string     `json:"stdout" db:"stdout"`
	Stderr      string     `json:"stderr" db:"stderr"`
	DurationMS  int64      `json:"duration_ms" db:"duration_ms"`
	Status      string     `json:"status" db:"status"` // success, failure, timeout
	RequestIP   string     `json:"request_ip" db:"request_ip"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunFilter provides criteria for querying runs.
type RunFilter struct {
	Mode   string
	Status string
	Limit  int
	Offset int
}
