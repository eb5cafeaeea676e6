package api

// RunRequest asks the server to execute source code.
type RunRequest struct {
	Code       string `json:"code"`
	Stdin      string `json:"stdin,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// RunResponse reports the outcome of one execution.
type RunResponse struct {
	OK       bool   `json:"ok"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// TestRequest asks the server to run a test suite against a solution.
type TestRequest struct {
	Code       string `json:"code"`
	Tests      string `json:"tests"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// TestResponse reports the outcome of one test run.
type TestResponse struct {
	OK       bool   `json:"ok"`
	Summary  string `json:"summary"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// PingResponse is returned by the ping endpoint.
type PingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Uptime   string `json:"uptime"`
}
