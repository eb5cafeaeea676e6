package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"code-runner-api/internal/config"
	"code-runner-api/internal/harness"
	"code-runner-api/internal/monitor"
)

// mockHarness implements harness.Harness for handler tests.
type mockHarness struct {
	runResult  *harness.RunResult
	testResult *harness.TestResult
	err        error
	runCalls   int
	testCalls  int
	lastRun    harness.RunSpec
	lastTest   harness.TestSpec
}

func (m *mockHarness) Run(_ context.Context, spec harness.RunSpec) (*harness.RunResult, error) {
	m.runCalls++
	m.lastRun = spec
	return m.runResult, m.err
}

func (m *mockHarness) Test(_ context.Context, spec harness.TestSpec) (*harness.TestResult, error) {
	m.testCalls++
	m.lastTest = spec
	return m.testResult, m.err
}

func newTestHandlers(mock *mockHarness) *Handlers {
	return NewHandlers(mock, config.DefaultConfig().Runner, nil, nil, monitor.NewMetrics())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandlePing(t *testing.T) {
	h := newTestHandlers(&mockHarness{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	h.HandlePing(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Message != "pong" {
		t.Errorf("got %+v, want {ok pong}", resp)
	}
}

func TestHandleRun_Success(t *testing.T) {
	mock := &mockHarness{
		runResult: &harness.RunResult{
			ID:       "test-id",
			OK:       true,
			Stdout:   "hi\n",
			ExitCode: 0,
			Duration: 150 * time.Millisecond,
		},
	}
	h := newTestHandlers(mock)

	rec := postJSON(t, h.HandleRun, "/run", RunRequest{Code: "print('hi')", TimeoutSec: 5})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp RunResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK {
		t.Error("ok = false, want true")
	}
	if resp.Stdout != "hi\n" {
		t.Errorf("stdout = %q, want %q", resp.Stdout, "hi\n")
	}
	if resp.ExitCode != 0 {
		t.Errorf("exit_code = %d, want 0", resp.ExitCode)
	}
	if mock.lastRun.Timeout != 5*time.Second {
		t.Errorf("harness got timeout %s, want 5s", mock.lastRun.Timeout)
	}
}

func TestHandleRun_DefaultTimeout(t *testing.T) {
	mock := &mockHarness{runResult: &harness.RunResult{OK: true}}
	h := newTestHandlers(mock)

	rec := postJSON(t, h.HandleRun, "/run", RunRequest{Code: "print(1)"})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if mock.lastRun.Timeout != 5*time.Second {
		t.Errorf("harness got timeout %s, want default 5s", mock.lastRun.Timeout)
	}
}

func TestHandleRun_TimeoutOutOfRange(t *testing.T) {
	mock := &mockHarness{}
	h := newTestHandlers(mock)

	for _, sec := range []int{-1, 21, 100} {
		rec := postJSON(t, h.HandleRun, "/run", RunRequest{Code: "x", TimeoutSec: sec})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("timeout_sec=%d: got status %d, want 400", sec, rec.Code)
		}
	}
	if mock.runCalls != 0 {
		t.Errorf("harness called %d times for invalid timeouts", mock.runCalls)
	}
}

func TestHandleRun_OversizedCodeRejectedBeforeHarness(t *testing.T) {
	mock := &mockHarness{}
	h := newTestHandlers(mock)

	big := strings.Repeat("a", 20_001)
	rec := postJSON(t, h.HandleRun, "/run", RunRequest{Code: big})

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want 413", rec.Code)
	}
	var resp ErrorResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Code != "CODE_TOO_LARGE" {
		t.Errorf("got code %q, want CODE_TOO_LARGE", resp.Code)
	}
	if mock.runCalls != 0 {
		t.Error("harness was called for oversized code")
	}
}

func TestHandleRun_InvalidJSON(t *testing.T) {
	h := newTestHandlers(&mockHarness{})

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestHandleRun_InfraFault(t *testing.T) {
	h := newTestHandlers(&mockHarness{
		err: &harness.HarnessError{Op: "stage", Err: errors.New("disk full")},
	})

	rec := postJSON(t, h.HandleRun, "/run", RunRequest{Code: "print(1)"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
	var resp ErrorResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Code != "INTERNAL" {
		t.Errorf("got code %q, want INTERNAL", resp.Code)
	}
}

func TestHandleRun_TimeoutResultIsNormalResponse(t *testing.T) {
	h := newTestHandlers(&mockHarness{
		runResult: &harness.RunResult{
			OK:       false,
			Stdout:   "partial",
			Stderr:   "TIMEOUT",
			ExitCode: harness.ExitCodeTimeout,
		},
	})

	rec := postJSON(t, h.HandleRun, "/run", RunRequest{Code: "while True: pass", TimeoutSec: 1})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 (timeout is not an HTTP fault)", rec.Code)
	}
	var resp RunResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.ExitCode != 124 || resp.Stderr != "TIMEOUT" || resp.OK {
		t.Errorf("got %+v, want exit 124 with TIMEOUT stderr", resp)
	}
}

func TestHandleTest_Success(t *testing.T) {
	mock := &mockHarness{
		testResult: &harness.TestResult{
			RunResult: harness.RunResult{OK: true, ExitCode: 0},
			Summary:   "tests passed",
		},
	}
	h := newTestHandlers(mock)

	rec := postJSON(t, h.HandleTest, "/test", TestRequest{
		Code:  "def add(a,b): return a+b",
		Tests: "from solution import add\ndef test_add(): assert add(1,2)==3",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var resp TestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Summary != "tests passed" {
		t.Errorf("got ok=%v summary=%q, want passing", resp.OK, resp.Summary)
	}
	if mock.testCalls != 1 {
		t.Errorf("harness Test called %d times, want 1", mock.testCalls)
	}
}

func TestHandleTest_OversizedTests(t *testing.T) {
	mock := &mockHarness{}
	h := newTestHandlers(mock)

	rec := postJSON(t, h.HandleTest, "/test", TestRequest{
		Code:  "ok",
		Tests: strings.Repeat("t", 20_001),
	})

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want 413", rec.Code)
	}
	if mock.testCalls != 0 {
		t.Error("harness was called for oversized tests")
	}
}

func TestHandleListRuns_NoDatabase(t *testing.T) {
	h := newTestHandlers(&mockHarness{})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	h.HandleListRuns(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}
