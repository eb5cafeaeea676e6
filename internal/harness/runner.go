package harness

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"code-runner-api/internal/config"
	"code-runner-api/internal/monitor"
)

// Harness executes untrusted code in a disposable workspace. The HTTP layer
// depends on this interface so handler tests can substitute a mock.
type Harness interface {
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
	Test(ctx context.Context, spec TestSpec) (*TestResult, error)
}

// Runner is the subprocess-backed Harness. Each call stages a fresh
// workspace, runs one external command against it, and tears the workspace
// down before returning. Runner keeps no state across calls and performs no
// admission control; concurrent calls share nothing but the host.
type Runner struct {
	cfg    config.RunnerConfig
	tracer *monitor.Tracer
}

// NewRunner creates a Runner from the runner configuration.
func NewRunner(cfg config.RunnerConfig) *Runner {
	return &Runner{
		cfg:    cfg,
		tracer: monitor.NewTracer(),
	}
}

// Run stages the source as a single file and executes the configured
// interpreter against it, forwarding stdin when present.
//
// The returned error is non-nil only for oversized input or a workspace
// infrastructure fault. Everything the subprocess itself does (non-zero
// exit, crash, deadline kill, failure to launch) comes back as a
// well-formed RunResult with a nil error.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	runID := uuid.New().String()

	if utf8.RuneCountInString(spec.Source) > r.cfg.MaxCodeChars {
		return nil, &HarnessError{RunID: runID, Op: "validate", Err: ErrSourceTooLarge}
	}

	ctx, span := r.tracer.StartSpan(ctx, "run",
		monitor.AttrRunID.String(runID),
		monitor.AttrMode.String("run"),
	)
	defer span.End()

	ws, err := NewWorkspace(r.cfg.TempRoot, "run", []File{
		{Name: r.cfg.SourceFile, Content: spec.Source},
	})
	if err != nil {
		return nil, &HarnessError{RunID: runID, Op: "stage", Err: err}
	}
	defer ws.Close()

	argv := append(append([]string{}, r.cfg.Interpreter...), r.cfg.SourceFile)

	result := r.execAndCollapse(ctx, runID, argv, ws.Path(), spec.Stdin, spec.Timeout, spec.Source)
	span.SetAttributes(monitor.AttrExitCode.Int(result.ExitCode))
	return result, nil
}

// Test stages the solution and its test file under the names the test
// runner's discovery expects and executes the configured test runner.
// Stdin is never forwarded in test mode.
func (r *Runner) Test(ctx context.Context, spec TestSpec) (*TestResult, error) {
	runID := uuid.New().String()

	if utf8.RuneCountInString(spec.Source) > r.cfg.MaxCodeChars {
		return nil, &HarnessError{RunID: runID, Op: "validate", Err: ErrSourceTooLarge}
	}
	if utf8.RuneCountInString(spec.Tests) > r.cfg.MaxCodeChars {
		return nil, &HarnessError{RunID: runID, Op: "validate", Err: ErrTestsTooLarge}
	}

	ctx, span := r.tracer.StartSpan(ctx, "test",
		monitor.AttrRunID.String(runID),
		monitor.AttrMode.String("test"),
	)
	defer span.End()

	ws, err := NewWorkspace(r.cfg.TempRoot, "test", []File{
		{Name: r.cfg.SolutionFile, Content: spec.Source},
		{Name: r.cfg.TestFile, Content: spec.Tests},
	})
	if err != nil {
		return nil, &HarnessError{RunID: runID, Op: "stage", Err: err}
	}
	defer ws.Close()

	argv := append([]string{}, r.cfg.TestRunner...)

	result := r.execAndCollapse(ctx, runID, argv, ws.Path(), "", spec.Timeout, spec.Source)
	span.SetAttributes(monitor.AttrExitCode.Int(result.ExitCode))

	summary := "tests failed"
	if result.OK {
		summary = "tests passed"
	}

	return &TestResult{RunResult: *result, Summary: summary}, nil
}

func (r *Runner) execAndCollapse(ctx context.Context, runID string, argv []string, dir, stdin string, timeout time.Duration, source string) *RunResult {
	if timeout <= 0 {
		timeout = time.Duration(r.cfg.DefaultTimeoutSec) * time.Second
	}

	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(source)))

	logger := log.With().
		Str("run_id", runID).
		Str("code_hash", codeHash[:16]).
		Logger()

	start := time.Now()
	outcome := execute(ctx, argv, dir, stdin, timeout)
	duration := time.Since(start)

	exitCode, stdout, stderr := collapse(outcome, r.cfg.OutputLimitChars)

	switch outcome.kind {
	case outcomeTimedOut:
		logger.Info().Dur("timeout", timeout).Dur("duration", duration).Msg("run killed at deadline")
	case outcomeLaunchFailed:
		logger.Error().Err(outcome.launchErr).Msg("subprocess failed to launch")
	default:
		logger.Info().Int("exit_code", exitCode).Dur("duration", duration).Msg("run completed")
	}

	return &RunResult{
		ID:       runID,
		OK:       exitCode == 0,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: duration,
		CodeHash: codeHash,
	}
}
