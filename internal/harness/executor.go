package harness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// ExitCodeTimeout is the reserved exit code reported when a subprocess is
// killed at its deadline. Matches the unix timeout(1) convention and is never
// produced by a real process exit observed before the deadline.
const ExitCodeTimeout = 124

// timeoutStderr replaces any partial stderr when a run is killed at its
// deadline. Partial stdout is kept; partial stderr is deliberately dropped.
const timeoutStderr = "TIMEOUT"

// truncationMarker is appended to a captured stream that was cut at the
// output ceiling.
const truncationMarker = "\n...[truncated]..."

// killGrace bounds how long we wait for output pipes to drain after the
// process is killed, so a timed-out run returns promptly even when
// grandchildren still hold the pipes open.
const killGrace = 2 * time.Second

// RunSpec describes one source execution. It is consumed exactly once.
type RunSpec struct {
	Source  string
	Stdin   string
	Timeout time.Duration
}

// TestSpec describes one solution-plus-tests execution. Stdin is never
// forwarded in test mode.
type TestSpec struct {
	Source  string
	Tests   string
	Timeout time.Duration
}

// RunResult is the uniform outcome of one harness invocation. It is
// constructed once and not mutated afterwards.
type RunResult struct {
	ID       string
	OK       bool // exit code was zero
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	CodeHash string
}

// TestResult extends RunResult with a human-readable pass/fail summary.
type TestResult struct {
	RunResult
	Summary string
}

type outcomeKind int

const (
	outcomeExited outcomeKind = iota
	outcomeTimedOut
	outcomeLaunchFailed
)

// procOutcome is the tagged result of one subprocess observation, before it
// is collapsed to the RunResult wire shape.
type procOutcome struct {
	kind      outcomeKind
	exitCode  int
	stdout    string
	stderr    string
	launchErr error
}

// execute runs argv in dir with the given deadline, feeding stdin when
// non-empty, and maps every way the subprocess can finish onto a tagged
// outcome. It never returns an error: launch failures are outcomes too.
func execute(ctx context.Context, argv []string, dir, stdin string, timeout time.Duration) procOutcome {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...) // #nosec G204 -- argv comes from server config, not request input
	cmd.Dir = dir
	cmd.Env = childEnv(os.Environ())
	cmd.WaitDelay = killGrace
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return procOutcome{
			kind:   outcomeTimedOut,
			stdout: stdoutBuf.String(),
			stderr: stderrBuf.String(),
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Never launched: executable missing, permission denied, bad dir.
			return procOutcome{kind: outcomeLaunchFailed, launchErr: err}
		}
		return procOutcome{
			kind:     outcomeExited,
			exitCode: exitErr.ExitCode(),
			stdout:   stdoutBuf.String(),
			stderr:   stderrBuf.String(),
		}
	}

	return procOutcome{
		kind:   outcomeExited,
		stdout: stdoutBuf.String(),
		stderr: stderrBuf.String(),
	}
}

// collapse converts a tagged outcome into the exit code and bounded streams
// the API reports. This is the single place the three outcome variants are
// flattened to the wire shape.
func collapse(o procOutcome, outputLimit int) (exitCode int, stdout, stderr string) {
	switch o.kind {
	case outcomeTimedOut:
		return ExitCodeTimeout, boundOutput(o.stdout, outputLimit), timeoutStderr
	case outcomeLaunchFailed:
		return 1, "", "ERROR: " + o.launchErr.Error()
	default:
		return o.exitCode, boundOutput(o.stdout, outputLimit), boundOutput(o.stderr, outputLimit)
	}
}

// boundOutput sanitizes a captured stream to valid UTF-8 and cuts it at
// limit characters, appending the truncation marker when it was cut.
func boundOutput(s string, limit int) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	return string(runes[:limit]) + truncationMarker
}
