package harness

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"code-runner-api/internal/config"
)

// shRunner builds a Runner that uses /bin/sh as the "interpreter" and
// test runner, so these tests need no Python installation. The staged file
// names keep the harness mechanics identical to the real configuration.
func shRunner(t *testing.T, modify func(*config.RunnerConfig)) *Runner {
	t.Helper()

	cfg := config.DefaultConfig().Runner
	cfg.Interpreter = []string{"/bin/sh"}
	cfg.SourceFile = "main.sh"
	cfg.SolutionFile = "solution.sh"
	cfg.TestFile = "test_solution.sh"
	cfg.TestRunner = []string{"/bin/sh", "test_solution.sh"}
	cfg.TempRoot = t.TempDir()
	if modify != nil {
		modify(&cfg)
	}
	return NewRunner(cfg)
}

func TestRun_Success(t *testing.T) {
	r := shRunner(t, nil)

	result, err := r.Run(context.Background(), RunSpec{Source: "echo hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.OK {
		t.Error("OK = false, want true")
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Stdout != "hi\n" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "hi\n")
	}
	if result.Stderr != "" {
		t.Errorf("Stderr = %q, want empty", result.Stderr)
	}
	if result.ID == "" {
		t.Error("ID is empty")
	}
}

func TestRun_ForwardsStdin(t *testing.T) {
	r := shRunner(t, nil)

	result, err := r.Run(context.Background(), RunSpec{Source: "cat", Stdin: "piped in\n"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "piped in\n" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "piped in\n")
	}
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	r := shRunner(t, nil)

	result, err := r.Run(context.Background(), RunSpec{Source: "echo boom >&2\nexit 3"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.OK {
		t.Error("OK = true, want false")
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.Stderr != "boom\n" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "boom\n")
	}
}

func TestRun_Timeout(t *testing.T) {
	r := shRunner(t, nil)

	start := time.Now()
	result, err := r.Run(context.Background(), RunSpec{
		Source:  "echo started\nsleep 30",
		Timeout: 1 * time.Second,
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != ExitCodeTimeout {
		t.Errorf("ExitCode = %d, want %d", result.ExitCode, ExitCodeTimeout)
	}
	if result.Stderr != "TIMEOUT" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "TIMEOUT")
	}
	// Partial stdout captured before the kill is preserved.
	if result.Stdout != "started\n" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "started\n")
	}
	if result.OK {
		t.Error("OK = true, want false")
	}
	// The kill must land within the grace period, not after sleep finishes.
	if elapsed > 1*time.Second+2*killGrace {
		t.Errorf("run took %s, expected return shortly after the 1s deadline", elapsed)
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	r := shRunner(t, func(cfg *config.RunnerConfig) {
		cfg.Interpreter = []string{"/nonexistent/interpreter"}
	})

	result, err := r.Run(context.Background(), RunSpec{Source: "echo hi"})
	if err != nil {
		t.Fatalf("Run: %v (launch failures must come back as results)", err)
	}

	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if !strings.HasPrefix(result.Stderr, "ERROR: ") {
		t.Errorf("Stderr = %q, want ERROR: prefix", result.Stderr)
	}
	if result.Stdout != "" {
		t.Errorf("Stdout = %q, want empty", result.Stdout)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	const limit = 50
	r := shRunner(t, func(cfg *config.RunnerConfig) {
		cfg.OutputLimitChars = limit
	})

	result, err := r.Run(context.Background(), RunSpec{
		Source: `i=0; while [ $i -lt 100 ]; do echo 0123456789; i=$((i+1)); done`,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := limit + utf8.RuneCountInString(truncationMarker)
	if got := utf8.RuneCountInString(result.Stdout); got != want {
		t.Errorf("Stdout length = %d chars, want exactly %d", got, want)
	}
	if !strings.HasSuffix(result.Stdout, truncationMarker) {
		t.Errorf("Stdout missing truncation marker: %q", result.Stdout[len(result.Stdout)-40:])
	}
}

func TestRun_SmallOutputNotTruncated(t *testing.T) {
	r := shRunner(t, nil)

	result, err := r.Run(context.Background(), RunSpec{Source: "echo short"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(result.Stdout, truncationMarker) {
		t.Errorf("marker appended to output under the ceiling: %q", result.Stdout)
	}
}

func TestRun_OversizedSourceRejected(t *testing.T) {
	r := shRunner(t, func(cfg *config.RunnerConfig) {
		cfg.MaxCodeChars = 10
	})

	_, err := r.Run(context.Background(), RunSpec{Source: strings.Repeat("x", 11)})
	if err == nil {
		t.Fatal("expected error for oversized source")
	}
	if !IsClientFault(err) {
		t.Errorf("IsClientFault(%v) = false, want true", err)
	}
}

func TestRun_CleansUpWorkspace(t *testing.T) {
	root := t.TempDir()
	r := shRunner(t, func(cfg *config.RunnerConfig) {
		cfg.TempRoot = root
	})

	sources := []string{
		"echo fine",
		"exit 7",
		"sleep 30", // killed at deadline
	}
	for _, src := range sources {
		if _, err := r.Run(context.Background(), RunSpec{Source: src, Timeout: 1 * time.Second}); err != nil {
			t.Fatalf("Run(%q): %v", src, err)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d workspaces left behind after runs returned", len(entries))
	}
}

func TestRun_Idempotent(t *testing.T) {
	r := shRunner(t, nil)
	spec := RunSpec{Source: "echo once; exit 2"}

	first, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Run(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}

	if first.Stdout != second.Stdout || first.ExitCode != second.ExitCode {
		t.Errorf("runs differ: (%q, %d) vs (%q, %d)",
			first.Stdout, first.ExitCode, second.Stdout, second.ExitCode)
	}
}

func TestRun_ConcurrentRunsAreIsolated(t *testing.T) {
	r := shRunner(t, nil)

	// Every run writes a file with the same name but its own marker, then
	// reads it back. Cross-talk between workspaces would surface as a
	// mismatched marker.
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			marker := fmt.Sprintf("marker-%d", n)
			src := fmt.Sprintf("printf '%s' > shared.txt\nsleep 1\ncat shared.txt", marker)

			result, err := r.Run(context.Background(), RunSpec{Source: src, Timeout: 5 * time.Second})
			if err != nil {
				errs <- err
				return
			}
			if result.Stdout != marker {
				errs <- fmt.Errorf("worker %d read %q, want %q", n, result.Stdout, marker)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestTest_PassAndFail(t *testing.T) {
	r := shRunner(t, nil)

	pass, err := r.Test(context.Background(), TestSpec{
		Source: "add() { echo $(($1 + $2)); }",
		Tests:  ". ./solution.sh\n[ \"$(add 1 2)\" = \"3\" ]",
	})
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if !pass.OK || pass.Summary != "tests passed" {
		t.Errorf("got OK=%v summary=%q, want passing run", pass.OK, pass.Summary)
	}

	fail, err := r.Test(context.Background(), TestSpec{
		Source: "add() { echo $(($1 + $2)); }",
		Tests:  ". ./solution.sh\n[ \"$(add 1 2)\" = \"4\" ]",
	})
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if fail.OK || fail.Summary != "tests failed" {
		t.Errorf("got OK=%v summary=%q, want failing run", fail.OK, fail.Summary)
	}
}

func TestTest_OversizedTestsRejected(t *testing.T) {
	r := shRunner(t, func(cfg *config.RunnerConfig) {
		cfg.MaxCodeChars = 10
	})

	_, err := r.Test(context.Background(), TestSpec{
		Source: "ok",
		Tests:  strings.Repeat("x", 11),
	})
	if err == nil {
		t.Fatal("expected error for oversized tests")
	}
	if !IsClientFault(err) {
		t.Errorf("IsClientFault(%v) = false, want true", err)
	}
}
