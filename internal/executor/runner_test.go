package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestShellRunner_Success(t *testing.T) {
	r := NewShellRunner()

	res, err := r.Run(context.Background(), CommandSpec{
		Command: "echo hello",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("expected output to contain hello, got %q", res.Output)
	}
}

func TestShellRunner_NonZeroExit(t *testing.T) {
	r := NewShellRunner()

	res, err := r.Run(context.Background(), CommandSpec{
		Command: "exit 3",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("non-zero exit is data, not an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestShellRunner_Stdin(t *testing.T) {
	r := NewShellRunner()

	res, err := r.Run(context.Background(), CommandSpec{
		Command: "cat",
		Dir:     t.TempDir(),
		Stdin:   "piped-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Output, "piped-secret") {
		t.Errorf("stdin should reach the process, got %q", res.Output)
	}
}

func TestShellRunner_Workdir(t *testing.T) {
	r := NewShellRunner()
	dir := t.TempDir()

	res, err := r.Run(context.Background(), CommandSpec{
		Command: "pwd",
		Dir:     dir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Output, dir) {
		t.Errorf("expected workdir %s, got %q", dir, res.Output)
	}
}

func TestShellRunner_Env(t *testing.T) {
	r := NewShellRunner()

	res, err := r.Run(context.Background(), CommandSpec{
		Command: "echo $CONVEYR_TEST_VAR",
		Dir:     t.TempDir(),
		Env:     []string{"PATH=/usr/bin:/bin", "CONVEYR_TEST_VAR=isolated"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Output, "isolated") {
		t.Errorf("expected env var in output, got %q", res.Output)
	}
}

func TestShellRunner_Cancellation(t *testing.T) {
	r := NewShellRunner()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *CommandResult, 1)
	go func() {
		res, _ := r.Run(ctx, CommandSpec{
			Command:     "sleep 30",
			Dir:         t.TempDir(),
			GracePeriod: time.Second,
		})
		done <- res
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		if res == nil {
			t.Fatal("expected a result after cancellation")
		}
		if !res.Cancelled {
			t.Error("result should be marked cancelled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not terminate within the grace period")
	}
}
