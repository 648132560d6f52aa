package supervisor

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fastSupervisorConfig(command []string) Config {
	return Config{
		Command:      command,
		Timeout:      300 * time.Millisecond,
		RestartDelay: 20 * time.Millisecond,
		GracePeriod:  20 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}
}

func shellChild(script string) []string {
	return []string{"/bin/sh", "-c", script}
}

func TestRunCompletedBatchExitsClean(t *testing.T) {
	script := `echo "[1/1] A000001 -> collecting..."; echo "saved 3 rows"; exit 0`
	var out bytes.Buffer
	s := New(fastSupervisorConfig(shellChild(script)), nil, nil, nil, &out)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if s.Restarts() != 0 {
		t.Errorf("restarts = %d, want 0", s.Restarts())
	}
	if !strings.Contains(out.String(), "saved 3 rows") {
		t.Errorf("child output not passed through: %q", out.String())
	}
}

func TestRunRestartsStuckChild(t *testing.T) {
	// First child hangs mid-item; the marker file makes the second child
	// finish the batch.
	marker := filepath.Join(t.TempDir(), "second-run")
	script := `
if [ -f "` + marker + `" ]; then
  echo "[1/1] A000001 -> collecting..."
  echo "saved 5 rows"
  exit 0
fi
touch "` + marker + `"
echo "[1/1] A000001 -> collecting..."
sleep 60
`
	var out bytes.Buffer
	s := New(fastSupervisorConfig(shellChild(script)), nil, nil, nil, &out)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if s.Restarts() != 1 {
		t.Errorf("restarts = %d, want exactly 1", s.Restarts())
	}
	if !strings.Contains(out.String(), "saved 5 rows") {
		t.Errorf("second child's output missing: %q", out.String())
	}
}

func TestRunZeroExitWhileArmedRestarts(t *testing.T) {
	// A child that dies between the collecting and saved markers did not
	// finish its item, even with exit code zero.
	marker := filepath.Join(t.TempDir(), "second-run")
	script := `
if [ -f "` + marker + `" ]; then
  echo "[1/1] A000001 -> collecting..."
  echo "saved 2 rows"
  exit 0
fi
touch "` + marker + `"
echo "[1/1] A000001 -> collecting..."
exit 0
`
	s := New(fastSupervisorConfig(shellChild(script)), nil, nil, nil, &bytes.Buffer{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if s.Restarts() != 1 {
		t.Errorf("restarts = %d, want 1", s.Restarts())
	}
}

func TestRunNonZeroExitRestarts(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "second-run")
	script := `
if [ -f "` + marker + `" ]; then
  exit 0
fi
touch "` + marker + `"
echo "config error"
exit 1
`
	s := New(fastSupervisorConfig(shellChild(script)), nil, nil, nil, &bytes.Buffer{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if s.Restarts() != 1 {
		t.Errorf("restarts = %d, want 1", s.Restarts())
	}
}

func TestRunRestartLimit(t *testing.T) {
	cfg := fastSupervisorConfig(shellChild(`exit 1`))
	cfg.MaxRestarts = 2
	s := New(cfg, nil, nil, nil, &bytes.Buffer{})

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() = nil, want restart limit error")
	}
	if !strings.Contains(err.Error(), "restart limit") {
		t.Errorf("err = %v", err)
	}
	if s.Restarts() != 3 {
		t.Errorf("restarts = %d, want 3 (limit 2 exceeded)", s.Restarts())
	}
}

func TestRunCancellationKillsChild(t *testing.T) {
	s := New(fastSupervisorConfig(shellChild(`sleep 60`)), nil, nil, nil, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, child was not killed promptly", elapsed)
	}
	if s.Restarts() != 0 {
		t.Errorf("restarts = %d, cancellation must not count as a restart", s.Restarts())
	}
}
