package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func sh(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

func TestExec_Stdout(t *testing.T) {
	e := &Exec{Timeout: 2 * time.Second}
	out, err := e.Run(context.Background(), sh("echo hello"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "hello\n" {
		t.Errorf("stdout = %q, want %q", out, "hello\n")
	}
}

func TestExec_NotFound(t *testing.T) {
	e := &Exec{}
	_, err := e.Run(context.Background(), Command{Name: "no-such-diagnostic-tool-xyz"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExec_NonZeroExit(t *testing.T) {
	e := &Exec{}
	_, err := e.Run(context.Background(), sh("echo boom >&2; exit 3"))
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("Code = %d, want 3", exitErr.Code)
	}
	if strings.TrimSpace(exitErr.Stderr) != "boom" {
		t.Errorf("Stderr = %q, want boom", exitErr.Stderr)
	}
}

func TestExec_StderrIsError(t *testing.T) {
	e := &Exec{}
	_, err := e.Run(context.Background(), sh("echo out; echo warn >&2"))
	var stderrErr *StderrError
	if !errors.As(err, &stderrErr) {
		t.Fatalf("err = %v, want *StderrError", err)
	}
	if strings.TrimSpace(stderrErr.Stderr) != "warn" {
		t.Errorf("Stderr = %q, want warn", stderrErr.Stderr)
	}
}

func TestExec_AllowStderr(t *testing.T) {
	e := &Exec{}
	cmd := sh("echo out; echo warn >&2")
	cmd.AllowStderr = true
	out, err := e.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "out\n" {
		t.Errorf("stdout = %q, want %q", out, "out\n")
	}
}

func TestExec_Timeout(t *testing.T) {
	e := &Exec{Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := e.Run(context.Background(), Command{Name: "sleep", Args: []string{"5"}})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Run took %s, timeout not enforced", elapsed)
	}
}

func TestExec_OutputCapped(t *testing.T) {
	e := &Exec{MaxOutputBytes: 4}
	out, err := e.Run(context.Background(), sh("echo 0123456789"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "0123" {
		t.Errorf("stdout = %q, want %q", out, "0123")
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "df", Args: []string{"-hP", "/"}}
	if c.String() != "df -hP /" {
		t.Errorf("String() = %q", c.String())
	}
	if (Command{Name: "sensors"}).String() != "sensors" {
		t.Errorf("String() without args = %q", (Command{Name: "sensors"}).String())
	}
}

// slowRunner records the highest number of overlapping Run calls.
type slowRunner struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowRunner) Run(ctx context.Context, cmd Command) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return "", nil
}

func TestLimit_CapsConcurrency(t *testing.T) {
	slow := &slowRunner{}
	r := Limit(slow, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(context.Background(), Command{Name: "sensors"}) //nolint:errcheck
		}()
	}
	wg.Wait()

	if peak := slow.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestLimit_ZeroDisables(t *testing.T) {
	slow := &slowRunner{}
	if r := Limit(slow, 0); r != Runner(slow) {
		t.Error("Limit(n=0) should return the wrapped runner")
	}
}

func TestLimit_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	blocking := runnerFunc(func(ctx context.Context, cmd Command) (string, error) {
		<-block
		return "", nil
	})
	r := Limit(blocking, 1)
	go r.Run(context.Background(), Command{Name: "sensors"}) //nolint:errcheck
	defer close(block)

	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Run(ctx, Command{Name: "sensors"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

type runnerFunc func(ctx context.Context, cmd Command) (string, error)

func (f runnerFunc) Run(ctx context.Context, cmd Command) (string, error) { return f(ctx, cmd) }

func TestFakeRunner(t *testing.T) {
	f := &FakeRunner{
		Outputs: map[string]string{"sensors": "temp1: +40.0°C\n"},
		Errors:  map[string]error{"top -bn1": ErrNotFound},
	}
	out, err := f.Run(context.Background(), Command{Name: "sensors"})
	if err != nil || out != "temp1: +40.0°C\n" {
		t.Errorf("sensors = %q, %v", out, err)
	}
	if _, err := f.Run(context.Background(), Command{Name: "top", Args: []string{"-bn1"}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("top err = %v, want ErrNotFound", err)
	}
	if f.CallCount("sensors") != 1 {
		t.Errorf("CallCount(sensors) = %d, want 1", f.CallCount("sensors"))
	}
}
