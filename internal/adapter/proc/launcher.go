// Package proc implements the launcher port using os/exec. It starts agent
// processes, captures their stdout/stderr line streams, and reports exit
// asynchronously.
package proc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/Strob0t/AgentForge/internal/port/launcher"
)

// Launcher starts OS processes for agent instances.
type Launcher struct{}

// New creates a process launcher.
func New() *Launcher {
	return &Launcher{}
}

// Launch starts the process described by spec. Stdout and stderr are scanned
// line by line and forwarded to the spec's output callback and the logger.
// The context bounds only the launch itself; the running process is managed
// through the returned handle.
func (l *Launcher) Launch(_ context.Context, spec launcher.Spec) (launcher.Process, error) {
	if spec.Executable == "" {
		return nil, fmt.Errorf("launch: executable is required")
	}
	if _, err := exec.LookPath(spec.Executable); err != nil {
		return nil, fmt.Errorf("launch: executable not found: %s", spec.Executable)
	}

	cmd := exec.Command(spec.Executable, spec.Args...) //nolint:gosec // executable comes from a registered template
	cmd.Dir = spec.WorkDir
	cmd.Env = mergedEnv(spec.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("launch: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("launch: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch: start %s: %w", spec.Executable, err)
	}

	p := &process{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	var scanners sync.WaitGroup
	scanners.Add(2)
	go p.scan("stdout", stdout, spec.OnOutput, &scanners)
	go p.scan("stderr", stderr, spec.OnOutput, &scanners)

	// Reap the process once both streams are drained.
	go func() {
		scanners.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// mergedEnv overlays spec env vars onto the parent environment.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// process is a live handle to a launched agent process.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (p *process) scan(stream string, r io.Reader, onOutput func(string, string), wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		slog.Debug("agent output", "stream", stream, "line", line)
		if onOutput != nil {
			onOutput(stream, line)
		}
	}
}

// PID returns the OS process ID.
func (p *process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Running reports whether the process has not yet exited.
func (p *process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Terminate sends SIGTERM for a graceful stop.
func (p *process) Terminate() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("terminate: process not started")
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("terminate pid %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

// Kill forcibly ends the process.
func (p *process) Kill() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("kill: process not started")
	}
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill pid %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

// Done is closed when the process has exited and its streams are drained.
func (p *process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the exit error recorded when the process ended.
func (p *process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}
