// Package launcher defines the process launcher port (interface).
package launcher

import "context"

// Spec describes the OS process to start. Env entries overlay the parent
// environment; OnOutput, when set, receives every stdout/stderr line.
type Spec struct {
	Executable string
	Args       []string
	Env        map[string]string
	WorkDir    string
	OnOutput   func(stream, line string)
}

// Process is a handle to a launched OS process. The handle is owned
// exclusively by the orchestrator while the instance is running and released
// on termination.
type Process interface {
	// PID returns the operating system process ID.
	PID() int

	// Running reports whether the process has not yet exited.
	Running() bool

	// Terminate sends the graceful termination signal (SIGTERM).
	Terminate() error

	// Kill forcibly ends the process (SIGKILL).
	Kill() error

	// Done is closed when the process has exited.
	Done() <-chan struct{}

	// ExitErr returns the exit error after Done is closed; nil on clean exit.
	ExitErr() error
}

// Launcher is the port interface for starting agent processes.
type Launcher interface {
	// Launch starts the process described by spec. The returned Process is
	// live; exit is reported asynchronously through Done.
	Launch(ctx context.Context, spec Spec) (Process, error)
}
