// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrTemplateNotFound indicates the referenced agent template is not registered.
var ErrTemplateNotFound = errors.New("template not found")

// ErrAgentNotFound indicates the referenced agent instance does not exist.
var ErrAgentNotFound = errors.New("agent not found")

// ErrInvalidTransition indicates a requested status change is not a legal
// state machine edge.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrAgentLimitExceeded indicates a spawn request would exceed the configured
// maximum number of agents. The whole request is rejected before any process
// is started.
var ErrAgentLimitExceeded = errors.New("agent limit exceeded")

// ErrSpawnTimeout indicates an agent process started but did not signal
// readiness within the spawn timeout.
var ErrSpawnTimeout = errors.New("spawn timed out waiting for readiness")

// ErrShutdownTimeout indicates a graceful termination did not complete within
// the shutdown timeout; a forced kill follows.
var ErrShutdownTimeout = errors.New("graceful shutdown timed out")

// ErrProcessLaunch indicates the OS process could not be started.
var ErrProcessLaunch = errors.New("process launch failed")

// ErrUnexpectedExit indicates an agent process exited without a preceding
// termination request.
var ErrUnexpectedExit = errors.New("unexpected process exit")

// ErrRecoveryFailed indicates a recovery attempt could not restore an agent
// to a servable state.
var ErrRecoveryFailed = errors.New("recovery failed")

// ErrQuarantined indicates recovery is suspended for an agent after repeated
// failed attempts.
var ErrQuarantined = errors.New("agent is quarantined")
