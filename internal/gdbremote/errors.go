package gdbremote

import (
	"errors"
	"fmt"
)

// Sentinel errors for the gdbremote package.
var (
	// ErrLaunchFailed is returned when the debug server reports an error
	// or closes the connection before the process is running.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrLaunchTimeout is returned when a handshake step gets no reply in time.
	ErrLaunchTimeout = errors.New("launch timed out")

	// ErrAlreadyLaunched is returned by a second call to Launch.
	ErrAlreadyLaunched = errors.New("launch already started")

	// ErrClientClosed is returned when the client has shut down.
	ErrClientClosed = errors.New("client closed")
)

// StepError records which handshake step failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ProtocolError carries the code of an "Exx" reply.
// It unwraps to ErrLaunchFailed; the code is informational only.
type ProtocolError struct {
	Code int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("debug server error E%02X: %v", e.Code, ErrLaunchFailed)
}

func (e *ProtocolError) Unwrap() error {
	return ErrLaunchFailed
}
