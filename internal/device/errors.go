package device

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced to callers unchanged.
var (
	// ErrPackageListUnavailable indicates the installer utility could not list packages.
	ErrPackageListUnavailable = errors.New("package list unavailable")

	// ErrPackageListFormat indicates the package list could not be parsed.
	ErrPackageListFormat = errors.New("package list format error")

	// ErrPackageNotInstalled indicates the requested package is not on the device.
	ErrPackageNotInstalled = errors.New("package not installed")

	// ErrNoDeviceAttached indicates no (matching) device is connected.
	ErrNoDeviceAttached = errors.New("no device attached")

	// ErrMountingDiskImage indicates the developer disk image could not be mounted.
	ErrMountingDiskImage = errors.New("error mounting developer disk image")

	// ErrGetDeviceInfo indicates a device property could not be read.
	ErrGetDeviceInfo = errors.New("failed to get device info")

	// ErrFindDeveloperDiskImage indicates no usable developer disk image was found.
	ErrFindDeveloperDiskImage = errors.New("failed to find developer disk image")
)

// ToolError records a failed invocation of an external utility.
type ToolError struct {
	// Kind is the sentinel describing the failed operation.
	Kind error
	// Command is the command line that was run.
	Command []string
	// ExitCode is the exit status, or -1 if the tool did not run.
	ExitCode int
	// Output is the trimmed combined output.
	Output string
	// Err is the underlying start error, if any.
	Err error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	cmd := strings.Join(e.Command, " ")
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, cmd, e.Err)
	case e.Output != "":
		return fmt.Sprintf("%v: %s exited %d: %s", e.Kind, cmd, e.ExitCode, firstLine(e.Output))
	default:
		return fmt.Sprintf("%v: %s exited %d", e.Kind, cmd, e.ExitCode)
	}
}

// Unwrap exposes both the kind and the underlying error.
func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
