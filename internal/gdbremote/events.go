package gdbremote

import "fmt"

// Step is the position of the client in the launch handshake.
type Step int32

const (
	// StepAwaitingLaunchAck waits for OK to the "A" argument packet.
	StepAwaitingLaunchAck Step = iota
	// StepAwaitingThreadAck waits for OK to "Hc0".
	StepAwaitingThreadAck
	// StepAwaitingContinueAck waits for the first output after "c".
	StepAwaitingContinueAck
	// StepMonitoring observes the running process.
	StepMonitoring
	// StepFailed is terminal: the handshake did not complete.
	StepFailed
	// StepTerminated is terminal: the connection ended after monitoring.
	StepTerminated
)

// handshakeSteps is the number of steps that carry a result cell.
const handshakeSteps = 3

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepAwaitingLaunchAck:
		return "awaiting launch ack"
	case StepAwaitingThreadAck:
		return "awaiting thread ack"
	case StepAwaitingContinueAck:
		return "awaiting continue ack"
	case StepMonitoring:
		return "monitoring"
	case StepFailed:
		return "failed"
	case StepTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("step(%d)", int32(s))
	}
}

// Terminal reports whether s is absorbing.
func (s Step) Terminal() bool {
	return s == StepFailed || s == StepTerminated
}

// awaiting reports whether s is one of the three handshake steps.
func (s Step) awaiting() bool {
	return s >= StepAwaitingLaunchAck && s <= StepAwaitingContinueAck
}

// EventKind identifies an event surfaced to the caller.
type EventKind int

const (
	// EventOutput carries console output of the process.
	EventOutput EventKind = iota
	// EventExited reports a normal exit; Code is the status.
	EventExited
	// EventSignaled reports termination by signal; Code is the signal.
	EventSignaled
	// EventStopped reports that the process stopped; Code is the signal if known.
	EventStopped
	// EventClosed is always the last event. Err is nil on a clean end.
	EventClosed
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventOutput:
		return "output"
	case EventExited:
		return "exited"
	case EventSignaled:
		return "signaled"
	case EventStopped:
		return "stopped"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is something the monitored process or connection did.
type Event struct {
	Kind EventKind
	Code int
	Text string
	Err  error
}

// loopEventKind enumerates inputs to the client's event loop.
type loopEventKind int

const (
	loopStart loopEventKind = iota
	loopDataReceived
	loopTimeout
	loopConnectionClosed
	loopTransportError
)

type loopEvent struct {
	kind loopEventKind
	path string
	data []byte
	step Step
	err  error
}
