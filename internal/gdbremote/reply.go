package gdbremote

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ReplyKind classifies a frame received from the debug server.
type ReplyKind int

const (
	// ReplyUnknown is any marker the launcher does not act on.
	ReplyUnknown ReplyKind = iota
	// ReplyOK acknowledges the last command.
	ReplyOK
	// ReplyExited reports a normal process exit ("Wxx").
	ReplyExited
	// ReplySignaled reports termination by a signal ("Xxx").
	ReplySignaled
	// ReplyStopped reports a stop, e.g. a trap ("T...").
	ReplyStopped
	// ReplyOutput carries console output from the process ("O...").
	ReplyOutput
	// ReplyError is a protocol-level error ("Exx").
	ReplyError
)

// String returns the kind name.
func (k ReplyKind) String() string {
	switch k {
	case ReplyOK:
		return "ok"
	case ReplyExited:
		return "exited"
	case ReplySignaled:
		return "signaled"
	case ReplyStopped:
		return "stopped"
	case ReplyOutput:
		return "output"
	case ReplyError:
		return "error"
	default:
		return "unknown"
	}
}

// Reply is an interpreted frame payload.
type Reply struct {
	Kind ReplyKind

	// Code is the exit status, signal number or error code.
	// -1 when the payload carried none.
	Code int

	// Data is the remainder of the payload after the marker.
	Data string
}

// Text returns the console text of an output reply. Output is hex encoded
// on the wire; payloads that do not decode are returned as is.
func (r Reply) Text() string {
	if r.Kind != ReplyOutput {
		return ""
	}
	decoded, err := hex.DecodeString(r.Data)
	if err != nil {
		return r.Data
	}
	return string(decoded)
}

// String renders the reply for logs.
func (r Reply) String() string {
	switch r.Kind {
	case ReplyExited, ReplySignaled, ReplyError:
		return fmt.Sprintf("%s(%d)", r.Kind, r.Code)
	default:
		return r.Kind.String()
	}
}

// ParseReply classifies a frame payload by its leading marker.
func ParseReply(payload string) Reply {
	if payload == "OK" {
		return Reply{Kind: ReplyOK, Code: -1}
	}
	if payload == "" {
		return Reply{Kind: ReplyUnknown, Code: -1}
	}

	rest := payload[1:]
	reply := Reply{Code: -1, Data: rest}

	switch payload[0] {
	case 'W':
		reply.Kind = ReplyExited
	case 'X':
		reply.Kind = ReplySignaled
	case 'T':
		reply.Kind = ReplyStopped
	case 'O':
		// "OK" is handled above; a bare "O" is empty output.
		reply.Kind = ReplyOutput
		return reply
	case 'E':
		reply.Kind = ReplyError
	default:
		reply.Kind = ReplyUnknown
		reply.Data = payload
		return reply
	}

	if code, ok := parseHexByte(rest); ok {
		reply.Code = code
	}
	// W and X may carry ";process:pid" after the status byte.
	if i := strings.IndexByte(rest, ';'); i >= 0 && reply.Kind != ReplyStopped {
		reply.Data = rest[i+1:]
	}
	return reply
}
