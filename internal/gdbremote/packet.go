package gdbremote

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol bytes.
const (
	// Ack is written by a receiver after it recognises a complete frame.
	Ack byte = '+'
	// Nak asks the sender to retransmit its last frame.
	Nak byte = '-'

	frameStart    byte = '$'
	checksumStart byte = '#'
)

// Handshake commands sent after the launch argument.
const (
	// ThreadCommand selects any thread for subsequent step/continue operations.
	ThreadCommand = "Hc0"
	// ContinueCommand starts execution of the inferior.
	ContinueCommand = "c"
)

// Checksum returns the two-digit uppercase hex checksum of payload:
// the sum of its byte values modulo 256.
func Checksum(payload string) string {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return fmt.Sprintf("%02X", sum)
}

// Frame wraps command as "$command#XX".
func Frame(command string) string {
	var b strings.Builder
	b.Grow(len(command) + 4)
	b.WriteByte(frameStart)
	b.WriteString(command)
	b.WriteByte(checksumStart)
	b.WriteString(Checksum(command))
	return b.String()
}

// EncodePath maps every byte of path to its two-digit uppercase hex code.
func EncodePath(path string) string {
	return fmt.Sprintf("%X", path)
}

// LaunchCommand builds the "A" packet setting argument 0 to the
// on-device executable path.
func LaunchCommand(path string) string {
	encoded := EncodePath(path)
	return "A" + strconv.Itoa(len(encoded)) + ",0," + encoded
}

// parseHexByte parses two hex digits at the start of s.
func parseHexByte(s string) (int, bool) {
	if len(s) < 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(s[:2], 16, 8)
	if err != nil {
		return 0, false
	}
	return int(v), true
}
