package gdbremote

import "strings"

// MaxFrameSize bounds a buffered partial frame. Longer frames are dropped.
const MaxFrameSize = 64 * 1024

// PacketKind identifies what the reassembler recognised in the stream.
type PacketKind int

const (
	// PacketAck is a '+' acknowledging our last frame.
	PacketAck PacketKind = iota
	// PacketNak is a '-' asking for retransmission.
	PacketNak
	// PacketFrame is a complete "$payload#XX" frame.
	PacketFrame
)

// String returns the kind name.
func (k PacketKind) String() string {
	switch k {
	case PacketAck:
		return "ack"
	case PacketNak:
		return "nak"
	case PacketFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Packet is one unit extracted from the inbound byte stream.
type Packet struct {
	Kind PacketKind

	// Payload is the content between '$' and '#'. Empty for acks.
	Payload string

	// Checksum is the two characters received after '#'.
	Checksum string
}

// Valid reports whether the received checksum matches the payload.
func (p Packet) Valid() bool {
	return p.Kind == PacketFrame && strings.EqualFold(p.Checksum, Checksum(p.Payload))
}

type scanState int

const (
	scanIdle scanState = iota
	scanPayload
	scanChecksum
)

// Reassembler extracts packets from a fragmented or coalesced byte stream.
// Partial frames are buffered across Feed calls until "#XX" arrives.
// A Reassembler is not safe for concurrent use; the client owns one per
// connection and feeds it from its event loop.
type Reassembler struct {
	state    scanState
	payload  []byte
	checksum []byte
	dropped  int
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed consumes chunk and returns the packets it completed, in stream order.
func (r *Reassembler) Feed(chunk []byte) []Packet {
	var out []Packet

	for _, b := range chunk {
		switch r.state {
		case scanIdle:
			switch b {
			case Ack:
				out = append(out, Packet{Kind: PacketAck})
			case Nak:
				out = append(out, Packet{Kind: PacketNak})
			case frameStart:
				r.begin()
			}
			// anything else between frames is noise

		case scanPayload:
			switch b {
			case checksumStart:
				r.state = scanChecksum
			case frameStart:
				// sender restarted the frame
				r.dropped++
				r.begin()
			default:
				if len(r.payload) >= MaxFrameSize {
					r.dropped++
					r.reset()
					continue
				}
				r.payload = append(r.payload, b)
			}

		case scanChecksum:
			if !isHexDigit(b) {
				// truncated checksum
				r.dropped++
				if b == frameStart {
					r.begin()
				} else {
					r.reset()
				}
				continue
			}
			r.checksum = append(r.checksum, b)
			if len(r.checksum) == 2 {
				out = append(out, Packet{
					Kind:     PacketFrame,
					Payload:  string(r.payload),
					Checksum: string(r.checksum),
				})
				r.reset()
			}
		}
	}

	return out
}

// Pending reports whether a partial frame is buffered.
func (r *Reassembler) Pending() bool {
	return r.state != scanIdle
}

// Dropped returns how many partial frames were discarded.
func (r *Reassembler) Dropped() int {
	return r.dropped
}

func (r *Reassembler) begin() {
	r.state = scanPayload
	r.payload = r.payload[:0]
	r.checksum = r.checksum[:0]
}

func (r *Reassembler) reset() {
	r.state = scanIdle
	r.payload = r.payload[:0]
	r.checksum = r.checksum[:0]
}

func isHexDigit(b byte) bool {
	return ('0' <= b && b <= '9') || ('a' <= b && b <= 'f') || ('A' <= b && b <= 'F')
}
