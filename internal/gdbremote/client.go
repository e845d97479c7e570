package gdbremote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Bhaskers-Blu-Org2/idevice-app-launcher/internal/logging"
)

const (
	// DefaultStepTimeout bounds each handshake step.
	DefaultStepTimeout = 10 * time.Second

	// DefaultEventBuffer is the capacity of the Events channel.
	DefaultEventBuffer = 64

	readBufferSize = 4096
	inboxSize      = 64
)

// Option configures a Client.
type Option func(*Client)

// WithStepTimeout sets how long each handshake step may wait for its reply.
func WithStepTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.stepTimeout = d
		}
	}
}

// WithLogger sets the logger used for protocol traces.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// Client drives a debug server connection through the launch handshake
// and then monitors the launched process.
//
// All protocol work happens on a single event loop goroutine fed by an
// ordered inbox; a reader goroutine and the step timers only post to it.
// Client is safe for concurrent use.
type Client struct {
	conn        io.ReadWriteCloser
	logger      *logging.Logger
	stepTimeout time.Duration
	eventBuffer int

	step  atomic.Int32
	cells [handshakeSteps]*resultCell

	inbox  chan loopEvent
	events chan Event
	done   chan struct{}

	started   atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// owned by the event loop
	reasm     *Reassembler
	timers    [handshakeSteps]*time.Timer
	sent      [handshakeSteps]bool
	lastFrame string
}

// NewClient starts a client on an established connection. The handshake
// does not begin until Launch is called.
func NewClient(conn io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		conn:        conn,
		logger:      logging.Nop(),
		stepTimeout: DefaultStepTimeout,
		eventBuffer: DefaultEventBuffer,
		inbox:       make(chan loopEvent, inboxSize),
		done:        make(chan struct{}),
		reasm:       NewReassembler(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for i := range c.cells {
		c.cells[i] = newResultCell()
	}
	c.events = make(chan Event, c.eventBuffer)
	c.step.Store(int32(StepAwaitingLaunchAck))

	go c.readLoop()
	go c.run()
	return c
}

// Dial connects to a debug server proxy and returns a client for it.
func Dial(ctx context.Context, address string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewClient(conn, opts...), nil
}

// Launch runs the handshake for the executable at path and returns nil once
// the process is running and the client is monitoring it. It returns exactly
// one failure otherwise. Cancelling ctx abandons the wait without touching
// the connection; call Close to release it.
func (c *Client) Launch(ctx context.Context, path string) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyLaunched
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	if !c.post(loopEvent{kind: loopStart, path: path}) {
		return ErrClientClosed
	}

	for _, cell := range c.cells {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cell.done:
			if cell.err != nil {
				return cell.err
			}
		}
	}
	return nil
}

// State returns the current step.
func (c *Client) State() Step {
	return Step(c.step.Load())
}

// Outcome reports whether a handshake step has settled and how.
func (c *Client) Outcome(step Step) (settled bool, err error) {
	if !step.awaiting() {
		return false, nil
	}
	return c.cells[step].result()
}

// Events returns the channel of process and connection events. It is closed
// after the final EventClosed. When the buffer is full the oldest event is
// discarded.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed once the connection has ended and the loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and waits for the event loop to exit.
func (c *Client) Close() error {
	c.closeConn()
	<-c.done
	return c.closeErr
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.closeErr = c.conn.Close()
	})
}

// post delivers ev to the loop, or reports false if the loop has exited.
func (c *Client) post(ev loopEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !c.post(loopEvent{kind: loopDataReceived, data: chunk}) {
				return
			}
		}
		if err != nil {
			if c.closing.Load() || errors.Is(err, io.EOF) ||
				errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				c.post(loopEvent{kind: loopConnectionClosed})
			} else {
				c.post(loopEvent{kind: loopTransportError, err: err})
			}
			return
		}
	}
}

// run is the event loop. It exits when the connection has ended.
func (c *Client) run() {
	defer c.finish()

	for ev := range c.inbox {
		switch ev.kind {
		case loopStart:
			c.sendStep(StepAwaitingLaunchAck, LaunchCommand(ev.path))
		case loopDataReceived:
			c.handleData(ev.data)
		case loopTimeout:
			c.handleTimeout(ev.step)
		case loopConnectionClosed:
			c.handleEnd(nil)
			return
		case loopTransportError:
			c.handleEnd(ev.err)
			return
		}
	}
}

func (c *Client) finish() {
	for _, t := range c.timers {
		if t != nil {
			t.Stop()
		}
	}
	c.closeConn()
	close(c.done)
	close(c.events)
}

func (c *Client) setStep(s Step) {
	old := Step(c.step.Swap(int32(s)))
	if old != s {
		c.logger.Debug("state %s -> %s", old, s)
	}
}

// sendStep writes the command for step and arms its timer. Only the
// current step's command is sent, and only once.
func (c *Client) sendStep(step Step, command string) {
	if cur := c.State(); cur != step || c.sent[step] {
		c.logger.Debug("not sending %q in %s", command, cur)
		return
	}

	cell := c.cells[step]
	c.timers[step] = time.AfterFunc(c.stepTimeout, func() {
		if cell.reject(&StepError{Step: step, Err: ErrLaunchTimeout}) {
			c.post(loopEvent{kind: loopTimeout, step: step})
		}
	})

	frame := Frame(command)
	c.lastFrame = frame
	c.logger.Debug("-> %s", frame)
	if _, err := io.WriteString(c.conn, frame); err != nil {
		c.rejectPending(fmt.Errorf("write %q: %w", command, err))
		c.setStep(StepFailed)
		c.closeConn()
		return
	}
	c.sent[step] = true
}

// settleStep stops the step's timer and resolves or rejects its cell.
// It reports whether this settlement won.
func (c *Client) settleStep(step Step, err error) bool {
	if t := c.timers[step]; t != nil {
		t.Stop()
	}
	if err != nil {
		return c.cells[step].reject(&StepError{Step: step, Err: err})
	}
	return c.cells[step].resolve()
}

// rejectPending rejects every step that has not settled yet.
func (c *Client) rejectPending(err error) {
	for i := range c.cells {
		c.settleStep(Step(i), err)
	}
}

func (c *Client) handleData(chunk []byte) {
	for _, p := range c.reasm.Feed(chunk) {
		if c.closing.Load() {
			return
		}

		switch p.Kind {
		case PacketAck:
			c.logger.Debug("<- +")
		case PacketNak:
			if c.lastFrame != "" && !c.State().Terminal() {
				c.logger.Warn("debug server requested retransmission")
				c.write(c.lastFrame)
			}
		case PacketFrame:
			c.logger.Debug("<- $%s#%s", p.Payload, p.Checksum)
			if !p.Valid() {
				c.logger.Debug("checksum mismatch on %q: got %s want %s", p.Payload, p.Checksum, Checksum(p.Payload))
			}
			if !c.write(string(Ack)) {
				return
			}
			c.handleReply(ParseReply(p.Payload))
		}
	}
}

// write sends raw bytes; a failure fails pending steps and closes the connection.
func (c *Client) write(s string) bool {
	if _, err := io.WriteString(c.conn, s); err != nil {
		if !c.closing.Load() {
			c.rejectPending(fmt.Errorf("write: %w", err))
			c.closeConn()
		}
		return false
	}
	return true
}

func (c *Client) handleReply(r Reply) {
	step := c.State()

	// a reply can only answer a command that is on the wire
	if step.awaiting() && !c.sent[step] && (r.Kind == ReplyOK || r.Kind == ReplyOutput) {
		c.logger.Debug("ignoring %s before the command for %s was sent", r, step)
		return
	}

	switch r.Kind {
	case ReplyOK:
		switch step {
		case StepAwaitingLaunchAck:
			c.advance(step, StepAwaitingThreadAck, ThreadCommand)
		case StepAwaitingThreadAck:
			c.advance(step, StepAwaitingContinueAck, ContinueCommand)
		default:
			c.logger.Debug("ignoring OK in %s", step)
		}

	case ReplyOutput:
		switch step {
		case StepAwaitingContinueAck:
			// publish the state before Launch can observe the result
			c.setStep(StepMonitoring)
			if !c.settleStep(step, nil) {
				c.setStep(StepFailed)
				return
			}
			c.logger.Info("process started")
			c.emit(Event{Kind: EventOutput, Code: -1, Text: r.Text()})
		case StepMonitoring:
			c.emit(Event{Kind: EventOutput, Code: -1, Text: r.Text()})
		default:
			c.logger.Debug("ignoring output in %s", step)
		}

	case ReplyError:
		c.logger.Warn("debug server replied E%02X in %s", r.Code, step)
		c.rejectPending(&ProtocolError{Code: r.Code})
		if step.awaiting() {
			c.setStep(StepFailed)
		}

	case ReplyExited, ReplySignaled, ReplyStopped:
		if step == StepMonitoring {
			c.emit(Event{Kind: replyEventKind(r.Kind), Code: r.Code})
		}
		c.logger.Info("process %s, closing connection", r)
		c.closeConn()

	default:
		c.logger.Debug("ignoring reply %q", r.Data)
	}
}

// advance resolves the current step and sends the next command.
func (c *Client) advance(current, next Step, command string) {
	c.setStep(next)
	if !c.settleStep(current, nil) {
		// the timer won the race
		c.setStep(StepFailed)
		return
	}
	c.sendStep(next, command)
}

func (c *Client) handleTimeout(step Step) {
	c.logger.Warn("no reply while %s after %s", step, c.stepTimeout)
	if cur := c.State(); !cur.Terminal() && cur != StepMonitoring {
		c.setStep(StepFailed)
	}
}

func (c *Client) handleEnd(err error) {
	reason := ErrLaunchFailed
	if err != nil && !c.closing.Load() {
		reason = fmt.Errorf("debug server connection: %w", err)
	} else {
		err = nil
	}
	c.rejectPending(reason)

	switch c.State() {
	case StepMonitoring:
		c.setStep(StepTerminated)
	case StepFailed, StepTerminated:
	default:
		c.setStep(StepFailed)
	}
	c.emit(Event{Kind: EventClosed, Code: -1, Err: err})
}

// emit queues ev for the caller, discarding the oldest event when full.
func (c *Client) emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		select {
		case old := <-c.events:
			c.logger.Warn("event buffer full, dropped %s event", old.Kind)
		default:
		}
	}
}

func replyEventKind(k ReplyKind) EventKind {
	switch k {
	case ReplyExited:
		return EventExited
	case ReplySignaled:
		return EventSignaled
	default:
		return EventStopped
	}
}
