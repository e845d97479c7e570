package gdbremote

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testPath = "/private/var/mobile/Applications/042F57CA-9717-4655-8349-532093FFCF44/BlankCordovaApp1.app"

// fakePeer plays the debug server side of a net.Pipe.
type fakePeer struct {
	conn     net.Conn
	respond  func(payload string) string
	received chan string
	acks     atomic.Int32
	wg       sync.WaitGroup
}

func newFakePeer(conn net.Conn, respond func(string) string) *fakePeer {
	p := &fakePeer{
		conn:     conn,
		respond:  respond,
		received: make(chan string, 16),
	}
	p.wg.Add(1)
	go p.serve()
	return p
}

func (p *fakePeer) serve() {
	defer p.wg.Done()
	r := NewReassembler()
	buf := make([]byte, 1024)
	for {
		n, err := p.conn.Read(buf)
		for _, pkt := range r.Feed(buf[:n]) {
			switch pkt.Kind {
			case PacketAck:
				p.acks.Add(1)
			case PacketFrame:
				p.received <- pkt.Payload
				if reply := p.respond(pkt.Payload); reply != "" {
					if _, err := io.WriteString(p.conn, reply); err != nil {
						return
					}
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *fakePeer) send(t *testing.T, s string) {
	t.Helper()
	if _, err := io.WriteString(p.conn, s); err != nil {
		t.Fatalf("peer write: %v", err)
	}
}

func (p *fakePeer) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-p.received:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame from the client")
		return ""
	}
}

// happyPeer replies like a debug server that starts the app.
func happyPeer(payload string) string {
	switch {
	case strings.HasPrefix(payload, "A"):
		return "+$OK#9A"
	case payload == ThreadCommand:
		return "+$OK#9A"
	case payload == ContinueCommand:
		return "+$O#4F"
	}
	return ""
}

func newTestClient(t *testing.T, respond func(string) string, opts ...Option) (*Client, *fakePeer) {
	t.Helper()
	clientConn, peerConn := net.Pipe()
	peer := newFakePeer(peerConn, respond)
	client := NewClient(clientConn, opts...)
	t.Cleanup(func() {
		client.Close()
		peerConn.Close()
		peer.wg.Wait()
	})
	return client, peer
}

func launchCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestClientLaunch_Success(t *testing.T) {
	client, peer := newTestClient(t, happyPeer)

	if err := client.Launch(launchCtx(t), testPath); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if got := peer.next(t); got != LaunchCommand(testPath) {
		t.Errorf("first command = %q, expected %q", got, LaunchCommand(testPath))
	}
	if got := peer.next(t); got != ThreadCommand {
		t.Errorf("second command = %q, expected %q", got, ThreadCommand)
	}
	if got := peer.next(t); got != ContinueCommand {
		t.Errorf("third command = %q, expected %q", got, ContinueCommand)
	}

	if s := client.State(); s != StepMonitoring {
		t.Errorf("State() = %s, expected monitoring", s)
	}
	for step := StepAwaitingLaunchAck; step <= StepAwaitingContinueAck; step++ {
		if settled, err := client.Outcome(step); !settled || err != nil {
			t.Errorf("Outcome(%s) = (%v, %v), expected resolved", step, settled, err)
		}
	}

	if ev := nextEvent(t, client); ev.Kind != EventOutput {
		t.Errorf("first event = %s, expected output", ev.Kind)
	}

	// one ack per reply frame
	waitFor(t, "acks", func() bool { return peer.acks.Load() == 3 })
}

func TestClientLaunch_ErrorReply(t *testing.T) {
	client, _ := newTestClient(t, func(payload string) string {
		if payload == ContinueCommand {
			return "$E23#AA"
		}
		return happyPeer(payload)
	})

	err := client.Launch(launchCtx(t), testPath)
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Launch error = %v, expected ErrLaunchFailed", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepAwaitingContinueAck {
		t.Errorf("expected StepError for continue step, got %v", err)
	}
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) || protoErr.Code != 0x23 {
		t.Errorf("expected ProtocolError E23, got %v", err)
	}

	for _, step := range []Step{StepAwaitingLaunchAck, StepAwaitingThreadAck} {
		if settled, err := client.Outcome(step); !settled || err != nil {
			t.Errorf("Outcome(%s) = (%v, %v), expected earlier step to stay resolved", step, settled, err)
		}
	}

	waitFor(t, "failed state", func() bool { return client.State() == StepFailed })

	select {
	case <-client.Done():
		t.Error("connection should stay open after an error reply")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientLaunch_ErrorRejectsAllPending(t *testing.T) {
	client, peer := newTestClient(t, func(payload string) string {
		return "+$E01#A6"
	})

	err := client.Launch(launchCtx(t), testPath)
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Launch error = %v, expected ErrLaunchFailed", err)
	}

	for step := StepAwaitingLaunchAck; step <= StepAwaitingContinueAck; step++ {
		settled, err := client.Outcome(step)
		if !settled || !errors.Is(err, ErrLaunchFailed) {
			t.Errorf("Outcome(%s) = (%v, %v), expected ErrLaunchFailed", step, settled, err)
		}
	}

	peer.next(t)
	select {
	case got := <-peer.received:
		t.Errorf("no command should follow a failed step, got %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientLaunch_Timeout(t *testing.T) {
	client, peer := newTestClient(t, func(payload string) string {
		if payload == ThreadCommand {
			return ""
		}
		return happyPeer(payload)
	}, WithStepTimeout(50*time.Millisecond))

	err := client.Launch(launchCtx(t), testPath)
	if !errors.Is(err, ErrLaunchTimeout) {
		t.Fatalf("Launch error = %v, expected ErrLaunchTimeout", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepAwaitingThreadAck {
		t.Errorf("expected StepError for thread step, got %v", err)
	}

	if settled, err := client.Outcome(StepAwaitingLaunchAck); !settled || err != nil {
		t.Errorf("launch step = (%v, %v), expected to remain resolved", settled, err)
	}
	if settled, _ := client.Outcome(StepAwaitingContinueAck); settled {
		t.Error("continue step should never have started")
	}

	waitFor(t, "failed state", func() bool { return client.State() == StepFailed })

	peer.next(t)
	peer.next(t)

	// A late OK must not advance the handshake.
	peer.send(t, "$OK#9A")
	select {
	case got := <-peer.received:
		t.Errorf("client sent %q after timing out", got)
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-client.Done():
		t.Error("timeout should not close the connection")
	default:
	}
}

func TestClientLaunch_PeerClosesDuringHandshake(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	client := NewClient(clientConn)
	defer client.Close()

	go func() {
		buf := make([]byte, 256)
		peerConn.Read(buf)
		peerConn.Close()
	}()

	err := client.Launch(launchCtx(t), testPath)
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Launch error = %v, expected ErrLaunchFailed", err)
	}

	<-client.Done()
	if s := client.State(); s != StepFailed {
		t.Errorf("State() = %s, expected failed", s)
	}
}

type failingConn struct {
	net.Conn
	readErr chan error
}

func (f *failingConn) Read(p []byte) (int, error) {
	return 0, <-f.readErr
}

func TestClientLaunch_TransportError(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	conn := &failingConn{Conn: clientConn, readErr: make(chan error, 1)}
	client := NewClient(conn)
	defer client.Close()

	resetErr := errors.New("connection reset by peer")
	go func() {
		buf := make([]byte, 256)
		peerConn.Read(buf)
		conn.readErr <- resetErr
	}()

	err := client.Launch(launchCtx(t), testPath)
	if !errors.Is(err, resetErr) {
		t.Fatalf("Launch error = %v, expected the transport error", err)
	}
	if errors.Is(err, ErrLaunchFailed) {
		t.Error("transport errors should not be reported as ErrLaunchFailed")
	}
}

func TestClientMonitoring_StopClosesConnection(t *testing.T) {
	client, peer := newTestClient(t, happyPeer)

	if err := client.Launch(launchCtx(t), testPath); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	nextEvent(t, client)

	peer.send(t, "$T91#00")

	ev := nextEvent(t, client)
	if ev.Kind != EventStopped || ev.Code != 0x91 {
		t.Errorf("event = %+v, expected stopped(0x91)", ev)
	}
	ev = nextEvent(t, client)
	if ev.Kind != EventClosed || ev.Err != nil {
		t.Errorf("event = %+v, expected clean close", ev)
	}

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
	if s := client.State(); s != StepTerminated {
		t.Errorf("State() = %s, expected terminated", s)
	}
	for step := StepAwaitingLaunchAck; step <= StepAwaitingContinueAck; step++ {
		if _, err := client.Outcome(step); err != nil {
			t.Errorf("Outcome(%s) = %v after stop, expected nil", step, err)
		}
	}
}

func TestClientMonitoring_OutputAndExit(t *testing.T) {
	client, peer := newTestClient(t, happyPeer)

	if err := client.Launch(launchCtx(t), testPath); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	nextEvent(t, client)

	peer.send(t, "$O48690A#00")
	peer.send(t, "$W03#BA")

	ev := nextEvent(t, client)
	if ev.Kind != EventOutput || ev.Text != "Hi\n" {
		t.Errorf("event = %+v, expected output Hi", ev)
	}
	ev = nextEvent(t, client)
	if ev.Kind != EventExited || ev.Code != 3 {
		t.Errorf("event = %+v, expected exited(3)", ev)
	}
	if ev := nextEvent(t, client); ev.Kind != EventClosed {
		t.Errorf("event = %+v, expected closed", ev)
	}

	if _, ok := <-client.Events(); ok {
		t.Error("events channel should be closed after EventClosed")
	}
}

func TestClientLaunch_ExitBeforeStartFails(t *testing.T) {
	client, _ := newTestClient(t, func(payload string) string {
		if payload == ContinueCommand {
			return "+$X09#C1"
		}
		return happyPeer(payload)
	})

	err := client.Launch(launchCtx(t), testPath)
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("Launch error = %v, expected ErrLaunchFailed", err)
	}
}

func TestClientLaunch_RetransmitsOnNak(t *testing.T) {
	var attempts atomic.Int32
	client, peer := newTestClient(t, func(payload string) string {
		if strings.HasPrefix(payload, "A") && attempts.Add(1) == 1 {
			return "-"
		}
		return happyPeer(payload)
	})

	if err := client.Launch(launchCtx(t), testPath); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	first, second := peer.next(t), peer.next(t)
	if first != second || !strings.HasPrefix(first, "A") {
		t.Errorf("expected launch command twice, got %q then %q", first, second)
	}
}

func TestClientLaunch_IgnoresRepliesBeforeLaunch(t *testing.T) {
	client, peer := newTestClient(t, happyPeer)

	peer.send(t, "$OK#9A")
	peer.send(t, "$O#4F")
	waitFor(t, "acks", func() bool { return peer.acks.Load() == 2 })

	if s := client.State(); s != StepAwaitingLaunchAck {
		t.Fatalf("State() before Launch = %s, expected awaiting launch ack", s)
	}
	if settled, _ := client.Outcome(StepAwaitingLaunchAck); settled {
		t.Fatal("launch step settled before its command was sent")
	}

	if err := client.Launch(launchCtx(t), testPath); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	expected := []string{LaunchCommand(testPath), ThreadCommand, ContinueCommand}
	for i, want := range expected {
		if got := peer.next(t); got != want {
			t.Errorf("command %d = %q, expected %q", i+1, got, want)
		}
	}
}

func TestClientLaunch_Twice(t *testing.T) {
	client, _ := newTestClient(t, happyPeer)

	if err := client.Launch(launchCtx(t), testPath); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := client.Launch(launchCtx(t), testPath); !errors.Is(err, ErrAlreadyLaunched) {
		t.Errorf("second Launch = %v, expected ErrAlreadyLaunched", err)
	}
}

func TestClientLaunch_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(string) string { return "" }, WithStepTimeout(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := client.Launch(ctx, testPath); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Launch = %v, expected context.DeadlineExceeded", err)
	}
}

func TestClientLaunch_AfterClose(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()
	client := NewClient(clientConn)
	client.Close()

	if err := client.Launch(launchCtx(t), testPath); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Launch after Close = %v, expected ErrClientClosed", err)
	}
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var peer *fakePeer
	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		peer = newFakePeer(conn, happyPeer)
		close(accepted)
	}()

	client, err := Dial(launchCtx(t), ln.Addr().String(), WithStepTimeout(time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Launch(launchCtx(t), testPath); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	<-accepted
	peer.conn.Close()
}

func TestResultCell_FirstWins(t *testing.T) {
	cell := newResultCell()

	if !cell.resolve() {
		t.Fatal("first resolve should win")
	}
	if cell.reject(ErrLaunchTimeout) {
		t.Error("late reject should be a no-op")
	}
	if cell.resolve() {
		t.Error("second resolve should be a no-op")
	}
	if settled, err := cell.result(); !settled || err != nil {
		t.Errorf("result() = (%v, %v), expected (true, nil)", settled, err)
	}
}

func TestResultCell_Concurrent(t *testing.T) {
	cell := newResultCell()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var won bool
			if i%2 == 0 {
				won = cell.resolve()
			} else {
				won = cell.reject(ErrLaunchFailed)
			}
			if won {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestStep_String(t *testing.T) {
	if StepAwaitingThreadAck.String() != "awaiting thread ack" {
		t.Errorf("unexpected name %q", StepAwaitingThreadAck.String())
	}
	if !StepFailed.Terminal() || !StepTerminated.Terminal() || StepMonitoring.Terminal() {
		t.Error("Terminal() misclassifies steps")
	}
}
