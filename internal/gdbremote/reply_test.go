package gdbremote

import "testing"

func TestParseReply(t *testing.T) {
	tests := []struct {
		payload string
		kind    ReplyKind
		code    int
	}{
		{"OK", ReplyOK, -1},
		{"W00", ReplyExited, 0},
		{"W1f", ReplyExited, 31},
		{"W02;process:1a2b", ReplyExited, 2},
		{"X09", ReplySignaled, 9},
		{"T91", ReplyStopped, 0x91},
		{"T05thread:1;", ReplyStopped, 5},
		{"O", ReplyOutput, -1},
		{"O48690A", ReplyOutput, -1},
		{"E23", ReplyError, 0x23},
		{"E", ReplyError, -1},
		{"Wzz", ReplyExited, -1},
		{"", ReplyUnknown, -1},
		{"QStartNoAckMode", ReplyUnknown, -1},
	}

	for _, tt := range tests {
		r := ParseReply(tt.payload)
		if r.Kind != tt.kind || r.Code != tt.code {
			t.Errorf("ParseReply(%q) = {%s %d}, expected {%s %d}", tt.payload, r.Kind, r.Code, tt.kind, tt.code)
		}
	}
}

func TestReply_Text(t *testing.T) {
	if got := ParseReply("O48690A").Text(); got != "Hi\n" {
		t.Errorf("Text() = %q, expected %q", got, "Hi\n")
	}
	if got := ParseReply("Oplain").Text(); got != "plain" {
		t.Errorf("Text() = %q, expected raw payload", got)
	}
	if got := ParseReply("OK").Text(); got != "" {
		t.Errorf("Text() on OK = %q, expected empty", got)
	}
}

func TestReply_String(t *testing.T) {
	if s := ParseReply("X0b").String(); s != "signaled(11)" {
		t.Errorf("String() = %q", s)
	}
	if s := ParseReply("OK").String(); s != "ok" {
		t.Errorf("String() = %q", s)
	}
}
