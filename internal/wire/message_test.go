package wire

import (
	"errors"
	"testing"
)

func TestMessage_Encode(t *testing.T) {
	m := Message{Sender: "VM0_cr3", Time: 17}
	if string(m.Encode()) != "VM0_cr3:17" {
		t.Errorf("Encode() = %q", m.Encode())
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Message
		wantErr bool
	}{
		{name: "plain", raw: "VM1:10", want: Message{Sender: "VM1", Time: 10}},
		{name: "sender with separator", raw: "host:4096:7", want: Message{Sender: "host:4096", Time: 7}},
		{name: "zero", raw: "VM2_cr6:0", want: Message{Sender: "VM2_cr6", Time: 0}},
		{name: "no separator", raw: "hello", wantErr: true},
		{name: "non numeric", raw: "VM1:abc", wantErr: true},
		{name: "negative", raw: "VM1:-3", wantErr: true},
		{name: "empty clock", raw: "VM1:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("Expected ErrMalformed, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		raw     string
		want    uint64
		wantErr bool
	}{
		{raw: "VM1:10", want: 10},
		{raw: "12", want: 12},
		// Two writes coalesced into one read: the last clock wins.
		{raw: "VM0_cr1:3VM0_cr1:4", want: 4},
		// A read that split a message in two.
		{raw: "VM0_cr1:", wantErr: true},
		{raw: "Second message:10", want: 10},
		{raw: "First message", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
