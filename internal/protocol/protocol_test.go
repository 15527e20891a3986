package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"corpsim/internal/game"
)

func TestEncodeClientCarriesType(t *testing.T) {
	id := uuid.New()
	b, err := EncodeClient(Action{
		RequestedGameID: id,
		Command:         game.CommandJSON{Command: game.GiveRaise{EmployeeID: id, Amount: 10}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("payload is not an object: %v (%s)", err, b)
	}
	if string(raw["type"]) != `"action"` {
		t.Fatalf("type=%s", raw["type"])
	}

	m, err := DecodeClient(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	a, ok := m.(Action)
	if !ok || a.RequestedGameID != id {
		t.Fatalf("decoded %#v", m)
	}
	if raise, ok := a.Command.Command.(game.GiveRaise); !ok || raise.Amount != 10 {
		t.Fatalf("command %#v", a.Command.Command)
	}
}

func TestEncodeEmptyMessages(t *testing.T) {
	b, err := EncodeClient(ListGames{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"type":"list_games"}` {
		t.Fatalf("got %s", b)
	}
	b, err = EncodeServer(None{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeServer(b); err != nil {
		t.Fatalf("decode none: %v", err)
	}
}

func TestDecodeClientRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "not json", in: `{"type":`, want: ErrBadMessage},
		{name: "unknown type", in: `{"type":"teleport"}`, want: ErrUnknownType},
		{name: "bad mode", in: `{"type":"hello","mode":"admin","protocol_version":1}`, want: ErrBadMessage},
		{name: "action without command", in: `{"type":"action","requested_game_id":"` + uuid.NewString() + `"}`, want: ErrBadMessage},
		{name: "unknown command", in: `{"type":"action","command":{"kind":"Nope"}}`, want: ErrBadMessage},
		{name: "bad uuid", in: `{"type":"delete_game","game_id":"zzz"}`, want: ErrBadMessage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeClient([]byte(tc.in)); !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestHelloReplyShapes(t *testing.T) {
	b, err := EncodeServer(HelloReply{Accepted: false, Reason: "protocol version mismatch"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ev, err := DecodeServer(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	reply, ok := ev.(HelloReply)
	if !ok || reply.Accepted || reply.Reason == "" {
		t.Fatalf("decoded %#v", ev)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte(`{"type":"none"}`), {}, bytes.Repeat([]byte("x"), 70_000)}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i, want := range payloads {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d differs", i)
		}
	}
	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("err=%v want io.EOF", err)
	}
}

func TestReadFrameLimits(t *testing.T) {
	huge := []byte{0x7f, 0xff, 0xff, 0xff}
	if _, err := ReadFrame(bytes.NewReader(huge)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err=%v want ErrFrameTooLarge", err)
	}
	short := []byte{0, 0, 0, 10, 'a', 'b'}
	if _, err := ReadFrame(bytes.NewReader(short)); err != io.ErrUnexpectedEOF {
		t.Fatalf("err=%v want io.ErrUnexpectedEOF", err)
	}
}
