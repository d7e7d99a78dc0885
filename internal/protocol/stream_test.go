package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

func mustEncode(t *testing.T, m Message) []byte {
	t.Helper()
	frame, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	return frame
}

// TestReadSequence reads several frames back to back from one stream
func TestReadSequence(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		Connect{Nick: "alice"},
		Heartbeat{},
		Text{From: "alice", Message: "hi"},
		Disconnect{Nick: "alice"},
	}

	var stream bytes.Buffer
	for _, m := range msgs {
		stream.Write(mustEncode(t, m))
	}

	for i, want := range msgs {
		h, err := ReadHeader(&stream)
		if err != nil {
			t.Fatalf("frame %d: ReadHeader() failed: %v", i, err)
		}
		body, err := ReadBody(&stream, h, 0)
		if err != nil {
			t.Fatalf("frame %d: ReadBody() failed: %v", i, err)
		}
		got, err := DecodeBody(h, body)
		if err != nil {
			t.Fatalf("frame %d: DecodeBody() failed: %v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("frame %d = %#v, want %#v", i, got, want)
		}
	}

	if _, err := ReadHeader(&stream); err != io.EOF {
		t.Errorf("ReadHeader() at end = %v, want io.EOF", err)
	}
}

// TestReadBodyOversizedResyncs drains an oversized body and reads the next frame
func TestReadBodyOversizedResyncs(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	stream.Write(mustEncode(t, Text{From: "spam", Message: string(make([]byte, 100))}))
	stream.Write(mustEncode(t, Connect{Nick: "next"}))

	h, err := ReadHeader(&stream)
	if err != nil {
		t.Fatalf("ReadHeader() failed: %v", err)
	}
	if _, err := ReadBody(&stream, h, 32); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ReadBody() error = %v, want ErrTooLarge", err)
	}

	h, err = ReadHeader(&stream)
	if err != nil {
		t.Fatalf("ReadHeader() after skip failed: %v", err)
	}
	body, err := ReadBody(&stream, h, 32)
	if err != nil {
		t.Fatalf("ReadBody() after skip failed: %v", err)
	}
	got, err := DecodeBody(h, body)
	if err != nil {
		t.Fatalf("DecodeBody() failed: %v", err)
	}
	if got != (Connect{Nick: "next"}) {
		t.Errorf("got %#v after resync", got)
	}
}

// TestReadUnexpectedEOF checks that streams ending mid-frame are not clean closes
func TestReadUnexpectedEOF(t *testing.T) {
	t.Parallel()

	frame := mustEncode(t, Text{From: "a", Message: "hello"})

	_, err := ReadHeader(bytes.NewReader(frame[:3]))
	if err != io.ErrUnexpectedEOF {
		t.Errorf("partial header error = %v, want io.ErrUnexpectedEOF", err)
	}

	r := bytes.NewReader(frame[:HeaderSize+2])
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader() failed: %v", err)
	}
	if _, err := ReadBody(r, h, 0); err != io.ErrUnexpectedEOF {
		t.Errorf("partial body error = %v, want io.ErrUnexpectedEOF", err)
	}

	r = bytes.NewReader(frame[:HeaderSize])
	h, _ = ReadHeader(r)
	if err := SkipBody(r, h); err != io.ErrUnexpectedEOF {
		t.Errorf("SkipBody() on missing body = %v, want io.ErrUnexpectedEOF", err)
	}
}

// TestReadUnknownTagSkip skips an unknown frame using its declared size
func TestReadUnknownTagSkip(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	stream.Write([]byte{0x7F, 0, 0, 0, 3, 'x', 'y', 'z'})
	stream.Write(mustEncode(t, Heartbeat{}))

	h, err := ReadHeader(&stream)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("ReadHeader() error = %v, want ErrUnknownType", err)
	}
	if err := SkipBody(&stream, h); err != nil {
		t.Fatalf("SkipBody() failed: %v", err)
	}

	h, err = ReadHeader(&stream)
	if err != nil || h.Type != TypeHeartbeat {
		t.Fatalf("next header = %+v, %v; want heartbeat", h, err)
	}
}
