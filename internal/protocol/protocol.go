package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the fixed wire size of a frame header: a 1-byte type tag
// followed by a 4-byte big-endian body size.
const HeaderSize = 5

// lengthSize is the width of every length prefix and count inside a body.
const lengthSize = 4

// maxBodySize bounds encoded bodies to what the header's size field can carry.
var maxBodySize uint64 = math.MaxUint32

var (
	ErrShortHeader  = errors.New("header must be exactly 5 bytes")
	ErrUnknownType  = errors.New("unknown message type")
	ErrSizeMismatch = errors.New("body length does not match header")
	ErrTruncated    = errors.New("truncated message body")
	ErrTrailingData = errors.New("trailing bytes after message body")
	ErrTooLarge     = errors.New("message body too large")
)

// Header precedes every message body on the wire.
type Header struct {
	Type     MessageType
	BodySize uint32
}

// EncodeHeader writes the header in its fixed 5-byte layout.
func EncodeHeader(h Header) []byte {
	out := make([]byte, HeaderSize)
	out[0] = byte(h.Type)
	binary.BigEndian.PutUint32(out[1:HeaderSize], h.BodySize)
	return out
}

// DecodeHeader parses a 5-byte header. An unknown type tag still returns the
// parsed header together with ErrUnknownType so stream readers can skip the
// body and stay aligned.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) != HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d", ErrShortHeader, len(data))
	}

	h := Header{
		Type:     MessageType(data[0]),
		BodySize: binary.BigEndian.Uint32(data[1:HeaderSize]),
	}
	if !h.Type.Valid() {
		return h, fmt.Errorf("%w: %d", ErrUnknownType, data[0])
	}
	return h, nil
}

// Encode serializes a message as header followed by body.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownType)
	}

	size := m.bodySize()
	if size > maxBodySize {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrTooLarge, size, maxBodySize)
	}

	out := make([]byte, HeaderSize, HeaderSize+int(size))
	out[0] = byte(m.Type())
	binary.BigEndian.PutUint32(out[1:HeaderSize], uint32(size))
	return m.appendBody(out), nil
}

// Decode parses a complete frame (header plus body).
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d", ErrShortHeader, len(frame))
	}

	h, err := DecodeHeader(frame[:HeaderSize])
	if err != nil {
		return nil, err
	}
	return DecodeBody(h, frame[HeaderSize:])
}

// DecodeBody decodes a body according to its header. The body length must
// equal h.BodySize exactly; every length prefix is checked against the bytes
// that remain before anything is copied.
func DecodeBody(h Header, body []byte) (Message, error) {
	if uint64(len(body)) != uint64(h.BodySize) {
		return nil, fmt.Errorf("%w: header says %d, got %d", ErrSizeMismatch, h.BodySize, len(body))
	}

	r := &bodyReader{buf: body}
	var (
		m   Message
		err error
	)

	switch h.Type {
	case TypeConnect:
		var c Connect
		c.Nick, err = r.string()
		m = c
	case TypeDisconnect:
		var d Disconnect
		d.Nick, err = r.string()
		m = d
	case TypeText:
		m, err = decodeText(r)
	case TypePrivate:
		m, err = decodePrivate(r)
	case TypeChatUsers:
		m, err = decodeChatUsers(r)
	case TypeHeartbeat:
		m = Heartbeat{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(h.Type))
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.Type, err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("decode %s: %w: %d bytes", h.Type, ErrTrailingData, r.remaining())
	}
	return m, nil
}

func decodeText(r *bodyReader) (Message, error) {
	from, err := r.string()
	if err != nil {
		return nil, err
	}
	msg, err := r.string()
	if err != nil {
		return nil, err
	}
	return Text{From: from, Message: msg}, nil
}

func decodePrivate(r *bodyReader) (Message, error) {
	from, err := r.string()
	if err != nil {
		return nil, err
	}
	to, err := r.string()
	if err != nil {
		return nil, err
	}
	msg, err := r.string()
	if err != nil {
		return nil, err
	}
	return Private{From: from, To: to, Message: msg}, nil
}

func decodeChatUsers(r *bodyReader) (Message, error) {
	count, err := r.uint32()
	if err != nil {
		return nil, err
	}
	// each entry needs at least its length prefix
	if uint64(count)*lengthSize > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: %d users cannot fit in %d bytes", ErrTruncated, count, r.remaining())
	}

	users := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		nick, err := r.string()
		if err != nil {
			return nil, err
		}
		users = append(users, nick)
	}
	return ChatUsers{Users: users}, nil
}

type bodyReader struct {
	buf []byte
	off int
}

func (r *bodyReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *bodyReader) uint32() (uint32, error) {
	if r.remaining() < lengthSize {
		return 0, fmt.Errorf("%w: need %d bytes for length, have %d", ErrTruncated, lengthSize, r.remaining())
	}
	v := binary.BigEndian.Uint32(r.buf[r.off : r.off+lengthSize])
	r.off += lengthSize
	return v, nil
}

func (r *bodyReader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(r.remaining()) {
		return "", fmt.Errorf("%w: length %d exceeds remaining %d", ErrTruncated, n, r.remaining())
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func stringSize(s string) uint64 {
	return lengthSize + uint64(len(s))
}
