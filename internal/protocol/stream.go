package protocol

import (
	"fmt"
	"io"
)

// ReadHeader reads exactly HeaderSize bytes from r and decodes them. A clean
// end of stream before any header byte is returned as io.EOF.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf[:])
}

// ReadBody reads the body announced by h. Bodies larger than limit are read
// and discarded so the stream stays aligned on the next header, and
// ErrTooLarge is returned. A zero limit disables the check.
func ReadBody(r io.Reader, h Header, limit uint32) ([]byte, error) {
	if h.BodySize == 0 {
		return nil, nil
	}

	if limit > 0 && h.BodySize > limit {
		if _, err := io.CopyN(io.Discard, r, int64(h.BodySize)); err != nil {
			return nil, noEOF(err)
		}
		return nil, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrTooLarge, h.BodySize, limit)
	}

	body := make([]byte, h.BodySize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, noEOF(err)
	}
	return body, nil
}

// SkipBody discards the body announced by h, used after an unknown tag.
func SkipBody(r io.Reader, h Header) error {
	if h.BodySize == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(h.BodySize))
	return noEOF(err)
}

// a stream ending inside a frame is never a clean close
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
