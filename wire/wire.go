// Package wire frames messages on the wire between clients and deaddrops:
// every message is a big-endian uint32 length prefix followed by that many
// bytes of canonically-serialized payload. Both directions of a connection
// use the same framing.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame so a misbehaving or malicious peer
// cannot force an unbounded allocation with a forged length prefix.
const MaxFrameSize = 64 << 20 // 64 MiB

// WriteFrame writes data to w prefixed with its big-endian uint32 length.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds max frame size %d", len(data), MaxFrameSize)
	}
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	if _, err := w.Write(lenBytes[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads a big-endian uint32 length prefix from r, then that many
// bytes, and returns the body.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBytes[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds max frame size %d", n, MaxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return buf, nil
}
