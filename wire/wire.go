// Package wire defines the message shipped to the remote collector and
// its framing: one JSON object followed by a single 0x00 byte, over a
// plain TCP stream with no handshake.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/philipp01105/logship/core"
)

// Delimiter terminates every frame on the stream.
const Delimiter byte = 0x00

var (
	// ErrDelimiter is returned by Encode when the encoded payload contains
	// the frame delimiter.
	ErrDelimiter = errors.New("wire: payload contains frame delimiter")

	// ErrEmptyFrame is returned by Decode for a frame with no payload.
	ErrEmptyFrame = errors.New("wire: empty frame")
)

// Message is the record as seen by the collector. Field order is the
// order of the keys on the wire.
type Message struct {
	Hostname string `json:"hostname"`
	Level    string `json:"level"`
	Message  string `json:"message"`
	Module   string `json:"module"`
}

// NewMessage builds the wire form of a record emitted on hostname.
func NewMessage(hostname string, level core.Level, target, msg string) Message {
	return Message{
		Hostname: hostname,
		Level:    level.String(),
		Message:  msg,
		Module:   target,
	}
}

// FromEntry builds the wire form of entry. Fields, time and caller are
// local-only and are not shipped.
func FromEntry(hostname string, entry *core.Entry) Message {
	return NewMessage(hostname, entry.Level, entry.Target, entry.Message)
}

// Encode serializes m without the trailing delimiter. Invalid UTF-8 is
// replaced with U+FFFD, so only valid UTF-8 strings survive a round trip.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	if bytes.IndexByte(b, Delimiter) >= 0 {
		return nil, ErrDelimiter
	}
	return b, nil
}

// AppendFrame appends payload and the delimiter to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = append(dst, payload...)
	return append(dst, Delimiter)
}

// Decode parses one frame. A single trailing delimiter is accepted and
// stripped.
func Decode(frame []byte) (Message, error) {
	if n := len(frame); n > 0 && frame[n-1] == Delimiter {
		frame = frame[:n-1]
	}
	if len(frame) == 0 {
		return Message{}, ErrEmptyFrame
	}
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}
	return m, nil
}

// ScanFrames is a bufio.SplitFunc that yields one payload per frame,
// without the delimiter. A trailing partial frame at EOF is returned
// as-is.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, Delimiter); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = ScanFrames
