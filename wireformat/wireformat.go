// Package wireformat implements the frame codec for the pipe transport:
// a fixed-size length prefix followed by a variable-length body, exactly
// as the wire format requires — no magic number, version, or codec-type
// byte, since this fabric has exactly one wire format rather than several
// negotiated ones.
//
// Frame format:
//
//	0          4
//	┌──────────┬───────────────┐
//	│  length  │    body ...   │
//	│ uint32LE │ length bytes  │
//	└──────────┴───────────────┘
//
// This generalizes the teacher's protocol.Encode/Decode (14-byte
// magic+version+codec+msgType+seq+bodyLen header) down to the one header
// field this format actually needs, kept length-prefixed and
// io.ReadFull-exact for the same reason: TCP/pipe streams have no message
// boundaries of their own.
package wireformat

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

// LengthPrefixSize is the size in bytes of the frame's length prefix.
const LengthPrefixSize = 4

// MaxFrameLength caps a single frame's body to guard against a corrupt or
// hostile length prefix causing an unbounded allocation.
const MaxFrameLength = 64 << 20 // 64 MiB

// WriteFrame writes one length-prefixed frame to w. The caller must
// serialize concurrent writers itself — wireformat performs no locking,
// matching the teacher's Encode which left write-serialization to its
// caller.
func WriteFrame(w io.Writer, body []byte) error {
	var lenBuf [LengthPrefixSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wireformat: write length prefix: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wireformat: write body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A declared length of
// zero is a protocol violation, not an empty body — every frame on this
// wire carries a JSON-encoded envelope, which is never itself empty.
// io.EOF is returned unmodified when the stream ends cleanly before any
// bytes of a new frame arrive; any other truncation is reported as
// rpcerr.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("wireformat: read length prefix: %w", rpcerr.ErrUnexpectedEOF)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, fmt.Errorf("wireformat: frame length must be positive: %w", rpcerr.ErrInvalidFrame)
	}
	if length > MaxFrameLength {
		return nil, fmt.Errorf("wireformat: frame length %d exceeds maximum: %w", length, rpcerr.ErrInvalidFrame)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wireformat: read body: %w", rpcerr.ErrUnexpectedEOF)
	}
	return body, nil
}

// WriteMessage JSON-encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m *message.PipeMessage) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("wireformat: encode message: %w", err)
	}
	return WriteFrame(w, body)
}

// ReadMessage reads one frame and JSON-decodes it into a PipeMessage.
func ReadMessage(r io.Reader) (*message.PipeMessage, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	var m message.PipeMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("wireformat: decode message: %w", rpcerr.ErrInvalidFrame)
	}
	return &m, nil
}
