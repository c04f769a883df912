package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/coregx/receptionist/internal/varint"
)

// maxFrameLength bounds how large a single frame's declared length may
// be before it is rejected outright, independent of whatever the peer
// actually sends. This is an implementation limit, not part of the wire
// format; it exists so a corrupt or hostile length prefix cannot make
// the receptionist allocate an unbounded buffer.
const maxFrameLength = 2 * 1024 * 1024

// ReadFrame reads one length-prefixed frame from r and decodes it
// against phase's inbound table.
//
// On success it returns the decoded Message. If (phase, id) has no
// registered decoder, it still drains the full frame body and returns
// *UnsupportedError — recoverable, per spec.md §4.4 and §7. Any other
// error (truncated frame, schema violation) is fatal.
func ReadFrame(r io.Reader, phase Phase) (Message, error) {
	length, err := varint.Decode(asByteReader(r))
	if err != nil {
		return nil, fmt.Errorf("frame length: %w", err)
	}
	if length < 0 || length > maxFrameLength {
		return nil, fmt.Errorf("%w: frame length %d out of range", ErrInvalidData, length)
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		// A frame whose declared length exceeds what the peer actually
		// sends before closing surfaces here as io.ErrUnexpectedEOF (or
		// io.EOF for a zero-byte read), both fatal per spec.md §4.5.
		return nil, fmt.Errorf("frame body: %w", err)
	}

	body := bytes.NewReader(raw)
	id, err := varint.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("frame id: %w", err)
	}

	msg, err := decodeInbound(phase, id, body)
	if err != nil {
		var unsupported *UnsupportedError
		if isUnsupportedErr(err, &unsupported) {
			// Body already fully consumed: raw held the whole frame, and
			// we only peeled off the id varint, so there is nothing left
			// to drain. Surface the recoverable error as-is.
			return nil, err
		}
		return nil, err
	}
	return msg, nil
}

// WriteFrame encodes m and writes it to w as a length-prefixed,
// id-prefixed frame.
func WriteFrame(w io.Writer, m Message) error {
	_, id, err := outboundID(m)
	if err != nil {
		return err
	}

	body, err := encodeBody(m)
	if err != nil {
		return err
	}

	var scratch bytes.Buffer
	if err := varint.WriteTo(&scratch, id); err != nil {
		return err
	}
	scratch.Write(body)

	var frame bytes.Buffer
	if err := varint.WriteTo(&frame, int32(scratch.Len())); err != nil {
		return err
	}
	frame.Write(scratch.Bytes())

	_, err = w.Write(frame.Bytes())
	return err
}

// byteReader adapts an io.Reader that does not already implement
// io.ByteReader (such as a raw net.Conn) into one that does, reading
// one byte at a time — acceptable here because it is only ever used to
// decode a single leading VarInt per frame.
type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b byteReader) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

// asByteReader returns r unchanged if it already implements
// varint.ByteReader (e.g. *bufio.Reader), otherwise wraps it.
func asByteReader(r io.Reader) interface {
	io.Reader
	varint.ByteReader
} {
	if br, ok := r.(interface {
		io.Reader
		varint.ByteReader
	}); ok {
		return br
	}
	return byteReader{r: r}
}

// isUnsupportedErr is a small helper so ReadFrame's error handling reads
// linearly; kept separate from protocol.IsUnsupported since it also
// extracts the typed pointer for (unused) future logging hooks.
func isUnsupportedErr(err error, target **UnsupportedError) bool {
	u, ok := err.(*UnsupportedError)
	if ok {
		*target = u
	}
	return ok
}
