package conn

import "io"

// peekReader lets the drive loop test for peer-close (a zero-byte
// read) without consuming the byte that turns out to be the start of
// the next frame. It deliberately does not buffer ahead any further
// than that one byte: bufio.Reader's larger internal buffer would risk
// pulling ciphertext bytes through before the connection knows to
// decrypt them, the moment encryption is enabled mid-stream.
type peekReader struct {
	r       io.Reader
	pending []byte
}

func newPeekReader(r io.Reader) *peekReader {
	return &peekReader{r: r}
}

// setUnderlying swaps the reader peekReader pulls from. Callers must
// only do this between frames, when no byte is currently pending --
// true right after awaitByte's byte has been consumed by a full frame
// read, which is the only place the connection calls it.
func (p *peekReader) setUnderlying(r io.Reader) {
	p.r = r
}

// awaitByte blocks until either a byte is available (and retained for
// the next Read) or the underlying reader reports an error. It reports
// available=false with io.EOF for a clean peer close, or available=false
// with any other error for an abnormal one.
func (p *peekReader) awaitByte() (available bool, err error) {
	if len(p.pending) == 1 {
		return true, nil
	}

	buf := make([]byte, 1)
	n, err := p.r.Read(buf)
	if n == 1 {
		p.pending = buf
		return true, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return false, err
}

// Read implements io.Reader, returning the pending peeked byte first if
// there is one.
func (p *peekReader) Read(b []byte) (int, error) {
	if len(p.pending) == 1 && len(b) > 0 {
		b[0] = p.pending[0]
		p.pending = nil
		if len(b) == 1 {
			return 1, nil
		}
		n, err := p.r.Read(b[1:])
		return n + 1, err
	}
	return p.r.Read(b)
}
