package cryptostream

import (
	"crypto/cipher"
	"io"
)

// DecryptReader wraps an io.Reader and, for every read, decrypts the
// bytes returned in place before handing them back to the caller. It is
// stateful: bytes must pass through it exactly once and in order, so a
// connection must replace its plain io.Reader with one of these at the
// exact moment encryption is enabled, never reading around it again.
type DecryptReader struct {
	r      io.Reader
	stream cipher.Stream
}

// NewDecryptReader builds a DecryptReader around r using stream, which
// must have been constructed for decryption (see NewCFB8Decrypter).
func NewDecryptReader(r io.Reader, stream cipher.Stream) *DecryptReader {
	return &DecryptReader{r: r, stream: stream}
}

// Read reads from the underlying reader, decrypting the returned bytes
// in place. A partial read is decrypted partially; the caller is
// expected to call Read again for the rest, as with any io.Reader.
func (d *DecryptReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// EncryptWriter wraps an io.Writer and encrypts each write's full buffer
// before handing it to the underlying writer. Like DecryptReader, it is
// stateful and must be used for every write once encryption is enabled.
type EncryptWriter struct {
	w      io.Writer
	stream cipher.Stream
	buf    []byte
}

// NewEncryptWriter builds an EncryptWriter around w using stream, which
// must have been constructed for encryption (see NewCFB8Encrypter).
func NewEncryptWriter(w io.Writer, stream cipher.Stream) *EncryptWriter {
	return &EncryptWriter{w: w, stream: stream}
}

// Write encrypts p into a scratch buffer and writes the result. It
// reports the number of plaintext bytes consumed, so a short underlying
// write is reported as a short Write, exactly as io.Writer requires.
func (e *EncryptWriter) Write(p []byte) (int, error) {
	if cap(e.buf) < len(p) {
		e.buf = make([]byte, len(p))
	}
	buf := e.buf[:len(p)]

	e.stream.XORKeyStream(buf, p)

	n, err := e.w.Write(buf)
	return n, err
}
