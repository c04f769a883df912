// Package cryptostream provides the CFB8-mode stream cipher the wire
// protocol's encryption upgrade requires, plus the read/write decorators
// that apply it transparently to a connection's byte stream.
//
// Go's standard library crypto/cipher.NewCFBEncrypter/NewCFBDecrypter
// implement full-block-segment CFB (128-bit feedback for AES), not the
// 8-bit-segment CFB8 this protocol uses, so the mode itself is
// implemented here directly on top of crypto/aes. No third-party library
// surfaced by the retrieval pack implements CFB8 either (see DESIGN.md).
package cryptostream

import "crypto/cipher"

// cfb8 holds the shared state between the encrypting and decrypting
// sides of CFB8 mode: a block cipher and a shift register seeded from
// the IV, one byte of which is consumed (and replaced) per processed
// byte of plaintext/ciphertext.
type cfb8 struct {
	block     cipher.Block
	register  []byte
	encrypt   bool
	blockSize int
}

func newCFB8(block cipher.Block, iv []byte, encrypt bool) *cfb8 {
	blockSize := block.BlockSize()
	if len(iv) != blockSize {
		panic("cryptostream: CFB8 IV length must equal the block size")
	}

	register := make([]byte, blockSize)
	copy(register, iv)

	return &cfb8{
		block:     block,
		register:  register,
		encrypt:   encrypt,
		blockSize: blockSize,
	}
}

// NewCFB8Encrypter returns a cipher.Stream that encrypts in CFB8 mode,
// keyed and IV'd as described by block and iv.
func NewCFB8Encrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, true)
}

// NewCFB8Decrypter returns a cipher.Stream that decrypts in CFB8 mode.
func NewCFB8Decrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, false)
}

// XORKeyStream implements cipher.Stream. dst and src may overlap exactly
// (in-place transform), matching how the connection applies it to a
// buffer it just read or is about to write.
func (c *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("cryptostream: dst shorter than src")
	}

	keystream := make([]byte, c.blockSize)

	for i, in := range src {
		c.block.Encrypt(keystream, c.register)

		out := in ^ keystream[0]
		dst[i] = out

		// Shift the register left one byte and append the byte that
		// feeds back into it: ciphertext on both sides, since the
		// ciphertext byte is what the peer will shift in too.
		var fedBack byte
		if c.encrypt {
			fedBack = out
		} else {
			fedBack = in
		}

		copy(c.register, c.register[1:])
		c.register[c.blockSize-1] = fedBack
	}
}
