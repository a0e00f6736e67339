package ncm

import (
	"crypto/aes"
	"fmt"

	"ncmdump"
)

// Unpad strips PKCS#7 padding from data and returns the unpadded prefix.
// The final byte holds the padding length v; the padding is valid only when
// 1 <= v <= 16, v does not exceed the buffer, and the last v bytes all
// equal v. Both the key block and the metadata block go through this after
// decryption.
func Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty padded buffer", ncmdump.ErrCrypto)
	}

	v := int(data[len(data)-1])
	if v < 1 || v > aes.BlockSize || v > len(data) {
		return nil, fmt.Errorf("%w: invalid padding length %d", ncmdump.ErrCrypto, v)
	}

	for _, b := range data[len(data)-v:] {
		if int(b) != v {
			return nil, fmt.Errorf("%w: inconsistent padding bytes", ncmdump.ErrCrypto)
		}
	}

	return data[:len(data)-v], nil
}

// Pad returns data extended with PKCS#7 padding to the next multiple of the
// AES block size. A full padding block is appended when data is already
// aligned.
func Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}
