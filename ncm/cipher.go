package ncm

import (
	"crypto/aes"
	"fmt"

	"ncmdump"
)

// The two fixed AES-128 keys of the container format: coreKey unlocks the
// key block, metaKey the metadata block.
var (
	coreKey = []byte{0x68, 0x7a, 0x48, 0x52, 0x41, 0x6d, 0x73, 0x6f, 0x35, 0x6b, 0x49, 0x6e, 0x62, 0x61, 0x78, 0x57}
	metaKey = []byte{0x23, 0x31, 0x34, 0x6c, 0x6a, 0x6b, 0x5f, 0x21, 0x5c, 0x5d, 0x26, 0x30, 0x55, 0x3c, 0x27, 0x28}
)

// decryptECB decrypts data under AES-128 in ECB mode, block by block with
// no chaining and no padding handling. Padding is stripped separately by
// Unpad.
func decryptECB(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ncmdump.ErrCrypto, err)
	}

	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ncmdump.ErrCrypto, len(data))
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out, nil
}

// xorMask applies the single-byte obfuscation mask in place.
func xorMask(data []byte, mask byte) {
	for i := range data {
		data[i] ^= mask
	}
}
