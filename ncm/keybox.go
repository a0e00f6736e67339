package ncm

// keyBox holds the flattened 256-byte XOR page derived from the container
// key. Payload byte at position p is decrypted by XORing page[p mod 256],
// equivalent to the per-block double table lookup for every block size
// that is a multiple of 256.
type keyBox struct {
	page [256]byte
}

// keySchedule permutes an identity table with the key bytes. The key must
// be non-empty; the table stays a bijection over [0,255] throughout, every
// round swaps two entries.
func keySchedule(key []byte) [256]byte {
	var table [256]byte
	for i := range table {
		table[i] = byte(i)
	}

	var last byte
	var offset int
	for i := 0; i < 256; i++ {
		swap := table[i]
		c := swap + last + key[offset]
		offset = (offset + 1) % len(key)
		table[i] = table[c]
		table[c] = swap
		last = c
	}
	return table
}

func newKeyBox(key []byte) *keyBox {
	table := keySchedule(key)

	b := &keyBox{}
	for i := 0; i < 256; i++ {
		j := byte(i + 1)
		sj := table[j]
		sk := table[j+sj]
		b.page[i] = table[sj+sk]
	}
	return b
}

// Apply XORs the keystream over buf in place, offset being the position of
// buf[0] within the audio payload.
func (b *keyBox) Apply(buf []byte, offset int64) {
	for i := range buf {
		buf[i] ^= b.page[(offset+int64(i))&0xff]
	}
}
