package ncm

import (
	"bytes"
	"testing"

	"golang.org/x/exp/rand"
)

func randomKey(rnd *rand.Rand) []byte {
	key := make([]byte, 1+rnd.Intn(64))
	rnd.Read(key)
	return key
}

func TestKeyScheduleDeterministic(t *testing.T) {
	seed := rand.Uint64()
	t.Logf("seed = %d", seed)
	rnd := rand.New(rand.NewSource(seed))

	for round := 0; round < 10; round++ {
		key := randomKey(rnd)
		a, b := keySchedule(key), keySchedule(key)
		if a != b {
			t.Fatalf("schedule of identical key diverged (key len %d)", len(key))
		}
	}
}

func TestKeyScheduleBijection(t *testing.T) {
	seed := rand.Uint64()
	t.Logf("seed = %d", seed)
	rnd := rand.New(rand.NewSource(seed))

	keys := [][]byte{
		{0x00},
		{0xff},
		bytes.Repeat([]byte{0x41}, 16),
	}
	for round := 0; round < 20; round++ {
		keys = append(keys, randomKey(rnd))
	}

	for _, key := range keys {
		table := keySchedule(key)

		var seen [256]bool
		for _, v := range table {
			if seen[v] {
				t.Fatalf("value %#x appears twice for key %x", v, key)
			}
			seen[v] = true
		}
	}
}

// The flattened page must reproduce the double table lookup applied to each
// payload position: with j = (i+1) mod 256, the XOR byte for position i is
// table[(table[j] + table[(table[j]+j) mod 256]) mod 256].
func TestKeyBoxPageMatchesTableLookup(t *testing.T) {
	seed := rand.Uint64()
	t.Logf("seed = %d", seed)
	rnd := rand.New(rand.NewSource(seed))

	key := randomKey(rnd)
	table := keySchedule(key)
	box := newKeyBox(key)

	for i := 0; i < 256; i++ {
		j := (i + 1) & 0xff
		want := table[(int(table[j])+int(table[(int(table[j])+j)&0xff]))&0xff]
		if box.page[i] != want {
			t.Fatalf("page[%d] = %#x, wanted %#x", i, box.page[i], want)
		}
	}
}

func TestKeyBoxApplySelfInverse(t *testing.T) {
	seed := rand.Uint64()
	t.Logf("seed = %d", seed)
	rnd := rand.New(rand.NewSource(seed))

	box := newKeyBox(randomKey(rnd))

	plain := make([]byte, 1000)
	rnd.Read(plain)

	buf := bytes.Clone(plain)
	box.Apply(buf, 0)
	if bytes.Equal(buf, plain) {
		t.Fatalf("keystream left the buffer unchanged")
	}
	box.Apply(buf, 0)
	if !bytes.Equal(buf, plain) {
		t.Fatalf("double application did not restore the plaintext")
	}
}

// Splitting the payload at 256-aligned boundaries must not change the
// stream: one pass over the whole buffer equals two passes over its halves
// with matching offsets.
func TestKeyBoxApplySplitMatchesWhole(t *testing.T) {
	seed := rand.Uint64()
	t.Logf("seed = %d", seed)
	rnd := rand.New(rand.NewSource(seed))

	box := newKeyBox(randomKey(rnd))

	data := make([]byte, 1024)
	rnd.Read(data)

	whole := bytes.Clone(data)
	box.Apply(whole, 0)

	split := bytes.Clone(data)
	box.Apply(split[:512], 0)
	box.Apply(split[512:], 512)

	if !bytes.Equal(whole, split) {
		t.Fatalf("split application diverged from single pass")
	}
}
