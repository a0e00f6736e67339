// Package ncm parses and decrypts NCM music containers: a fixed header,
// an encrypted key block, an optional tag payload and cover image, then
// the keystream-encrypted audio payload.
package ncm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ncmdump"
)

const (
	headerLen    = 10
	checksumLen  = 9
	keyPrefixLen = 17

	keyMask  = 0x64
	metaMask = 0x63

	// blockSize must stay a multiple of 256 so the keystream page lines up
	// with the start of every payload block.
	blockSize = 0x8000
)

// File is a parsed container: key schedule initialized, metadata and cover
// decoded, reader positioned at the start of the encrypted audio payload.
type File struct {
	r      io.Reader
	closer io.Closer
	remain int64

	box    *keyBox
	meta   *Metadata
	cover  []byte
	offset int64
}

// Open opens the container at path and parses everything up to the audio
// payload.
func Open(path string) (*File, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed opening %s: %w", path, err)
	}

	info, err := ff.Stat()
	if err != nil {
		_ = ff.Close()
		return nil, fmt.Errorf("failed reading size of %s: %w", path, err)
	}

	f, err := NewFile(ff, info.Size())
	if err != nil {
		_ = ff.Close()
		return nil, err
	}

	f.closer = ff
	return f, nil
}

// NewFile parses a container from r, whose total length is size bytes.
func NewFile(r io.Reader, size int64) (*File, error) {
	f := &File{r: r, remain: size}
	if err := f.parse(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *File) parse() error {
	if err := f.skip(headerLen, "header"); err != nil {
		return err
	}

	keyBlock, err := f.readBlock("key")
	if err != nil {
		return err
	}

	material, err := deriveKeyMaterial(keyBlock)
	if err != nil {
		return err
	}

	f.box = newKeyBox(material[keyPrefixLen:])

	metaBlock, err := f.readBlock("metadata")
	if err != nil {
		return err
	}

	if len(metaBlock) > 0 {
		if f.meta, err = decodeMetadata(metaBlock); err != nil {
			return err
		}
	}

	if err := f.skip(checksumLen, "checksum"); err != nil {
		return err
	}

	if f.cover, err = f.readBlock("cover image"); err != nil {
		return err
	}

	return nil
}

// readBlock reads a 4-byte little-endian length followed by that many
// bytes. A zero length yields a nil block.
func (f *File) readBlock(what string) ([]byte, error) {
	var lenBuf [4]byte
	if err := f.readFull(lenBuf[:], what); err != nil {
		return nil, err
	}

	n := int64(binary.LittleEndian.Uint32(lenBuf[:]))
	if n == 0 {
		return nil, nil
	} else if n > f.remain {
		return nil, fmt.Errorf("%w: %s block length %d exceeds remaining %d bytes", ncmdump.ErrFormat, what, n, f.remain)
	}

	buf := make([]byte, n)
	if err := f.readFull(buf, what); err != nil {
		return nil, err
	}

	return buf, nil
}

func (f *File) readFull(buf []byte, what string) error {
	if int64(len(buf)) > f.remain {
		return fmt.Errorf("%w: truncated %s block", ncmdump.ErrFormat, what)
	}

	if _, err := io.ReadFull(f.r, buf); err != nil {
		return fmt.Errorf("%w: truncated %s block: %s", ncmdump.ErrFormat, what, err)
	}

	f.remain -= int64(len(buf))
	return nil
}

func (f *File) skip(n int64, what string) error {
	if n > f.remain {
		return fmt.Errorf("%w: container truncated at %s", ncmdump.ErrFormat, what)
	}

	if _, err := io.CopyN(io.Discard, f.r, n); err != nil {
		return fmt.Errorf("%w: failed skipping %s: %s", ncmdump.ErrFormat, what, err)
	}

	f.remain -= n
	return nil
}

func deriveKeyMaterial(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, fmt.Errorf("%w: empty key block", ncmdump.ErrFormat)
	}

	xorMask(block, keyMask)

	dec, err := decryptECB(coreKey, block)
	if err != nil {
		return nil, fmt.Errorf("failed decrypting key block: %w", err)
	}

	dec, err = Unpad(dec)
	if err != nil {
		return nil, fmt.Errorf("failed unpadding key block: %w", err)
	}

	if len(dec) <= keyPrefixLen {
		return nil, fmt.Errorf("%w: key material too short (%d bytes)", ncmdump.ErrFormat, len(dec))
	}

	return dec, nil
}

// Metadata returns the decoded tag payload, or nil when the container does
// not carry one.
func (f *File) Metadata() *Metadata { return f.meta }

// Cover returns the embedded cover image bytes, or nil when absent.
func (f *File) Cover() []byte { return f.cover }

// Extension returns the audio format declared in the metadata, suitable as
// a file extension.
func (f *File) Extension() (string, error) {
	if f.meta == nil || f.meta.Format == "" {
		return "", fmt.Errorf("%w: no format declared in metadata", ncmdump.ErrFormat)
	}

	return f.meta.Format, nil
}

// WriteTo decrypts the audio payload and streams it to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, blockSize)

	var written int64
	for {
		n, err := io.ReadFull(f.r, buf)
		if n > 0 {
			f.box.Apply(buf[:n], f.offset)
			f.offset += int64(n)

			nn, err := w.Write(buf[:n])
			written += int64(nn)
			if err != nil {
				return written, fmt.Errorf("failed writing audio stream: %w", err)
			}
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return written, nil
		} else if err != nil {
			return written, fmt.Errorf("failed reading audio stream: %w", err)
		}
	}
}

func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}

	return f.closer.Close()
}

// DumpResult describes the files produced for one container.
type DumpResult struct {
	AudioPath string
	CoverPath string
	Meta      *Metadata
}

// DumpFile decrypts the container at src and writes the audio payload to
// stem plus the extension declared in the metadata. An embedded cover
// image lands next to it as stem + ".jpg". When the dump fails no partial
// audio file is left behind, although an already written cover may remain.
func DumpFile(src, stem string) (*DumpResult, error) {
	f, err := Open(src)
	if err != nil {
		return nil, err
	}

	defer func() { _ = f.Close() }()

	ext, err := f.Extension()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(stem); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed creating output directory: %w", err)
		}
	}

	res := &DumpResult{AudioPath: stem + "." + ext, Meta: f.Metadata()}

	if cover := f.Cover(); len(cover) > 0 {
		res.CoverPath = stem + ".jpg"
		if err := os.WriteFile(res.CoverPath, cover, 0644); err != nil {
			return nil, fmt.Errorf("failed writing cover image: %w", err)
		}
	}

	out, err := os.Create(res.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("failed creating audio file: %w", err)
	}

	if _, err := f.WriteTo(out); err != nil {
		_ = out.Close()
		_ = os.Remove(res.AudioPath)
		return nil, err
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(res.AudioPath)
		return nil, fmt.Errorf("failed closing audio file: %w", err)
	}

	return res, nil
}
