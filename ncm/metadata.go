package ncm

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"ncmdump"
)

var (
	metaPrefix        = []byte("163 key(Don't modify):")
	metaPayloadPrefix = []byte("music:")
)

// Metadata is the tag payload embedded in a container. Fields mirror the
// JSON document, artists come as [name, id] pairs.
type Metadata struct {
	MusicID   int64           `json:"musicId"`
	MusicName string          `json:"musicName"`
	Artist    [][]interface{} `json:"artist"`
	AlbumID   int64           `json:"albumId"`
	Album     string          `json:"album"`
	AlbumPic  string          `json:"albumPic"`
	Bitrate   int             `json:"bitrate"`
	Duration  int64           `json:"duration"`
	Format    string          `json:"format"`
	Alias     []string        `json:"alias"`
}

// ArtistNames returns the artist names in declaration order, skipping
// entries that do not carry a name.
func (m *Metadata) ArtistNames() []string {
	var names []string
	for _, pair := range m.Artist {
		if len(pair) == 0 {
			continue
		}

		if name, ok := pair[0].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func decodeMetadata(raw []byte) (*Metadata, error) {
	xorMask(raw, metaMask)

	if !bytes.HasPrefix(raw, metaPrefix) {
		return nil, fmt.Errorf("%w: missing metadata prefix", ncmdump.ErrFormat)
	}

	enc, err := base64.StdEncoding.DecodeString(string(raw[len(metaPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata is not valid base64: %s", ncmdump.ErrFormat, err)
	}

	dec, err := decryptECB(metaKey, enc)
	if err != nil {
		return nil, fmt.Errorf("failed decrypting metadata: %w", err)
	}

	dec, err = Unpad(dec)
	if err != nil {
		return nil, fmt.Errorf("failed unpadding metadata: %w", err)
	}

	if !bytes.HasPrefix(dec, metaPayloadPrefix) {
		return nil, fmt.Errorf("%w: missing metadata payload prefix", ncmdump.ErrFormat)
	}

	var meta Metadata
	if err := json.Unmarshal(dec[len(metaPayloadPrefix):], &meta); err != nil {
		return nil, fmt.Errorf("%w: malformed metadata document: %s", ncmdump.ErrFormat, err)
	}

	return &meta, nil
}
