// Package tagging embeds the extracted cover image and container metadata
// into the produced audio files.
package tagging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture/v2"
	"github.com/go-flac/flacvorbis/v2"
	"github.com/go-flac/go-flac/v2"

	"ncmdump"
	"ncmdump/ncm"
)

// EmbedCover writes the cover image at coverPath, plus the basic tags from
// meta, into the audio file at path. The cover file is removed once it is
// embedded. Formats other than mp3 and flac are left untouched.
func EmbedCover(log ncmdump.Logger, path, coverPath string, meta *ncm.Metadata) error {
	cover, err := os.ReadFile(coverPath)
	if err != nil {
		return fmt.Errorf("failed reading cover image: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		err = embedMP3(path, cover, meta)
	case ".flac":
		err = embedFLAC(path, cover, meta)
	default:
		log.Debugf("no cover embedding for %s files", filepath.Ext(path))
		return nil
	}
	if err != nil {
		return err
	}

	if err := os.Remove(coverPath); err != nil {
		log.WithError(err).Warnf("failed removing embedded cover %s", coverPath)
	}

	return nil
}

func coverMIME(cover []byte) string {
	if bytes.HasPrefix(cover, []byte{0x89, 'P', 'N', 'G'}) {
		return "image/png"
	}

	return "image/jpeg"
}

func embedMP3(path string, cover []byte, meta *ncm.Metadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed opening id3 tag: %w", err)
	}

	defer func() { _ = tag.Close() }()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if meta != nil {
		if meta.MusicName != "" {
			tag.SetTitle(meta.MusicName)
		}
		if meta.Album != "" {
			tag.SetAlbum(meta.Album)
		}
		if names := meta.ArtistNames(); len(names) > 0 {
			tag.SetArtist(strings.Join(names, "/"))
		}
	}

	tag.DeleteFrames(tag.CommonID("Attached picture"))
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    coverMIME(cover),
		PictureType: id3v2.PTFrontCover,
		Description: "Front Cover",
		Picture:     cover,
	})

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed saving id3 tag: %w", err)
	}

	return nil
}

func embedFLAC(path string, cover []byte, meta *ncm.Metadata) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed parsing flac: %w", err)
	}

	// Drop existing pictures, keep everything else. The first vorbis
	// comment block is carried over so stream tags survive.
	var comments *flacvorbis.MetaDataBlockVorbisComment
	var kept []*flac.MetaDataBlock
	for _, block := range f.Meta {
		switch block.Type {
		case flac.Picture:
		case flac.VorbisComment:
			if comments == nil {
				if comments, err = flacvorbis.ParseFromMetaDataBlock(*block); err != nil {
					return fmt.Errorf("failed parsing vorbis comments: %w", err)
				}
			}
		default:
			kept = append(kept, block)
		}
	}

	if comments == nil {
		comments = flacvorbis.New()
	}

	if meta != nil {
		if err := setComment(comments, flacvorbis.FIELD_TITLE, meta.MusicName); err != nil {
			return err
		}
		if err := setComment(comments, flacvorbis.FIELD_ALBUM, meta.Album); err != nil {
			return err
		}

		if existing, err := comments.Get(flacvorbis.FIELD_ARTIST); err != nil {
			return fmt.Errorf("failed reading artist comments: %w", err)
		} else if len(existing) == 0 {
			for _, name := range meta.ArtistNames() {
				if err := comments.Add(flacvorbis.FIELD_ARTIST, name); err != nil {
					return fmt.Errorf("failed adding artist comment: %w", err)
				}
			}
		}
	}

	cmtBlock := comments.Marshal()
	kept = append(kept, &cmtBlock)

	pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front Cover", cover, coverMIME(cover))
	if err != nil {
		return fmt.Errorf("failed building picture block: %w", err)
	}

	picBlock := pic.Marshal()
	kept = append(kept, &picBlock)

	f.Meta = kept
	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed saving flac: %w", err)
	}

	return nil
}

// setComment adds the field only when the stream does not already carry
// it, existing tags win over container metadata.
func setComment(comments *flacvorbis.MetaDataBlockVorbisComment, key, val string) error {
	if val == "" {
		return nil
	}

	if existing, err := comments.Get(key); err != nil {
		return fmt.Errorf("failed reading %s comment: %w", key, err)
	} else if len(existing) > 0 {
		return nil
	}

	if err := comments.Add(key, val); err != nil {
		return fmt.Errorf("failed adding %s comment: %w", key, err)
	}

	return nil
}
