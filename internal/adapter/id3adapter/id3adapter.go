package id3adapter

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/bogem/id3v2/v2"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/entity"
)

const (
	frameAlbum         = "Album/Movie/Show title"
	frameTrack         = "Track number/Position in set"
	frameRecordingTime = "Recording time"
)

type tagger struct {
	log *slog.Logger
}

func NewTagger(log *slog.Logger) *tagger {
	return &tagger{
		log: log.With(slog.String("item", "Tagger")),
	}
}

// Apply writes the non empty values of tags into the ID3v2 tag of path.
// The file is not rewritten when every frame already holds the wanted value.
func (t *tagger) Apply(path string, tags entity.Tags) error {
	if tags == (entity.Tags{}) {
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		kind := common.TagErrorWriteFailure
		if errors.Is(err, id3v2.ErrUnsupportedVersion) {
			kind = common.TagErrorUnsupportedFormat
		}

		return &common.TaggingError{Path: path, Kind: kind, Err: err}
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	var changed bool
	if tags.Album != "" {
		changed = setText(tag, frameAlbum, tags.Album) || changed
	}
	if tags.Track > 0 {
		changed = setText(tag, frameTrack, strconv.Itoa(tags.Track)) || changed
	}
	if tags.ReleaseDate != "" {
		changed = setText(tag, frameRecordingTime, tags.ReleaseDate) || changed
	}

	if !changed {
		return nil
	}

	if err := tag.Save(); err != nil {
		return &common.TaggingError{Path: path, Kind: common.TagErrorWriteFailure, Err: err}
	}

	t.log.Debug("Tagged", slog.String("path", path), slog.String("album", tags.Album), slog.Int("track", tags.Track))

	return nil
}

// setText replaces the frame unless it is the only one of its kind and already holds text.
func setText(tag *id3v2.Tag, description, text string) bool {
	id := tag.CommonID(description)
	if len(tag.GetFrames(id)) == 1 && tag.GetTextFrame(id).Text == text {
		return false
	}

	tag.DeleteFrames(id)
	tag.AddTextFrame(id, tag.DefaultEncoding(), text)

	return true
}
