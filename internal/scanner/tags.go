package scanner

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dhowden/tag"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// TagReader extracts a normalized Tags record from an audio file. Grounded
// on the teacher's tag.ReadFrom usage (internal/services/scanner.go's
// ingestFile) for metadata and on original_source/src/scanner/tags.rs for
// the multi-value splitting contract (spec §4.2).
type TagReader struct {
	FFprobePath string
}

// Read extracts tags from path. On failure the caller falls back to a
// filename-derived title with empty other fields (spec §4.2).
func (r TagReader) Read(ctx context.Context, path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, err
	}

	t := Tags{
		Title: strings.TrimSpace(m.Title()),
	}

	track, _ := m.Track()
	disc, _ := m.Disc()
	t.Track = track
	t.Disc = disc
	t.Year = m.Year()
	t.Lyrics = strings.TrimSpace(m.Lyrics())
	t.HasImage = m.Picture() != nil

	t.Artists = multiValue(m.Raw(), "artists", m.Artist())
	albumArtists := multiValue(m.Raw(), "album_artist", m.AlbumArtist())
	if len(albumArtists) == 0 {
		albumArtists = t.Artists
	}
	t.AlbumArtists = albumArtists
	t.Album = strings.TrimSpace(m.Album())
	t.Genres = multiValue(m.Raw(), "genre", m.Genre())

	if dur, bitrate, err := r.probe(ctx, path); err == nil {
		t.Duration = dur
		t.BitRate = bitrate
	}

	return t, nil
}

// multiValue implements spec §4.2's "(a) read any multi-value tag key,
// else (b) split a single-value string on ';' and trim" rule. dhowden/tag
// exposes repeated vorbis-comment-style keys as a []string in Raw(); other
// containers fall through to the single string accessor.
func multiValue(raw map[string]interface{}, rawKey, single string) []string {
	if v, ok := raw[rawKey]; ok {
		switch vv := v.(type) {
		case []string:
			out := make([]string, 0, len(vv))
			for _, s := range vv {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if parts := splitTag(vv); len(parts) > 0 {
				return parts
			}
		}
	}
	return splitTag(single)
}

// probe fills in duration/bit rate via ffprobe, since dhowden/tag does not
// reliably expose audio properties across containers (SPEC_FULL.md §4.2).
func (r TagReader) probe(ctx context.Context, path string) (durationSeconds int, bitRate int, err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return 0, 0, err
	}

	durationSeconds = int(data.Format.DurationSeconds)

	if stream := data.GetFirstAudioStream(); stream != nil {
		if br, convErr := strconv.Atoi(stream.BitRate); convErr == nil {
			bitRate = br
		}
	} else if br, convErr := strconv.Atoi(data.Format.BitRate); convErr == nil {
		bitRate = br
	}

	return durationSeconds, bitRate, nil
}

// ReadImage returns the embedded cover bytes, if any. Called by
// Processor.writeCoverCache for the cover-cache write step (spec §4.4 step
// 9).
func (r TagReader) ReadImage(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, false, err
	}

	pic := m.Picture()
	if pic == nil {
		return nil, false, nil
	}
	return pic.Data, true, nil
}
