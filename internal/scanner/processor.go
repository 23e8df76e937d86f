package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pemistahl/lingua-go"
	"github.com/sirupsen/logrus"

	"auralis/internal/models"
)

// unknownArtist is emitted when a file has no album-artist and no artist
// tag at all (spec §4.4 step 6).
const unknownArtist = "Unknown Artist"

// IncrementalLookup resolves the stored `created` timestamp of an existing
// song row, for the incremental-scan skip check in spec §4.4 step 3.
type IncrementalLookup interface {
	SongCreatedAt(ctx context.Context, id string) (t time.Time, found bool, err error)
}

// Processor turns one WalkTask into the UpsertMessages it implies.
// Grounded on original_source/src/scanner/scanner.rs's process_task,
// ensure_artist, ensure_genre, and ensure_album (the canonical, channel-
// based processor named in spec §9's open question).
type Processor struct {
	Tags          TagReader
	Incremental   bool
	Lookup        IncrementalLookup
	Detector      lingua.LanguageDetector
	CoverCacheDir string
}

// Process computes the messages one WalkTask implies. It never touches the
// database beyond the optional incremental lookup; all writes go through
// the returned BatchMsg to the Flusher (spec §4.4, §9 "processors never
// touch the DB; they produce data only").
func (p Processor) Process(ctx context.Context, task WalkTask) (UpsertMessage, error) {
	id := songOrDirID(task.Folder.ID, task.Path, task.Folder.Path)
	parent := parentID(task.Folder.ID, task.Path, task.Folder.Path)

	var msgs []UpsertMessage
	msgs = append(msgs, SeenMsg{ID: id})

	if task.IsDir {
		msgs = append(msgs, SongMsg{Song: models.Child{
			ID:            id,
			Parent:        parent,
			IsDir:         true,
			Title:         task.Name,
			Path:          task.Path,
			MusicFolderID: task.Folder.ID,
		}})
		return BatchMsg{Items: msgs}, nil
	}

	if p.Incremental && p.Lookup != nil {
		created, found, err := p.Lookup.SongCreatedAt(ctx, id)
		if err != nil {
			logrus.WithFields(logrus.Fields{"id": id, "err": err}).Warn("incremental lookup failed, processing file anyway")
		} else if found && !task.ModTime.After(created) {
			return BatchMsg{Items: msgs}, nil
		}
	}

	tags, err := p.Tags.Read(ctx, task.Path)
	if err != nil {
		logrus.WithFields(logrus.Fields{"path": task.Path, "err": err}).Warn("tag read failed, falling back to filename")
		tags = Tags{Title: task.Name}
	}

	song := models.Child{
		ID:            id,
		Parent:        parent,
		IsDir:         false,
		Title:         firstNonEmpty(tags.Title, task.Name),
		Path:          task.Path,
		Size:          task.Size,
		Suffix:        task.Ext,
		ContentType:   contentType(task.Ext),
		Track:         tags.Track,
		Disc:          tags.Disc,
		Year:          tags.Year,
		Duration:      tags.Duration,
		BitRate:       tags.BitRate,
		MusicFolderID: task.Folder.ID,
		Created:       task.ModTime,
		HasImage:      tags.HasImage,
	}

	relations := SongRelations{SongID: id}

	artists := filterNonEmpty(tags.Artists)
	for _, name := range artists {
		aid := p.ensureArtist(name, &msgs)
		relations.Artists = append(relations.Artists, aid)
	}

	albumArtists := filterNonEmpty(tags.AlbumArtists)
	if len(albumArtists) == 0 {
		albumArtists = []string{unknownArtist}
	}

	if strings.TrimSpace(tags.Album) != "" {
		aid := p.ensureAlbum(tags.Album, albumArtists, tags.Year, filterNonEmpty(tags.Genres), task.ModTime, &msgs)
		song.AlbumID = &aid
	}

	if tags.HasImage {
		coverID := id
		if song.AlbumID != nil {
			coverID = "al-" + *song.AlbumID
		}
		if err := p.writeCoverCache(task.Path, coverID); err != nil {
			logrus.WithFields(logrus.Fields{"path": task.Path, "err": err}).Warn("cover cache write failed")
		}
	}

	for _, name := range filterNonEmpty(tags.Genres) {
		gname := p.ensureGenre(name, &msgs)
		relations.Genres = append(relations.Genres, gname)
	}

	if lyrics := strings.TrimSpace(tags.Lyrics); lyrics != "" {
		l := &models.Lyrics{SongID: id, Content: lyrics}
		if lang := p.detectLanguage(lyrics); lang != "" {
			l.Language = &lang
		}
		relations.Lyrics = l
	}

	msgs = append(msgs, SongMsg{Song: song}, SongRelationsMsg{Relations: relations})

	return BatchMsg{Items: msgs}, nil
}

// writeCoverCache extracts path's embedded picture and writes it to
// CoverCacheDir/coverID, with no file extension, skipping the write if that
// file already exists. Grounded on original_source/src/scanner/scanner.rs's
// cover_cache_dir.join(&cover_art_id) write-if-absent step (spec §4.4 step 9,
// §6); a no-op when CoverCacheDir is unset.
func (p Processor) writeCoverCache(path, coverID string) error {
	if p.CoverCacheDir == "" {
		return nil
	}

	dest := filepath.Join(p.CoverCacheDir, coverID)
	if _, err := os.Stat(dest); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	data, has, err := p.Tags.ReadImage(path)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}

	if err := os.MkdirAll(p.CoverCacheDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func (p Processor) ensureArtist(name string, msgs *[]UpsertMessage) string {
	id := artistID(name)
	*msgs = append(*msgs, ArtistMsg{Artist: models.Artist{ID: id, Name: name}})
	return id
}

func (p Processor) ensureGenre(name string, msgs *[]UpsertMessage) string {
	name = strings.TrimSpace(name)
	*msgs = append(*msgs, GenreMsg{Genre: models.Genre{Name: name}})
	return name
}

func (p Processor) ensureAlbum(name string, artistNames []string, year int, genres []string, created time.Time, msgs *[]UpsertMessage) string {
	joined := strings.Join(artistNames, "; ")
	id := albumID(joined, name)

	*msgs = append(*msgs, AlbumMsg{Album: models.Album{ID: id, Name: name, Created: created, Year: year}})

	rel := AlbumRelations{AlbumID: id}
	for _, a := range artistNames {
		rel.Artists = append(rel.Artists, p.ensureArtist(a, msgs))
	}
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g != "" {
			rel.Genres = append(rel.Genres, p.ensureGenre(g, msgs))
		}
	}

	*msgs = append(*msgs, AlbumRelationsMsg{Relations: rel})
	return id
}

// detectLanguage returns the ISO 639-1 code lingua-go is confident about,
// or "" when detection found no confident match (SPEC_FULL.md §3.1).
func (p Processor) detectLanguage(text string) string {
	if p.Detector == nil {
		return ""
	}
	lang, ok := p.Detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return lang.IsoCode639_1().String()
}

func filterNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
