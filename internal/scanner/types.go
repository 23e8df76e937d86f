package scanner

import (
	"time"

	"auralis/internal/models"
)

// WalkTask is one entry (directory or audio file) produced by a Walker.
// Grounded on original_source/src/scanner/walker.rs's WalkTask.
type WalkTask struct {
	Path    string
	IsDir   bool
	Name    string
	Ext     string
	Size    int64
	ModTime time.Time
	Folder  models.MusicFolder
}

// Tags is the normalized record a TagReader produces for one audio file.
// Grounded on original_source/src/scanner/tags.rs's Tags struct.
type Tags struct {
	Title        string
	Artists      []string
	Album        string
	AlbumArtists []string
	Track        int
	Disc         int
	Year         int
	Genres       []string
	Lyrics       string
	Duration     int
	BitRate      int
	HasImage     bool
}

// SongRelations bundles the junction rows one song emits, plus its lyrics.
// Grounded on original_source/src/scanner/types.rs's SongRelations.
type SongRelations struct {
	SongID  string
	Artists []string
	Genres  []string
	Lyrics  *models.Lyrics
}

// AlbumRelations bundles the junction rows one album emits.
type AlbumRelations struct {
	AlbumID string
	Artists []string
	Genres  []string
}

// UpsertMessage is the sum type the Processor sends to the Flusher.
// Grounded on original_source/src/scanner/types.rs's UpsertMessage enum;
// Go has no tagged union, so each Rust variant becomes one message struct
// implementing the marker interface, and the flusher's dispatch type-switches
// on it exactly as the Rust match does.
type UpsertMessage interface {
	isUpsertMessage()
}

type ArtistMsg struct{ Artist models.Artist }
type AlbumMsg struct{ Album models.Album }
type GenreMsg struct{ Genre models.Genre }
type SongMsg struct{ Song models.Child }
type SongRelationsMsg struct{ Relations SongRelations }
type AlbumRelationsMsg struct{ Relations AlbumRelations }
type SeenMsg struct{ ID string }

// FlushMsg is a barrier: the flusher force-flushes on the next cycle and
// closes Ack once that flush completes.
type FlushMsg struct{ Ack chan struct{} }

// BatchMsg lets a single producer describe everything needed for one file
// as one envelope; the flusher recursively flattens it on dispatch.
type BatchMsg struct{ Items []UpsertMessage }

func (ArtistMsg) isUpsertMessage()         {}
func (AlbumMsg) isUpsertMessage()          {}
func (GenreMsg) isUpsertMessage()          {}
func (SongMsg) isUpsertMessage()           {}
func (SongRelationsMsg) isUpsertMessage()  {}
func (AlbumRelationsMsg) isUpsertMessage() {}
func (SeenMsg) isUpsertMessage()           {}
func (FlushMsg) isUpsertMessage()          {}
func (BatchMsg) isUpsertMessage()          {}
