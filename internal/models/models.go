// Package models holds the catalog row types the scanner produces and
// consumes. These mirror the "children" / "artists" / "albums" / ... tables
// described by the catalog schema; they carry only the columns the ingestion
// pipeline reads or writes, not the full Subsonic-serving column set.
package models

import "time"

// Child is a row in the combined songs-and-directories table. A directory
// row has IsDir=true and leaves the audio-only fields at their zero value.
type Child struct {
	ID             string
	Parent         *string
	IsDir          bool
	Title          string
	Path           string
	Size           int64
	Suffix         string
	ContentType    string
	Track          int
	Disc           int
	Year           int
	Duration       int
	BitRate        int
	AlbumID        *string
	MusicFolderID  int32
	Created        time.Time
	HasImage       bool
}

// Artist is a deduplicated, content-derived catalog entity.
type Artist struct {
	ID   string
	Name string
}

// Album is a deduplicated, content-derived catalog entity.
type Album struct {
	ID      string
	Name    string
	Created time.Time
	Year    int
}

// Genre is keyed by its natural name, not a synthetic id.
type Genre struct {
	Name string
}

// SongArtist is a many-to-many junction row between songs and artists.
type SongArtist struct {
	SongID   string
	ArtistID string
}

// SongGenre is a many-to-many junction row between songs and genres.
type SongGenre struct {
	SongID    string
	GenreName string
}

// AlbumArtist is a many-to-many junction row between albums and artists.
type AlbumArtist struct {
	AlbumID  string
	ArtistID string
}

// AlbumGenre is a many-to-many junction row between albums and genres.
type AlbumGenre struct {
	AlbumID   string
	GenreName string
}

// Lyrics holds the raw lyrics text embedded in a song, plus the best-guess
// language of that text (see SPEC_FULL.md §3.1). Language is nil when
// detection found no confident match.
type Lyrics struct {
	SongID   string
	Content  string
	Language *string
}

// MusicFolder is a configured scan root.
type MusicFolder struct {
	ID   int32
	Path string
	Name string
}
