package scanner

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/sirupsen/logrus"

	"auralis/internal/models"
)

// searchDocument mirrors the teacher's internal/search/search.go
// SearchDocument shape, trimmed to the fields this pipeline can populate
// without a second DB round-trip per document.
type searchDocument struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Year   int    `json:"year,omitempty"`
}

// SearchIndex mirrors every Song/Album/Artist UPSERT into a bleve index, so
// a future query surface can read it. Indexing failures are logged and
// never fail a scan (SPEC_FULL.md §6.3) — it is enrichment, not part of the
// pipeline's transactional contract.
type SearchIndex struct {
	index bleve.Index
}

// OpenSearchIndex opens or creates a bleve index at path, grounded on the
// teacher's internal/search/search.go createSearchIndex field mapping.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	index, err := bleve.Open(path)
	if err == nil {
		return &SearchIndex{index: index}, nil
	}

	mapping := bleve.NewIndexMapping()
	index, err = bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

func (si *SearchIndex) Close() error {
	if si == nil || si.index == nil {
		return nil
	}
	return si.index.Close()
}

func (si *SearchIndex) IndexSong(song models.Child) {
	if si == nil {
		return
	}
	doc := searchDocument{ID: "song_" + song.ID, Type: "song", Name: song.Title, Year: song.Year}
	if err := si.index.Index(doc.ID, doc); err != nil {
		logrus.WithFields(logrus.Fields{"id": song.ID, "err": err}).Warn("search index: song skipped")
	}
}

func (si *SearchIndex) IndexAlbum(album models.Album) {
	if si == nil {
		return
	}
	doc := searchDocument{ID: "album_" + album.ID, Type: "album", Name: album.Name, Year: album.Year}
	if err := si.index.Index(doc.ID, doc); err != nil {
		logrus.WithFields(logrus.Fields{"id": album.ID, "err": err}).Warn("search index: album skipped")
	}
}

func (si *SearchIndex) IndexArtist(artist models.Artist) {
	if si == nil {
		return
	}
	doc := searchDocument{ID: "artist_" + artist.ID, Type: "artist", Name: artist.Name}
	if err := si.index.Index(doc.ID, doc); err != nil {
		logrus.WithFields(logrus.Fields{"id": artist.ID, "err": err}).Warn("search index: artist skipped")
	}
}
