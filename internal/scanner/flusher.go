package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"auralis/internal/models"
)

// chunkSize bounds the rows queued into one pgx.Batch, mirroring
// original_source/src/scanner/flusher.rs's CHUNK_SIZE. Each row is its own
// single-row INSERT inside the batch, so the per-statement parameter count
// is the table's column count (at most 17, for children).
const chunkSize = 500

// Per-kind buffer size thresholds (spec §4.5).
const (
	thresholdArtists        = 100
	thresholdGenres         = 50
	thresholdAlbums         = 100
	thresholdSongs          = 100
	thresholdSongRelations  = 100
	thresholdAlbumRelations = 100
	thresholdSeen           = 500
)

const flushInterval = 500 * time.Millisecond

// execer is the subset of *pgxpool.Pool the flusher needs; an interface so
// tests can substitute a fake without a live Postgres instance.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// buffers holds one slice per message kind, owned exclusively by the
// flusher goroutine — no locks, per spec §5 ("single task owning all write
// buffers").
type buffers struct {
	artists        []models.Artist
	albums         []models.Album
	genres         []models.Genre
	songs          []models.Child
	songRelations  []SongRelations
	albumRelations []AlbumRelations
	seenIDs        []string
	forceFlush     bool
	flushAck       chan struct{}
}

func (b *buffers) hasData() bool {
	return len(b.artists) > 0 || len(b.genres) > 0 || len(b.albums) > 0 ||
		len(b.songs) > 0 || len(b.songRelations) > 0 || len(b.albumRelations) > 0 ||
		len(b.seenIDs) > 0
}

func (b *buffers) anyThresholdReached() bool {
	return len(b.artists) >= thresholdArtists ||
		len(b.genres) >= thresholdGenres ||
		len(b.albums) >= thresholdAlbums ||
		len(b.songs) >= thresholdSongs ||
		len(b.songRelations) >= thresholdSongRelations ||
		len(b.albumRelations) >= thresholdAlbumRelations ||
		len(b.seenIDs) >= thresholdSeen
}

// shouldFlush implements testable property 3 (spec §8): flush when any
// threshold is reached, or the timer is overdue with data buffered, or a
// Flush barrier forced it.
func shouldFlush(b *buffers, overdue bool) bool {
	return b.anyThresholdReached() || (overdue && b.hasData()) || b.forceFlush
}

// dispatch routes msg into its buffer, recursively flattening Batch and
// recording a Flush barrier's force flag and ack channel. Grounded
// verbatim on original_source/src/scanner/flusher.rs's dispatch.
func dispatch(msg UpsertMessage, b *buffers) {
	switch m := msg.(type) {
	case ArtistMsg:
		b.artists = append(b.artists, m.Artist)
	case AlbumMsg:
		b.albums = append(b.albums, m.Album)
	case GenreMsg:
		b.genres = append(b.genres, m.Genre)
	case SongMsg:
		b.songs = append(b.songs, m.Song)
	case SongRelationsMsg:
		b.songRelations = append(b.songRelations, m.Relations)
	case AlbumRelationsMsg:
		b.albumRelations = append(b.albumRelations, m.Relations)
	case SeenMsg:
		b.seenIDs = append(b.seenIDs, m.ID)
	case FlushMsg:
		b.forceFlush = true
		b.flushAck = m.Ack
	case BatchMsg:
		for _, item := range m.Items {
			dispatch(item, b)
		}
	}
}

// sortSongsForInsert sorts in place: directories first, then ascending path
// length, so a parent directory always precedes its descendants within one
// INSERT batch (spec §4.5's self-referencing-parent rule; testable
// property 4).
func sortSongsForInsert(songs []models.Child) {
	sort.SliceStable(songs, func(i, j int) bool {
		if songs[i].IsDir != songs[j].IsDir {
			return songs[i].IsDir
		}
		return len(songs[i].Path) < len(songs[j].Path)
	})
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	var out [][]T
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// Flusher is the single consumer of the UpsertMessage channel. Grounded on
// original_source/src/scanner/flusher.rs's run_flusher.
type Flusher struct {
	db     execer
	ch     chan UpsertMessage
	search *SearchIndex
}

func NewFlusher(db execer, capacity int) *Flusher {
	return &Flusher{db: db, ch: make(chan UpsertMessage, capacity)}
}

// WithSearchIndex attaches an optional bleve index that mirrors every
// committed Artist/Album/Song row (SPEC_FULL.md §6.3).
func (f *Flusher) WithSearchIndex(si *SearchIndex) *Flusher {
	f.search = si
	return f
}

// Send delivers a message to the flusher, blocking if its channel is full
// (spec §4.1's back-pressure contract applies symmetrically here).
func (f *Flusher) Send(ctx context.Context, msg UpsertMessage) error {
	select {
	case f.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals no more producers will send; Run exits after its final
// flush once the channel drains (spec §4.5 "Termination").
func (f *Flusher) Close() {
	close(f.ch)
}

// Run is the flusher's main loop: select on the channel or a 500ms timer,
// non-blockingly drain whatever else is queued, decide whether to flush,
// and on Flush barriers ack once that cycle's writes land.
func (f *Flusher) Run(ctx context.Context) {
	var b buffers
	lastFlush := time.Now()
	timer := time.NewTimer(flushInterval)
	defer timer.Stop()

	for {
		b.forceFlush = false

		var closed bool
		select {
		case msg, ok := <-f.ch:
			if !ok {
				closed = true
			} else {
				dispatch(msg, &b)
			}
		case <-timer.C:
		case <-ctx.Done():
			return
		}

	drain:
		for {
			select {
			case msg, ok := <-f.ch:
				if !ok {
					closed = true
					break drain
				}
				dispatch(msg, &b)
			default:
				break drain
			}
		}

		overdue := time.Since(lastFlush) >= flushInterval || b.forceFlush

		if shouldFlush(&b, overdue) || (closed && b.hasData()) {
			f.flushCycle(ctx, &b)
			lastFlush = time.Now()
		}

		if (overdue || b.forceFlush) && b.flushAck != nil {
			close(b.flushAck)
			b.flushAck = nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(flushInterval)

		if closed {
			return
		}
	}
}

// flushCycle writes one pass through all per-kind buffers in the strict
// dependency order required by spec §4.5. A failure in any stage is logged
// and does not abort later stages (spec §7).
func (f *Flusher) flushCycle(ctx context.Context, b *buffers) {
	f.flushArtists(ctx, &b.artists)
	f.flushGenres(ctx, &b.genres)
	f.flushAlbums(ctx, &b.albums)
	f.flushSongs(ctx, &b.songs)
	f.flushSongRelations(ctx, &b.songRelations)
	f.flushAlbumRelations(ctx, &b.albumRelations)
	f.flushSeen(ctx, &b.seenIDs)
}

func (f *Flusher) flushArtists(ctx context.Context, buf *[]models.Artist) {
	if len(*buf) == 0 {
		return
	}
	items := *buf
	*buf = nil
	for _, part := range chunk(items, chunkSize) {
		batch := &pgx.Batch{}
		for _, a := range part {
			batch.Queue(`INSERT INTO artists (id, name) VALUES ($1, $2)
				ON CONFLICT (id) DO NOTHING`, a.ID, a.Name)
		}
		if err := f.sendBatch(ctx, batch, len(part)); err != nil {
			logrus.WithField("err", err).Error("flush artists failed")
			continue
		}
		for _, a := range part {
			f.search.IndexArtist(a)
		}
	}
}

func (f *Flusher) flushGenres(ctx context.Context, buf *[]models.Genre) {
	if len(*buf) == 0 {
		return
	}
	items := *buf
	*buf = nil
	for _, part := range chunk(items, chunkSize) {
		batch := &pgx.Batch{}
		for _, g := range part {
			batch.Queue(`INSERT INTO genres (name) VALUES ($1)
				ON CONFLICT (name) DO NOTHING`, g.Name)
		}
		if err := f.sendBatch(ctx, batch, len(part)); err != nil {
			logrus.WithField("err", err).Error("flush genres failed")
		}
	}
}

func (f *Flusher) flushAlbums(ctx context.Context, buf *[]models.Album) {
	if len(*buf) == 0 {
		return
	}
	items := *buf
	*buf = nil
	for _, part := range chunk(items, chunkSize) {
		batch := &pgx.Batch{}
		for _, a := range part {
			batch.Queue(`INSERT INTO albums (id, name, created, year) VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET year = EXCLUDED.year`, a.ID, a.Name, a.Created, a.Year)
		}
		if err := f.sendBatch(ctx, batch, len(part)); err != nil {
			logrus.WithField("err", err).Error("flush albums failed")
			continue
		}
		for _, a := range part {
			f.search.IndexAlbum(a)
		}
	}
}

func (f *Flusher) flushSongs(ctx context.Context, buf *[]models.Child) {
	if len(*buf) == 0 {
		return
	}
	items := *buf
	*buf = nil
	sortSongsForInsert(items)
	for _, part := range chunk(items, chunkSize) {
		batch := &pgx.Batch{}
		for _, s := range part {
			batch.Queue(`INSERT INTO children
					(id, parent, is_dir, title, path, size, suffix, content_type, track, disc_number, year, duration, bit_rate, album_id, music_folder_id, has_image, created)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
				ON CONFLICT (id) DO UPDATE SET
					parent = EXCLUDED.parent,
					title = EXCLUDED.title,
					path = EXCLUDED.path,
					size = EXCLUDED.size,
					suffix = EXCLUDED.suffix,
					content_type = EXCLUDED.content_type,
					track = EXCLUDED.track,
					disc_number = EXCLUDED.disc_number,
					year = EXCLUDED.year,
					duration = EXCLUDED.duration,
					bit_rate = EXCLUDED.bit_rate,
					album_id = EXCLUDED.album_id`,
				s.ID, s.Parent, s.IsDir, s.Title, s.Path, s.Size, s.Suffix, s.ContentType,
				s.Track, s.Disc, s.Year, s.Duration, s.BitRate, s.AlbumID, s.MusicFolderID, s.HasImage, s.Created)
		}
		if err := f.sendBatch(ctx, batch, len(part)); err != nil {
			logrus.WithField("err", err).Error("flush songs failed")
			continue
		}
		for _, s := range part {
			f.search.IndexSong(s)
		}
	}
}

func (f *Flusher) flushSongRelations(ctx context.Context, buf *[]SongRelations) {
	if len(*buf) == 0 {
		return
	}
	relations := *buf
	*buf = nil

	songIDs := make([]string, 0, len(relations))
	for _, r := range relations {
		songIDs = append(songIDs, r.SongID)
	}

	err := f.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM song_artists WHERE song_id = ANY($1)`, songIDs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM song_genres WHERE song_id = ANY($1)`, songIDs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM lyrics WHERE song_id = ANY($1)`, songIDs); err != nil {
			return err
		}

		var artists []models.SongArtist
		var genres []models.SongGenre
		var lyrics []models.Lyrics
		for _, r := range relations {
			for _, aid := range r.Artists {
				artists = append(artists, models.SongArtist{SongID: r.SongID, ArtistID: aid})
			}
			for _, g := range r.Genres {
				genres = append(genres, models.SongGenre{SongID: r.SongID, GenreName: g})
			}
			if r.Lyrics != nil {
				lyrics = append(lyrics, *r.Lyrics)
			}
		}

		for _, part := range chunk(artists, chunkSize) {
			batch := &pgx.Batch{}
			for _, sa := range part {
				batch.Queue(`INSERT INTO song_artists (song_id, artist_id) VALUES ($1,$2)
					ON CONFLICT DO NOTHING`, sa.SongID, sa.ArtistID)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
		}
		for _, part := range chunk(genres, chunkSize) {
			batch := &pgx.Batch{}
			for _, sg := range part {
				batch.Queue(`INSERT INTO song_genres (song_id, genre_name) VALUES ($1,$2)
					ON CONFLICT DO NOTHING`, sg.SongID, sg.GenreName)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
		}
		for _, part := range chunk(lyrics, chunkSize) {
			batch := &pgx.Batch{}
			for _, l := range part {
				batch.Queue(`INSERT INTO lyrics (song_id, content, language) VALUES ($1,$2,$3)
					ON CONFLICT (song_id) DO NOTHING`, l.SongID, l.Content, l.Language)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logrus.WithField("err", err).Error("flush song relations failed")
	}
}

func (f *Flusher) flushAlbumRelations(ctx context.Context, buf *[]AlbumRelations) {
	if len(*buf) == 0 {
		return
	}
	relations := *buf
	*buf = nil

	albumIDs := make([]string, 0, len(relations))
	for _, r := range relations {
		albumIDs = append(albumIDs, r.AlbumID)
	}

	err := f.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM album_artists WHERE album_id = ANY($1)`, albumIDs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM album_genres WHERE album_id = ANY($1)`, albumIDs); err != nil {
			return err
		}

		var artists []models.AlbumArtist
		var genres []models.AlbumGenre
		for _, r := range relations {
			for _, aid := range r.Artists {
				artists = append(artists, models.AlbumArtist{AlbumID: r.AlbumID, ArtistID: aid})
			}
			for _, g := range r.Genres {
				genres = append(genres, models.AlbumGenre{AlbumID: r.AlbumID, GenreName: g})
			}
		}

		for _, part := range chunk(artists, chunkSize) {
			batch := &pgx.Batch{}
			for _, aa := range part {
				batch.Queue(`INSERT INTO album_artists (album_id, artist_id) VALUES ($1,$2)
					ON CONFLICT DO NOTHING`, aa.AlbumID, aa.ArtistID)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
		}
		for _, part := range chunk(genres, chunkSize) {
			batch := &pgx.Batch{}
			for _, ag := range part {
				batch.Queue(`INSERT INTO album_genres (album_id, genre_name) VALUES ($1,$2)
					ON CONFLICT DO NOTHING`, ag.AlbumID, ag.GenreName)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logrus.WithField("err", err).Error("flush album relations failed")
	}
}

func (f *Flusher) flushSeen(ctx context.Context, buf *[]string) {
	if len(*buf) == 0 {
		return
	}
	ids := *buf
	*buf = nil
	for _, part := range chunk(ids, chunkSize) {
		batch := &pgx.Batch{}
		for _, id := range part {
			batch.Queue(`INSERT INTO _scanner_seen (id) VALUES ($1) ON CONFLICT DO NOTHING`, id)
		}
		if err := f.sendBatch(ctx, batch, len(part)); err != nil {
			logrus.WithField("err", err).Error("flush seen ids failed")
		}
	}
}

func (f *Flusher) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	tx, err := f.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (f *Flusher) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := f.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
