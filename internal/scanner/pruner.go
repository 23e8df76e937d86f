package scanner

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Pruner runs the ordered post-scan deletion sweep (spec §4.6). It must run
// only after the post-scan Flush barrier has been acked; the caller (Scanner
// .ScanAll) owns that sequencing.
type Pruner struct {
	db    execer
	seen  SeenTracker
}

func NewPruner(db execer, seen SeenTracker) Pruner {
	return Pruner{db: db, seen: seen}
}

// pruneSteps are the seven ordered deletions from spec §4.6. Order matters:
// deleting `children` before the song_* junctions would violate foreign
// keys in engines that enforce them strictly (spec §9, "Prune ordering is
// load-bearing"). Step 2 omits `playlist_songs`: this repo carries no
// playlist table (playlist management is an explicit Non-goal), so the
// junction this step would also touch simply does not exist here.
var pruneSteps = []string{
	`DELETE FROM lyrics WHERE NOT EXISTS (SELECT 1 FROM _scanner_seen WHERE _scanner_seen.id = lyrics.song_id)`,
	`DELETE FROM song_artists WHERE NOT EXISTS (SELECT 1 FROM _scanner_seen WHERE _scanner_seen.id = song_artists.song_id)`,
	`DELETE FROM song_genres WHERE NOT EXISTS (SELECT 1 FROM _scanner_seen WHERE _scanner_seen.id = song_genres.song_id)`,
	`DELETE FROM children WHERE NOT EXISTS (SELECT 1 FROM _scanner_seen WHERE _scanner_seen.id = children.id)`,
	`DELETE FROM album_artists WHERE NOT EXISTS (SELECT 1 FROM children WHERE children.album_id = album_artists.album_id)`,
	`DELETE FROM album_genres WHERE NOT EXISTS (SELECT 1 FROM children WHERE children.album_id = album_genres.album_id)`,
	`DELETE FROM albums WHERE NOT EXISTS (SELECT 1 FROM children WHERE children.album_id = albums.id)`,
	`DELETE FROM artists WHERE NOT EXISTS (SELECT 1 FROM song_artists WHERE song_artists.artist_id = artists.id)
		AND NOT EXISTS (SELECT 1 FROM album_artists WHERE album_artists.artist_id = artists.id)`,
	`DELETE FROM genres WHERE NOT EXISTS (SELECT 1 FROM song_genres WHERE song_genres.genre_name = genres.name)
		AND NOT EXISTS (SELECT 1 FROM album_genres WHERE album_genres.genre_name = genres.name)`,
}

// Run executes the ordered sweep and then empties the seen table. Per spec
// §7, DB errors during prune are surfaced as scan failures — unlike the
// Flusher, a failed step here aborts the sweep.
func (p Pruner) Run(ctx context.Context) error {
	logrus.Info("pruning deleted files and orphaned records")

	for _, stmt := range pruneSteps {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return p.seen.Clear(ctx)
}
