package scanner

import "context"

// SeenTracker prepares and clears the transient _scanner_seen side table.
// Insertion happens through the Flusher like any other row kind (spec
// §4.6); this type only owns the lifecycle bookends.
type SeenTracker struct {
	db execer
}

func NewSeenTracker(db execer) SeenTracker {
	return SeenTracker{db: db}
}

// Prepare idempotently empties the seen table at the start of a scan.
func (s SeenTracker) Prepare(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM _scanner_seen`)
	return err
}

// Clear empties the seen table after a successful prune.
func (s SeenTracker) Clear(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM _scanner_seen`)
	return err
}
