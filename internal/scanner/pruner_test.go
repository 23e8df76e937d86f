package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// recordingExecer implements execer by recording every statement it is
// asked to run, optionally failing on a configured statement index. It lets
// Pruner/SeenTracker's ordering and error-propagation contracts be tested
// without a live Postgres instance.
type recordingExecer struct {
	stmts  []string
	failAt int
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	idx := len(r.stmts)
	r.stmts = append(r.stmts, sql)
	if r.failAt >= 0 && idx == r.failAt {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.CommandTag{}, nil
}

func (r *recordingExecer) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("recordingExecer does not support transactions")
}

func TestPrunerRunsStepsInOrderThenClearsSeen(t *testing.T) {
	exec := &recordingExecer{failAt: -1}
	seen := NewSeenTracker(exec)
	p := NewPruner(exec, seen)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 9 prune steps + the trailing SeenTracker.Clear.
	if len(exec.stmts) != len(pruneSteps)+1 {
		t.Fatalf("expected %d statements, got %d", len(pruneSteps)+1, len(exec.stmts))
	}
	for i, stmt := range pruneSteps {
		if exec.stmts[i] != stmt {
			t.Fatalf("expected step %d to be %q, got %q", i, stmt, exec.stmts[i])
		}
	}
	if exec.stmts[len(pruneSteps)] != `DELETE FROM _scanner_seen` {
		t.Fatalf("expected the final statement to clear _scanner_seen, got %q", exec.stmts[len(pruneSteps)])
	}
}

func TestPrunerAbortsOnFirstFailure(t *testing.T) {
	exec := &recordingExecer{failAt: 2}
	seen := NewSeenTracker(exec)
	p := NewPruner(exec, seen)

	if err := p.Run(context.Background()); err == nil {
		t.Fatalf("expected Run to surface the failing step's error")
	}
	// Only steps 0, 1, 2 (the failing one) should have executed; Clear must
	// not run after a failed step (spec §7: unlike the Flusher, prune
	// failures abort the sweep rather than continuing).
	if len(exec.stmts) != 3 {
		t.Fatalf("expected exactly 3 attempted statements, got %d", len(exec.stmts))
	}
}

func TestSeenTrackerPrepareAndClearIssueDelete(t *testing.T) {
	exec := &recordingExecer{failAt: -1}
	tracker := NewSeenTracker(exec)

	if err := tracker.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := tracker.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(exec.stmts) != 2 || exec.stmts[0] != `DELETE FROM _scanner_seen` || exec.stmts[1] != `DELETE FROM _scanner_seen` {
		t.Fatalf("expected two DELETE FROM _scanner_seen statements, got %v", exec.stmts)
	}
}
