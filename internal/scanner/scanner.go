// Package scanner implements the library ingestion pipeline: Walker,
// TagReader, IDGen, Processor, Flusher, SeenTracker and Pruner, wired
// together by Scanner.ScanAll. Grounded throughout on
// original_source/src/scanner/scanner.rs, the canonical channel/flusher
// based implementation named in spec §9's open question.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pemistahl/lingua-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"auralis/internal/models"
)

// Config bounds Scanner.ScanAll's concurrency and behavior (spec §6.1).
type Config struct {
	Parallelism   int64
	Incremental   bool
	CoverCacheDir string
}

// Scanner owns the scan-state atomics, the flusher, and folder listing.
// Grounded on scanner.rs's ScannerInner/Scanner.
type Scanner struct {
	db      *pgxpool.Pool
	cfg     Config
	flusher *Flusher

	isScanning    atomic.Bool
	scanCount     atomic.Int64
	totalCount    atomic.Int64
	lastScanTime  atomic.Int64

	detector lingua.LanguageDetector
}

// New constructs a Scanner and starts its background Flusher goroutine,
// mirroring scanner.rs's Scanner::new spawning run_flusher with a
// channel capacity of 1000.
func New(db *pgxpool.Pool, cfg Config) *Scanner {
	flusher := NewFlusher(db, 1000)

	s := &Scanner{
		db:      db,
		cfg:     cfg,
		flusher: flusher,
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}

	go flusher.Run(context.Background())

	return s
}

// WithSearchIndex attaches an optional bleve mirror to the background
// flusher. Call before the first ScanAll; safe to call with nil.
func (s *Scanner) WithSearchIndex(si *SearchIndex) *Scanner {
	s.flusher.WithSearchIndex(si)
	return s
}

func (s *Scanner) IsScanning() bool       { return s.isScanning.Load() }
func (s *Scanner) ScanCount() int64       { return s.scanCount.Load() }
func (s *Scanner) TotalCount() int64      { return s.totalCount.Load() }
func (s *Scanner) LastScanTime() int64    { return s.lastScanTime.Load() }

// scanGuard restores is_scanning to false on every exit path, including a
// panic unwinding through ScanAll (spec §5, §9 "Scoped scan guard").
type scanGuard struct{ s *Scanner }

func (g scanGuard) release() { g.s.isScanning.Store(false) }

// SongCreatedAt implements IncrementalLookup against the catalog.
func (s *Scanner) SongCreatedAt(ctx context.Context, id string) (time.Time, bool, error) {
	var created time.Time
	err := s.db.QueryRow(ctx, `SELECT created FROM children WHERE id = $1 AND is_dir = FALSE`, id).Scan(&created)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return created, true, nil
}

func (s *Scanner) musicFolders(ctx context.Context) ([]models.MusicFolder, error) {
	rows, err := s.db.Query(ctx, `SELECT id, path, COALESCE(name, '') FROM music_folders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []models.MusicFolder
	for rows.Next() {
		var f models.MusicFolder
		if err := rows.Scan(&f.ID, &f.Path, &f.Name); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// UpdateTotalCount refreshes the total-song atomic counter from the
// catalog (spec §6.2).
func (s *Scanner) UpdateTotalCount(ctx context.Context) error {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM children WHERE is_dir = FALSE`).Scan(&count)
	if err != nil {
		return err
	}
	s.totalCount.Store(count)
	return nil
}

// ScanAll walks every configured music folder, processes every entry
// through the bounded Processor pool, awaits a Flush barrier ack, then
// prunes. A scan already in progress is an idempotent no-op (spec §4, §7,
// §8 property S6).
func (s *Scanner) ScanAll(ctx context.Context, incremental bool) error {
	if !s.isScanning.CompareAndSwap(false, true) {
		return nil
	}
	guard := scanGuard{s}
	defer guard.release()

	scanID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{"scan_id": scanID, "stage": "scan_all"})
	log.WithField("incremental", incremental).Info("starting scan")

	s.scanCount.Store(0)

	folders, err := s.musicFolders(ctx)
	if err != nil {
		return fmt.Errorf("list music folders: %w", err)
	}

	seen := NewSeenTracker(s.db)
	if err := seen.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare seen tracker: %w", err)
	}

	taskCh := make(chan WalkTask, 100)
	var walkWG sync.WaitGroup
	for _, folder := range folders {
		walkWG.Add(1)
		go func(folder models.MusicFolder) {
			defer walkWG.Done()
			Walker{}.WalkPath(folder, taskCh)
		}(folder)
	}
	go func() {
		walkWG.Wait()
		close(taskCh)
	}()

	processor := Processor{
		Tags:          TagReader{},
		Incremental:   incremental,
		Lookup:        s,
		Detector:      s.detector,
		CoverCacheDir: s.cfg.CoverCacheDir,
	}

	sem := semaphore.NewWeighted(s.cfg.Parallelism)
	var procWG sync.WaitGroup

	for task := range taskCh {
		task := task
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		procWG.Add(1)
		go func() {
			defer procWG.Done()
			defer sem.Release(1)

			msg, err := processor.Process(ctx, task)
			if err != nil {
				log.WithFields(logrus.Fields{"path": task.Path, "err": err}).Error("error processing task")
				return
			}
			if err := s.flusher.Send(ctx, msg); err != nil {
				log.WithFields(logrus.Fields{"path": task.Path, "err": err}).Error("error sending to flusher")
				return
			}
			s.scanCount.Add(1)
		}()
	}
	procWG.Wait()

	ack := make(chan struct{})
	if err := s.flusher.Send(ctx, FlushMsg{Ack: ack}); err != nil {
		return fmt.Errorf("send flush barrier: %w", err)
	}
	<-ack

	log.Info("scan finished, pruning database")
	pruner := NewPruner(s.db, seen)
	if err := pruner.Run(ctx); err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	if err := s.UpdateTotalCount(ctx); err != nil {
		return fmt.Errorf("update total count: %w", err)
	}

	s.lastScanTime.Store(time.Now().Unix())
	log.WithField("files", s.scanCount.Load()).Info("scan completed")

	return nil
}

// Shutdown stops the background flusher once the scan goroutines above
// have no further producers. Callers invoke this at process shutdown.
func (s *Scanner) Shutdown() {
	s.flusher.Close()
}
