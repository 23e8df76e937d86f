package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch mirrors the teacher's ScannerService.Watch: it registers every
// non-hidden directory under each configured music folder with fsnotify,
// then debounces bursts of filesystem events into a single incremental
// ScanAll call (SPEC_FULL.md §6.3). It blocks until ctx is cancelled.
func (s *Scanner) Watch(ctx context.Context, debounce time.Duration) error {
	folders, err := s.musicFolders(ctx)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, folder := range folders {
		filepath.WalkDir(folder.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") && path != folder.Path {
				return fs.SkipDir
			}
			if err := w.Add(path); err != nil {
				logrus.WithFields(logrus.Fields{"path": path, "err": err}).Warn("watch: failed to add directory")
			}
			return nil
		})
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.Contains(ev.Name, string(filepath.Separator)+".") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				timer.Reset(debounce)
			}
		case <-timer.C:
			if !s.IsScanning() {
				go func() {
					if err := s.ScanAll(context.Background(), true); err != nil {
						logrus.WithField("err", err).Error("watch-triggered scan failed")
					}
				}()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logrus.WithField("err", err).Error("watch error")
		}
	}
}
