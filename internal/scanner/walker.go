package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"auralis/internal/models"
)

// Walker recursively enumerates one music folder, off the main goroutine,
// and feeds WalkTask values to a shared channel. Grounded on
// original_source/src/scanner/walker.rs's Walker::walk_path (there,
// spawn_blocking + blocking_send; here, a plain goroutine writing to a
// channel, since Go goroutines are already OS-thread-multiplexed and need
// no explicit "blocking pool" indirection).
type Walker struct{}

// WalkPath walks folder.Path and sends one WalkTask per directory and audio
// file into out. It returns when the walk completes, or early when out has
// been closed (the send panics and the panic is recovered). A consumer that
// stops reading without closing out leaves the walk blocked on its next send.
func (Walker) WalkPath(folder models.MusicFolder, out chan<- WalkTask) {
	defer func() {
		// A panic here can only come from sending on a closed channel;
		// terminate the walk cleanly.
		recover()
	}()

	root := folder.Path
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logrus.WithFields(logrus.Fields{"path": path, "err": err}).Warn("walk entry skipped")
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logrus.WithFields(logrus.Fields{"path": path, "err": err}).Warn("stat failed, entry skipped")
			return nil
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if !d.IsDir() && !isAudioFile(ext) {
			return nil
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		task := WalkTask{
			Path:    normalizeSlashes(path),
			IsDir:   d.IsDir(),
			Name:    name,
			Ext:     ext,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Folder:  folder,
		}

		out <- task
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"root": root, "err": err}).Warn("walk aborted")
	}
}
