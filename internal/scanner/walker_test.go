package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"auralis/internal/models"
)

func TestWalkPathEmitsDirsAndAudioOnly(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Artist", "Album"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "Artist", "Album", "01.flac"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "Artist", "Album", "cover.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := make(chan WalkTask, 32)
	folder := models.MusicFolder{ID: 1, Path: root}
	Walker{}.WalkPath(folder, out)
	close(out)

	var dirs, audio int
	for task := range out {
		if task.IsDir {
			dirs++
			continue
		}
		audio++
		if task.Ext != "flac" {
			t.Fatalf("expected only the flac file to be emitted as non-dir, got ext %q", task.Ext)
		}
	}

	// root, Artist, Album
	if dirs != 3 {
		t.Fatalf("expected 3 directories (root, Artist, Album), got %d", dirs)
	}
	if audio != 1 {
		t.Fatalf("expected exactly 1 audio file (jpg skipped), got %d", audio)
	}
}

func TestWalkPathRecoversFromClosedConsumer(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "song.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := make(chan WalkTask)
	close(out)

	// Sending on a closed channel panics; WalkPath must recover from it
	// and return normally instead of crashing the scan goroutine.
	Walker{}.WalkPath(models.MusicFolder{ID: 1, Path: root}, out)
}
