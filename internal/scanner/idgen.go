package scanner

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// normalizeSlashes turns backslashes into forward slashes so ids are stable
// regardless of the host path separator (spec §4.3 edge case).
func normalizeSlashes(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// relativePath computes path relative to folderPath, normalizing separators
// first. Grounded on original_source/src/scanner/utils.rs's generate_id,
// which uses pathdiff::diff_paths. An entry outside the folder root yields a
// "../"-prefixed path; the raw (normalized) path is returned only when the
// two cannot be related at all (one absolute, one relative).
func relativePath(path, folderPath string) string {
	rel, err := filepath.Rel(normalizeSlashes(folderPath), normalizeSlashes(path))
	if err != nil {
		return normalizeSlashes(path)
	}
	return normalizeSlashes(rel)
}

// songOrDirID computes the stable id of a child row: md5_hex(folderID ":"
// relative_path). Grounded on utils.rs's generate_id.
func songOrDirID(folderID int32, path, folderPath string) string {
	rel := relativePath(path, folderPath)
	return md5Hex(fmt.Sprintf("%d:%s", folderID, rel))
}

// artistID computes md5_hex(name). Grounded on utils.rs's generate_artist_id.
func artistID(name string) string {
	return md5Hex(name)
}

// albumID computes md5_hex(joinedArtists "|" name), where joinedArtists is
// every album artist joined by "; ". Grounded on utils.rs's generate_album_id.
func albumID(joinedArtists, name string) string {
	return md5Hex(joinedArtists + "|" + name)
}

// parentID returns the id of path's filesystem parent directory within
// folderPath, or nil when path is the folder root or its parent escapes the
// folder root. Grounded on utils.rs's get_parent_id.
func parentID(folderID int32, path, folderPath string) *string {
	if path == folderPath {
		return nil
	}

	parent := filepath.Dir(path)
	parentNorm := normalizeSlashes(parent)
	folderNorm := normalizeSlashes(folderPath)

	if parentNorm != folderNorm && !strings.HasPrefix(parentNorm, strings.TrimSuffix(folderNorm, "/")+"/") {
		return nil
	}

	id := songOrDirID(folderID, parent, folderPath)
	return &id
}

var audioExtensions = map[string]bool{
	"mp3":  true,
	"flac": true,
	"m4a":  true,
	"wav":  true,
	"ogg":  true,
	"opus": true,
}

// isAudioFile reports whether ext (lowercased, no leading dot) is in the
// allow-list named in spec §4.1.
func isAudioFile(ext string) bool {
	return audioExtensions[strings.ToLower(ext)]
}

// contentType derives a best-effort MIME type from a lowercase extension,
// matching utils.rs's get_content_type fallback branch (mime_guess is not a
// dependency anywhere in the example pack, so this mirrors its fallback
// path, the only branch that fires for the fixed audio allow-list above).
func contentType(ext string) string {
	if ext == "" {
		return "application/octet-stream"
	}
	return "audio/" + ext
}

// splitTag splits a multi-value tag string on ';', trims each piece, and
// drops empties. Grounded verbatim on tags.rs's split_tag.
func splitTag(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
