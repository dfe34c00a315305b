package tagutil

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// audioExtensions are the containers the scanner will open and tag-parse.
var audioExtensions = map[string]bool{
	".flac": true, ".mp3": true, ".ogg": true, ".opus": true,
	".m4a": true, ".mp4": true, ".wav": true, ".aiff": true, ".aif": true,
}

// IsAudioFile reports whether path has a recognized audio container
// extension, covering the broader tag set `dhowden/tag` parses.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsImageFile reports whether path looks like cover/folder art.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// IsPlaylistFile reports whether path is an importable playlist container.
func IsPlaylistFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u", ".m3u8", ".pls":
		return true
	}
	return false
}

// IsLyricsFile reports whether path is a standalone lyrics sidecar.
func IsLyricsFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lrc", ".txt":
		return true
	}
	return false
}

// Stem returns the filename without its extension, used to match a
// standalone lyrics file to the track sharing its directory and basename.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SortName applies "The x" / "A x" / "An x" article reordering so
// browse-by-name sorts ignore leading articles.
func SortName(name string) string {
	for _, p := range []string{"The ", "A ", "An "} {
		if strings.HasPrefix(name, p) {
			return strings.TrimPrefix(name, p) + ", " + strings.TrimSuffix(p, " ")
		}
	}
	return name
}

// Coalesce returns the first non-empty value, the tag-fallback idiom
// (AlbumArtist -> Artist -> "Unknown Artist").
func Coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SplitArtists splits a tag value on any of delimiters, unless value matches
// one of the doNotSplit exceptions (case-insensitively, ignoring
// surrounding spaces) (band names that happen
// to contain a delimiter character, e.g. "Earth, Wind & Fire"). Empty
// fragments are dropped and every fragment is trimmed.
func SplitArtists(value string, delimiters, doNotSplit []string) []string {
	for _, skip := range doNotSplit {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(skip)) {
			return []string{value}
		}
	}
	if len(delimiters) == 0 {
		return []string{value}
	}
	parts := []string{value}
	for _, d := range delimiters {
		if d == "" {
			continue
		}
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, d)...)
		}
		parts = next
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{value}
	}
	return out
}

// FormatISO8601 renders t in the UTC "2006-01-02T15:04:05Z" form used for
// every timestamp the API surfaces (AuthToken expiry, scan completion).
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseISO8601 is the inverse of FormatISO8601, tolerant of a bare offset
// instead of "Z" since some embedded tag sources emit RFC3339 with a
// numeric zone.
func ParseISO8601(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// HashPath returns a stable, filesystem-independent 16-hex-char identifier
// for an absolute path, used to namespace the transcode cache and as a
// deterministic dedup key for tracks.
func HashPath(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:8])
}

// FormatDurationMs renders a millisecond duration as "m:ss", the display
// format used by the player's now-playing UI.
func FormatDurationMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return strconv.Itoa(minutes) + ":" + pad2(seconds)
}
