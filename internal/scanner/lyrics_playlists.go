package scanner

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lms/internal/store"
	"lms/internal/tagutil"
)

type lyricLine struct {
	OffsetMs int `json:"offset_ms"`
	Text string `json:"text"`
}

func encodeLyricsContent(l tagutil.Lyrics) (string, bool) {
	if len(l.SynchronizedLines) > 0 {
		lines := make([]lyricLine, 0, len(l.SynchronizedLines))
		for ts, text := range l.SynchronizedLines {
			lines = append(lines, lyricLine{OffsetMs: int(ts / time.Millisecond), Text: text})
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].OffsetMs < lines[j].OffsetMs })
		b, err := json.Marshal(lines)
		return string(b), err == nil
	}
	if len(l.UnsynchronizedLines) > 0 {
		b, err := json.Marshal(l.UnsynchronizedLines)
		return string(b), err == nil
	}
	return "", false
}

// associateExternalLyrics matches every standalone .lrc/.txt lyrics file
// against the track sharing its directory and filename stem, parses it,
// and links it (AssociateExternalLyrics). Files that match no known
// track are skipped without being counted as errors; a file that cannot
// be opened or parsed is recorded as a per-file error, not a step failure.
func (s *Scanner) associateExternalLyrics(ctx context.Context, lib store.MediaLibrary, lyricsFiles []string, stats *Stats) error {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}

	paths, err := store.ListTrackPathsUnderLibrary(ctx, tx, lib.ID)
	if err != nil {
		tx.Abandon
		return err
	}
	byStem := map[string]string{} // dir/stem -> track path
	for p := range paths {
		byStem[filepath.Join(filepath.Dir(p), tagutil.Stem(p))] = p
	}

	total := len(lyricsFiles)
	for i, lp := range lyricsFiles {
		if s.aborting {
			break
		}
		trackPath, ok := byStem[filepath.Join(filepath.Dir(lp), tagutil.Stem(lp))]
		if !ok {
			continue
		}
		trackID := paths[trackPath]

		f, err := os.Open(lp)
		if err != nil {
			s.recordErr(stats, StepAssociateExternalLyrics, lp, err)
			continue
		}
		parsed, err := tagutil.ParseLyrics(f)
		f.Close
		if err != nil {
			s.recordErr(stats, StepAssociateExternalLyrics, lp, err)
			continue
		}
		content, ok := encodeLyricsContent(parsed)
		if !ok {
			continue
		}
		synchronized := len(parsed.SynchronizedLines) > 0
		var lang *string
		if parsed.Language != "" {
			lang = &parsed.Language
		}
		offsetMs := int(parsed.Offset / time.Millisecond)
		if err := store.AssociateExternalLyrics(ctx, tx, trackID, lp, synchronized, lang, offsetMs, content); err != nil {
			tx.Abandon
			return err
		}
		stats.LyricsLinked++
		if i%200 == 0 {
			s.publish(StepAssociateExternalLyrics, total, i)
		}
	}
	s.publish(StepAssociateExternalLyrics, total, total)

	if _, err := store.DeleteExternalLyricsNotIn(ctx, tx, lyricsFiles); err != nil {
		tx.Abandon
		return err
	}
	return tx.Commit
}

// associatePlayListFiles parses each discovered .m3u/.m3u8/.pls file into a
// resolved list of absolute paths and upserts it (// AssociatePlayListFiles). Lines that don't resolve to a known track are
// kept in content but simply skipped at playback time (decided in
// DESIGN.md).
func (s *Scanner) associatePlayListFiles(ctx context.Context, lib store.MediaLibrary, playlistFiles []string, stats *Stats) error {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}

	total := len(playlistFiles)
	for i, pp := range playlistFiles {
		if s.aborting {
			break
		}
		fi, err := os.Stat(pp)
		if err != nil {
			s.recordErr(stats, StepAssociatePlayListFiles, pp, err)
			continue
		}
		entries, err := parsePlaylistEntries(pp)
		if err != nil {
			s.recordErr(stats, StepAssociatePlayListFiles, pp, err)
			continue
		}
		content, err := json.Marshal(entries)
		if err != nil {
			s.recordErr(stats, StepAssociatePlayListFiles, pp, err)
			continue
		}
		if _, err := store.UpsertPlayListFile(ctx, tx, pp, fi.Size, fi.ModTime.Unix, string(content)); err != nil {
			tx.Abandon
			return err
		}
		stats.PlaylistFiles++
		if i%200 == 0 {
			s.publish(StepAssociatePlayListFiles, total, i)
		}
	}
	s.publish(StepAssociatePlayListFiles, total, total)

	if _, err := store.DeletePlayListFilesNotIn(ctx, tx, playlistFiles); err != nil {
		tx.Abandon
		return err
	}
	return tx.Commit
}

// parsePlaylistEntries handles the .m3u/.m3u8 line grammar (lines starting
// with '#' are directives or comments, everything else is a path, resolved
// relative to the playlist's own directory when not absolute). .pls files
// use the same resolution after stripping their `FileN=` key.
func parsePlaylistEntries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close

	dir := filepath.Dir(path)
	ext := strings.ToLower(filepath.Ext(path))

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan {
		line := strings.TrimSpace(scanner.Text)
		if line == "" {
			continue
		}
		if ext == ".pls" {
			if !strings.HasPrefix(line, "File") {
				continue
			}
			if eq := strings.IndexByte(line, '='); eq >= 0 {
				line = strings.TrimSpace(line[eq+1:])
			} else {
				continue
			}
		} else if strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(dir, line)
		}
		out = append(out, filepath.Clean(line))
	}
	return out, scanner.Err
}
