package scanner

import (
	"context"
	"os"
	"path/filepath"

	"lms/internal/store"
	"lms/internal/tagutil"
)

// discovered is the result of one filesystem walk of a library root,
// classified by the kind of file it is. Unrecognized files are ignored.
type discovered struct {
	audioFiles []string
	imageFiles []string
	lyricsFiles []string
	playlistFiles []string
}

// listLibraries upserts one MediaLibrary row per configured root
// (LMS_MEDIA_LIBRARY_ROOTS) and returns the resulting rows.
func (s *Scanner) listLibraries(ctx context.Context) ([]store.MediaLibrary, error) {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Abandon

	var out []store.MediaLibrary
	for _, root := range s.cfg.MediaLibraryRoots {
		lib, err := store.UpsertMediaLibrary(ctx, tx, store.UpsertMediaLibraryParams{
			Name: filepath.Base(filepath.Clean(root)),
			RootPath: root,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, tx.Commit
}

// discoverFiles walks lib.RootPath once, classifying every file and
// pruning any subtree whose directory carries a .lmsignore sentinel, via a
// single filepath.WalkDir collection pass.
func (s *Scanner) discoverFiles(ctx context.Context, lib store.MediaLibrary) (discovered, error) {
	var d discovered
	total := 0
	err := filepath.WalkDir(lib.RootPath, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if entry.IsDir {
			if _, err := os.Stat(filepath.Join(path, lmsignoreName)); err == nil {
				return filepath.SkipDir
			}
			return nil
		}
		total++
		switch {
		case tagutil.IsAudioFile(path):
			d.audioFiles = append(d.audioFiles, path)
		case tagutil.IsImageFile(path):
			d.imageFiles = append(d.imageFiles, path)
		case tagutil.IsLyricsFile(path):
			d.lyricsFiles = append(d.lyricsFiles, path)
		case tagutil.IsPlaylistFile(path):
			d.playlistFiles = append(d.playlistFiles, path)
		}
		if total%200 == 0 {
			s.publish(StepDiscoverFiles, 0, total)
		}
		return nil
	})
	s.publish(StepDiscoverFiles, total, total)
	return d, err
}

// checkForRemovedFiles diffs the known track paths for lib against the
// current walk result and deletes rows for files no longer present,
// batching deletes at ~200 rows per transaction so a single huge library
// doesn't hold the exclusive write lock for the whole pass.
func (s *Scanner) checkForRemovedFiles(ctx context.Context, lib store.MediaLibrary, d discovered, stats *Stats) error {
	tx, err := s.session.ReadTransaction(ctx)
	if err != nil {
		return err
	}
	known, err := store.ListTrackPathsUnderLibrary(ctx, tx, lib.ID)
	tx.Abandon
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(d.audioFiles))
	for _, p := range d.audioFiles {
		present[p] = true
	}

	var toRemove []string
	for path := range known {
		if !present[path] {
			toRemove = append(toRemove, path)
		}
	}

	const batchSize = 200
	total := len(toRemove)
	for i := 0; i < total; i += batchSize {
		if s.aborting {
			return nil
		}
		end := min(i+batchSize, total)
		wtx, err := s.session.WriteTransaction(ctx)
		if err != nil {
			return err
		}
		for _, path := range toRemove[i:end] {
			if err := store.DeleteTrack(ctx, wtx, known[path]); err != nil {
				wtx.Abandon
				return err
			}
			stats.Removed++
		}
		if err := wtx.Commit; err != nil {
			return err
		}
		s.publish(StepCheckForRemovedFiles, total, end)
	}
	return nil
}
