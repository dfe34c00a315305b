package scanner

import (
	"context"
	"path/filepath"

	"lms/internal/dbtypes"
	"lms/internal/store"
)

// resolveDirectory upserts dirPath and every ancestor up to (and
// including) lib.RootPath, returning dirPath's own DirectoryID. Results
// are memoised in s.directoryCache for the lifetime of one Run so a
// directory shared by dozens of tracks is only upserted once, the same
// saving folderImageCache gives per-directory cover art lookups.
func (s *Scanner) resolveDirectory(ctx context.Context, tx *store.Tx, lib store.MediaLibrary, dirPath string) (dbtypes.DirectoryID, error) {
	dirPath = filepath.Clean(dirPath)
	if id, ok := s.directoryCache[dirPath]; ok {
		return id, nil
	}

	var parentID *dbtypes.DirectoryID
	root := filepath.Clean(lib.RootPath)
	if dirPath != root {
		parent := filepath.Dir(dirPath)
		pid, err := s.resolveDirectory(ctx, tx, lib, parent)
		if err != nil {
			return dbtypes.Invalid, err
		}
		parentID = &pid
	}

	id, err := store.UpsertDirectory(ctx, tx, dirPath, parentID, lib.ID)
	if err != nil {
		return dbtypes.Invalid, err
	}
	s.directoryCache[dirPath] = id
	return id, nil
}
