package store

import (
	"context"

	"lms/internal/dbtypes"
)

// TrackScanState is the minimal per-track bookkeeping the scanner needs to
// decide whether a file must be re-read: its id, last-seen size/mtime, and
// the scan_version it was last written with. One bulk SELECT loads every
// row up front so the scan loop never issues a per-file lookup query.
type TrackScanState struct {
	ID          dbtypes.TrackID
	FileSize    int64
	MtimeUnix   int64
	ScanVersion int
}

// ListTrackScanState bulk-loads every known track's scan bookkeeping for a
// library, keyed by path, in a single query.
func ListTrackScanState(ctx context.Context, tx *Tx, libraryID dbtypes.MediaLibraryID) (map[string]TrackScanState, error) {
	rows, err := tx.Query(ctx, `SELECT path, id, file_size, mtime_unix, scan_version FROM track WHERE media_library_id = ?`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]TrackScanState)
	for rows.Next() {
		var path string
		var st TrackScanState
		if err := rows.Scan(&path, &st.ID, &st.FileSize, &st.MtimeUnix, &st.ScanVersion); err != nil {
			return nil, err
		}
		out[path] = st
	}
	return out, rows.Err()
}
