package store

import (
	"context"
	"database/sql"
)

// GetScanSettings reads the singleton scan_settings row that records the
// audio/artist-info scan version counters used to decide whether a file
// needs re-parsing even if its mtime hasn't changed (ScanFiles "a
// bumped scan version forces every file to be re-read regardless of
// mtime").
func GetScanSettings(ctx context.Context, tx *Tx) (ScanSettings, error) {
	var s ScanSettings
	var lastScan sql.NullInt64
	row := tx.QueryRow(ctx, `SELECT audio_scan_version, artist_info_scan_version, last_scan_unix FROM scan_settings WHERE id = 1`)
	if err := row.Scan(&s.AudioScanVersion, &s.ArtistInfoScanVersion, &lastScan); err != nil {
		return ScanSettings{}, err
	}
	s.LastScanUnix = scanNullInt64(lastScan)
	return s, nil
}

// BumpAudioScanVersion increments the audio scan version, forcing a full
// rescan of every file regardless of mtime on the next run.
func BumpAudioScanVersion(ctx context.Context, tx *Tx) error {
	_, err := tx.Exec(ctx, `UPDATE scan_settings SET audio_scan_version = audio_scan_version + 1 WHERE id = 1`)
	return err
}

// RecordScanCompleted stamps last_scan_unix, called at the end of a
// successful scan pass.
func RecordScanCompleted(ctx context.Context, tx *Tx, nowUnix int64) error {
	_, err := tx.Exec(ctx, `UPDATE scan_settings SET last_scan_unix = ? WHERE id = 1`, nowUnix)
	return err
}
