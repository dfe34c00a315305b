package store

import "context"

// UpsertPlayListFile records (or refreshes) a .m3u/.pls playlist file found
// on disk during AssociatePlayListFiles. content is the
// JSON-encoded, lenient-parsed list of resolved absolute track paths
// (Open Question resolved in DESIGN.md: lines that don't resolve to a
// known track are kept in content but simply skipped at playback time).
func UpsertPlayListFile(ctx context.Context, tx *Tx, path string, fileSize, mtimeUnix int64, content string) (PlayListFile, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO playlist_file (path, file_size, mtime_unix, content) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET file_size = excluded.file_size, mtime_unix = excluded.mtime_unix, content = excluded.content
		RETURNING id, path, file_size, mtime_unix, content`,
		path, fileSize, mtimeUnix, content)

	var p PlayListFile
	if err := row.Scan(&p.ID, &p.Path, &p.FileSize, &p.MtimeUnix, &p.Content); err != nil {
		return PlayListFile{}, err
	}
	return p, nil
}

// ListPlayListFiles returns every known playlist file, used to rebuild the
// "imported playlists" library view.
func ListPlayListFiles(ctx context.Context, tx *Tx) ([]PlayListFile, error) {
	rows, err := tx.Query(ctx, `SELECT id, path, file_size, mtime_unix, content FROM playlist_file ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []PlayListFile
	for rows.Next {
		var p PlayListFile
		if err := rows.Scan(&p.ID, &p.Path, &p.FileSize, &p.MtimeUnix, &p.Content); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err
}

// DeletePlayListFilesNotIn removes playlist_file rows whose backing path
// vanished since the last scan (AssociatePlayListFiles).
func DeletePlayListFilesNotIn(ctx context.Context, tx *Tx, stillPresent []string) (int64, error) {
	if len(stillPresent) == 0 {
		res, err := tx.Exec(ctx, `DELETE FROM playlist_file`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected
	}
	placeholders := make([]any, 0, len(stillPresent))
	query := `DELETE FROM playlist_file WHERE path NOT IN (`
	for i, p := range stillPresent {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders = append(placeholders, p)
	}
	query += ")"
	res, err := tx.Exec(ctx, query, placeholders...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected
}
