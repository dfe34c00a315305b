package store

import (
	"context"
	"database/sql"

	"lms/internal/dbtypes"
)

// UpsertEmbeddedLyrics records lyrics found inside a track's own tags,
// replacing any prior row for that track (embedded lyrics always win over
// a stale copy from a previous scan).
func UpsertEmbeddedLyrics(ctx context.Context, tx *Tx, trackID dbtypes.TrackID, synchronized bool, language, displayArtist, displayAlbum, displayTitle *string, offsetMs int, content string) (dbtypes.TrackID, error) {
	if _, err := tx.Exec(ctx, `DELETE FROM track_lyrics WHERE track_id = ? AND external_path IS NULL`, trackID); err != nil {
		return dbtypes.Invalid, err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO track_lyrics (track_id, external_path, synchronized, language, display_artist, display_album, display_title, offset_ms, content)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?)`,
		trackID, synchronized, nullString(language), nullString(displayArtist), nullString(displayAlbum), nullString(displayTitle), offsetMs, content)
	return trackID, err
}

// AssociateExternalLyrics links a standalone .lrc/.txt file to the track it
// matches by filename stem (AssociateExternalLyrics, Open Question
// resolved in DESIGN.md: first match by directory + stem wins).
func AssociateExternalLyrics(ctx context.Context, tx *Tx, trackID dbtypes.TrackID, externalPath string, synchronized bool, language *string, offsetMs int, content string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO track_lyrics (track_id, external_path, synchronized, language, offset_ms, content)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_path) DO UPDATE SET
			synchronized = excluded.synchronized, language = excluded.language,
			offset_ms = excluded.offset_ms, content = excluded.content`,
		trackID, externalPath, synchronized, nullString(language), offsetMs, content)
	return err
}

// ListTrackLyrics returns every lyrics row attached to a track (embedded
// plus any matched external files).
func ListTrackLyrics(ctx context.Context, tx *Tx, trackID dbtypes.TrackID) ([]TrackLyrics, error) {
	rows, err := tx.Query(ctx, `SELECT id, track_id, external_path, synchronized, language, display_artist, display_album, display_title, offset_ms, content FROM track_lyrics WHERE track_id = ?`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []TrackLyrics
	for rows.Next {
		var l TrackLyrics
		var ext, lang, artist, album, title sql.NullString
		var sync int
		if err := rows.Scan(&l.ID, &l.TrackID, &ext, &sync, &lang, &artist, &album, &title, &l.OffsetMs, &l.Content); err != nil {
			return nil, err
		}
		l.ExternalPath = scanNullString(ext)
		l.Synchronized = sync != 0
		l.Language = scanNullString(lang)
		l.DisplayArtist = scanNullString(artist)
		l.DisplayAlbum = scanNullString(album)
		l.DisplayTitle = scanNullString(title)
		out = append(out, l)
	}
	return out, rows.Err
}

// DeleteExternalLyricsNotIn removes external-file lyrics rows whose
// external path is not in stillPresent — callers pass the lyrics file
// paths found this pass.
func DeleteExternalLyricsNotIn(ctx context.Context, tx *Tx, stillPresent []string) (int64, error) {
	if len(stillPresent) == 0 {
		res, err := tx.Exec(ctx, `DELETE FROM track_lyrics WHERE external_path IS NOT NULL`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected
	}
	placeholders := make([]any, 0, len(stillPresent))
	query := `DELETE FROM track_lyrics WHERE external_path IS NOT NULL AND external_path NOT IN (`
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
