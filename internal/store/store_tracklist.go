package store

import (
	"context"
	"database/sql"

	"lms/internal/dbtypes"
)

// CreateTrackList creates a playlist, queue or favorites tracklist (// TrackList). Playlists, the play queue, and favorites all reuse this one
// table family rather than three separate schemas — one row per ordered
// entry regardless of list type.
func CreateTrackList(ctx context.Context, tx *Tx, p CreateTrackListParams, nowUnix int64) (TrackList, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO tracklist (owner_user_id, type, visibility, name, created_unix, last_modified_unix)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, owner_user_id, type, visibility, name, created_unix, last_modified_unix`,
		nullableUserID(p.OwnerUserID), string(p.Type), string(p.Visibility), p.Name, nowUnix, nowUnix)
	return scanTrackList(row)
}

func nullableUserID(id *dbtypes.UserID) any {
	if id == nil {
		return nil
	}
	return *id
}

// GetTrackList fetches a tracklist by ID.
func GetTrackList(ctx context.Context, tx *Tx, id dbtypes.TrackListID) (TrackList, error) {
	row := tx.QueryRow(ctx, `SELECT id, owner_user_id, type, visibility, name, created_unix, last_modified_unix FROM tracklist WHERE id = ?`, id)
	return scanTrackList(row)
}

func scanTrackList(row *sql.Row) (TrackList, error) {
	var tl TrackList
	var ownerID sql.NullInt64
	var typ, vis string
	if err := row.Scan(&tl.ID, &ownerID, &typ, &vis, &tl.Name, &tl.CreatedUnix, &tl.LastModifiedUnix); err != nil {
		if err == sql.ErrNoRows {
			return TrackList{}, &ErrNotFound{Entity: "tracklist"}
		}
		return TrackList{}, err
	}
	tl.Type = TrackListType(typ)
	tl.Visibility = TrackListVisibility(vis)
	if ownerID.Valid {
		v := dbtypes.UserID(ownerID.Int64)
		tl.OwnerUserID = &v
	}
	return tl, nil
}

// ListTrackListsByOwner returns every tracklist of a given type owned by a
// user, e.g. every playlist for the library view.
func ListTrackListsByOwner(ctx context.Context, tx *Tx, ownerID dbtypes.UserID, listType TrackListType) ([]TrackList, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, owner_user_id, type, visibility, name, created_unix, last_modified_unix
		FROM tracklist WHERE owner_user_id = ? AND type = ? ORDER BY last_modified_unix DESC`,
		ownerID, string(listType))
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []TrackList
	for rows.Next {
		var tl TrackList
		var typ, vis string
		if err := rows.Scan(&tl.ID, new(sql.NullInt64), &typ, &vis, &tl.Name, &tl.CreatedUnix, &tl.LastModifiedUnix); err != nil {
			return nil, err
		}
		tl.OwnerUserID = &ownerID
		tl.Type = TrackListType(typ)
		tl.Visibility = TrackListVisibility(vis)
		out = append(out, tl)
	}
	return out, rows.Err
}

// UpdateTrackListName renames a tracklist, used by the playlist rename
// endpoint.
func UpdateTrackListName(ctx context.Context, tx *Tx, id dbtypes.TrackListID, name string) error {
	_, err := tx.Exec(ctx, `UPDATE tracklist SET name = ?, last_modified_unix = strftime('%s','now') WHERE id = ?`, name, id)
	return err
}

// AppendTrackListEntry appends one track at the end of a tracklist,
// renumbering nothing (position is simply max(position)+1).
func AppendTrackListEntry(ctx context.Context, tx *Tx, listID dbtypes.TrackListID, trackID dbtypes.TrackID, entryTimestampUnix *int64) error {
	var nextPos int
	row := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM tracklist_entry WHERE tracklist_id = ?`, listID)
	if err := row.Scan(&nextPos); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `INSERT INTO tracklist_entry (tracklist_id, track_id, position, entry_timestamp_unix) VALUES (?, ?, ?, ?)`,
		listID, trackID, nextPos, nullInt64(entryTimestampUnix))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE tracklist SET last_modified_unix = strftime('%s','now') WHERE id = ?`, listID)
	return err
}

// RemoveTrackListEntry removes one entry and compacts the remaining
// positions so they stay contiguous.
func RemoveTrackListEntry(ctx context.Context, tx *Tx, listID dbtypes.TrackListID, entryID int64) error {
	var removedPos int
	row := tx.QueryRow(ctx, `SELECT position FROM tracklist_entry WHERE id = ? AND tracklist_id = ?`, entryID, listID)
	if err := row.Scan(&removedPos); err != nil {
		if err == sql.ErrNoRows {
			return &ErrNotFound{Entity: "tracklist_entry", ID: entryID}
		}
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tracklist_entry WHERE id = ?`, entryID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE tracklist_entry SET position = position - 1 WHERE tracklist_id = ? AND position > ?`, listID, removedPos); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `UPDATE tracklist SET last_modified_unix = strftime('%s','now') WHERE id = ?`, listID)
	return err
}

// ReorderTrackListEntry moves one entry to a new position, shifting the
// entries between the old and new positions.
func ReorderTrackListEntry(ctx context.Context, tx *Tx, listID dbtypes.TrackListID, entryID int64, newPos int) error {
	var oldPos int
	row := tx.QueryRow(ctx, `SELECT position FROM tracklist_entry WHERE id = ? AND tracklist_id = ?`, entryID, listID)
	if err := row.Scan(&oldPos); err != nil {
		return err
	}
	if oldPos == newPos {
		return nil
	}
	if newPos > oldPos {
		if _, err := tx.Exec(ctx, `UPDATE tracklist_entry SET position = position - 1 WHERE tracklist_id = ? AND position > ? AND position <= ?`, listID, oldPos, newPos); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE tracklist_entry SET position = position + 1 WHERE tracklist_id = ? AND position >= ? AND position < ?`, listID, newPos, oldPos); err != nil {
			return err
		}
	}
	_, err := tx.Exec(ctx, `UPDATE tracklist_entry SET position = ? WHERE id = ?`, newPos, entryID)
	return err
}

// ListTrackListEntries returns every entry in position order, the queue or
// playlist's playable track sequence.
func ListTrackListEntries(ctx context.Context, tx *Tx, listID dbtypes.TrackListID) ([]TrackListEntry, error) {
	rows, err := tx.Query(ctx, `SELECT id, tracklist_id, track_id, position, entry_timestamp_unix FROM tracklist_entry WHERE tracklist_id = ? ORDER BY position ASC`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []TrackListEntry
	for rows.Next {
		var e TrackListEntry
		var ts sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TrackListID, &e.TrackID, &e.Position, &ts); err != nil {
			return nil, err
		}
		e.EntryTimestampUnix = scanNullInt64(ts)
		out = append(out, e)
	}
	return out, rows.Err
}

// ClearTrackList removes every entry (used to reset the play queue).
func ClearTrackList(ctx context.Context, tx *Tx, listID dbtypes.TrackListID) error {
	_, err := tx.Exec(ctx, `DELETE FROM tracklist_entry WHERE tracklist_id = ?`, listID)
	return err
}

// DeleteTrackList removes a tracklist and its entries.
func DeleteTrackList(ctx context.Context, tx *Tx, id dbtypes.TrackListID) error {
	_, err := tx.Exec(ctx, `DELETE FROM tracklist WHERE id = ?`, id)
	return err
}

// --- Recently/most played (played_tracks internal tracklist) ---

// RecordPlayedTrack appends a play event to a user's played_tracks
// tracklist, creating it on first use. ListRecentlyPlayed and
// ListMostPlayed aggregate over the entries it accumulates.
func RecordPlayedTrack(ctx context.Context, tx *Tx, userID dbtypes.UserID, trackID dbtypes.TrackID, nowUnix int64) error {
	var listID dbtypes.TrackListID
	row := tx.QueryRow(ctx, `SELECT id FROM tracklist WHERE owner_user_id = ? AND type = ?`, userID, string(TrackListPlayedTracks))
	err := row.Scan(&listID)
	if err == sql.ErrNoRows {
		tl, cerr := CreateTrackList(ctx, tx, CreateTrackListParams{
			OwnerUserID: &userID, Type: TrackListPlayedTracks, Visibility: VisibilityPrivate, Name: "played tracks",
		}, nowUnix)
		if cerr != nil {
			return cerr
		}
		listID = tl.ID
	} else if err != nil {
		return err
	}
	return AppendTrackListEntry(ctx, tx, listID, trackID, &nowUnix)
}

// ListRecentlyPlayed returns a user's most recently played tracks, newest
// play first, deduplicated by track.
func ListRecentlyPlayed(ctx context.Context, tx *Tx, userID dbtypes.UserID, limit int) ([]Track, error) {
	rows, err := tx.Query(ctx, trackSelectColumns+`
		JOIN (
			SELECT te.track_id, MAX(te.entry_timestamp_unix) AS last_played
			FROM tracklist_entry te
			JOIN tracklist tl ON tl.id = te.tracklist_id
			WHERE tl.owner_user_id = ? AND tl.type = ?
			GROUP BY te.track_id
		) lp ON lp.track_id = t.id
		ORDER BY lp.last_played DESC
		LIMIT ?`, userID, string(TrackListPlayedTracks), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []Track
	for rows.Next {
		t, err := scanTrackRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err
}

// ListMostPlayed returns a user's tracks ordered by total play count, the
// queue's "most played" panel.
func ListMostPlayed(ctx context.Context, tx *Tx, userID dbtypes.UserID, limit int) ([]Track, error) {
	rows, err := tx.Query(ctx, trackSelectColumns+`
		JOIN (
			SELECT te.track_id, COUNT(*) AS play_count
			FROM tracklist_entry te
			JOIN tracklist tl ON tl.id = te.tracklist_id
			WHERE tl.owner_user_id = ? AND tl.type = ?
			GROUP BY te.track_id
		) mp ON mp.track_id = t.id
		ORDER BY mp.play_count DESC
		LIMIT ?`, userID, string(TrackListPlayedTracks), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []Track
	for rows.Next {
		t, err := scanTrackRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err
}
