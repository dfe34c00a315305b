package store

import (
	"context"

	"lms/internal/dbtypes"
)

// StarTrack/UnstarTrack and their Artist/Release siblings implement the
// favorites model (StarredX): one row per (user, entity, backend),
// with a sync_state column so a future ListenBrainz "love" push can track
// what's already mirrored.

func StarTrack(ctx context.Context, tx *Tx, userID dbtypes.UserID, trackID dbtypes.TrackID, nowUnix int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO starred_track (user_id, track_id, backend, sync_state, starred_at_unix) VALUES (?, ?, 'internal', 'unsynchronized', ?)
		ON CONFLICT(user_id, track_id, backend) DO NOTHING`, userID, trackID, nowUnix)
	return err
}

func UnstarTrack(ctx context.Context, tx *Tx, userID dbtypes.UserID, trackID dbtypes.TrackID) error {
	_, err := tx.Exec(ctx, `DELETE FROM starred_track WHERE user_id = ? AND track_id = ? AND backend = 'internal'`, userID, trackID)
	return err
}

func StarArtist(ctx context.Context, tx *Tx, userID dbtypes.UserID, artistID dbtypes.ArtistID, nowUnix int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO starred_artist (user_id, artist_id, backend, sync_state, starred_at_unix) VALUES (?, ?, 'internal', 'unsynchronized', ?)
		ON CONFLICT(user_id, artist_id, backend) DO NOTHING`, userID, artistID, nowUnix)
	return err
}

func UnstarArtist(ctx context.Context, tx *Tx, userID dbtypes.UserID, artistID dbtypes.ArtistID) error {
	_, err := tx.Exec(ctx, `DELETE FROM starred_artist WHERE user_id = ? AND artist_id = ? AND backend = 'internal'`, userID, artistID)
	return err
}

func StarRelease(ctx context.Context, tx *Tx, userID dbtypes.UserID, releaseID dbtypes.ReleaseID, nowUnix int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO starred_release (user_id, release_id, backend, sync_state, starred_at_unix) VALUES (?, ?, 'internal', 'unsynchronized', ?)
		ON CONFLICT(user_id, release_id, backend) DO NOTHING`, userID, releaseID, nowUnix)
	return err
}

func UnstarRelease(ctx context.Context, tx *Tx, userID dbtypes.UserID, releaseID dbtypes.ReleaseID) error {
	_, err := tx.Exec(ctx, `DELETE FROM starred_release WHERE user_id = ? AND release_id = ? AND backend = 'internal'`, userID, releaseID)
	return err
}

// ListStarredTracks returns the tracks a user has starred, newest first.
func ListStarredTracks(ctx context.Context, tx *Tx, userID dbtypes.UserID) ([]dbtypes.TrackID, error) {
	rows, err := tx.Query(ctx, `SELECT track_id FROM starred_track WHERE user_id = ? ORDER BY starred_at_unix DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []dbtypes.TrackID
	for rows.Next {
		var id dbtypes.TrackID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err
}

// PendingSyncStarredTracks returns starred rows awaiting a push to an
// external scrobble/favorites backend, for the sync worker.
func PendingSyncStarredTracks(ctx context.Context, tx *Tx, backend string) ([]StarredTrack, error) {
	rows, err := tx.Query(ctx, `SELECT user_id, track_id, backend, sync_state, starred_at_unix FROM starred_track WHERE backend = ? AND sync_state != 'synchronized'`, backend)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []StarredTrack
	for rows.Next {
		var s StarredTrack
		var state string
		if err := rows.Scan(&s.UserID, &s.TrackID, &s.Backend, &state, &s.StarredAtUnix); err != nil {
			return nil, err
		}
		s.SyncState = SyncState(state)
		out = append(out, s)
	}
	return out, rows.Err
}
