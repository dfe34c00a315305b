package store

import (
	"context"

	"lms/internal/dbtypes"
)

// AllTrackReleaseIDs streams the track -> release association, the raw
// material the similarity engine uses to aggregate its member tracks' SOM
// cells per release.
func AllTrackReleaseIDs(ctx context.Context, tx *Tx) (map[dbtypes.TrackID]dbtypes.ReleaseID, error) {
	rows, err := tx.Query(ctx, `SELECT id, release_id FROM track WHERE release_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	out := make(map[dbtypes.TrackID]dbtypes.ReleaseID)
	for rows.Next {
		var trackID dbtypes.TrackID
		var releaseID dbtypes.ReleaseID
		if err := rows.Scan(&trackID, &releaseID); err != nil {
			return nil, err
		}
		out[trackID] = releaseID
	}
	return out, rows.Err
}

// AllTrackArtistIDs streams the track -> artist association for one link
// role, used to aggregate tracks' SOM cells per artist.
func AllTrackArtistIDs(ctx context.Context, tx *Tx, role TrackArtistLinkType) (map[dbtypes.TrackID][]dbtypes.ArtistID, error) {
	rows, err := tx.Query(ctx, `SELECT track_id, artist_id FROM track_artist WHERE role = ?`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close

	out := make(map[dbtypes.TrackID][]dbtypes.ArtistID)
	for rows.Next {
		var trackID dbtypes.TrackID
		var artistID dbtypes.ArtistID
		if err := rows.Scan(&trackID, &artistID); err != nil {
			return nil, err
		}
		out[trackID] = append(out[trackID], artistID)
	}
	return out, rows.Err
}
