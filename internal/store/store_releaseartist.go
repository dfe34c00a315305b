package store

import (
	"context"
	"database/sql"

	"lms/internal/dbtypes"
)

// ReleaseAlbumArtistIDs returns the distinct album-artist ids linked to any
// track of releaseID, used by the scanner's artist-image association step
// to find which artist a release's folder art should also cover.
func ReleaseAlbumArtistIDs(ctx context.Context, tx *Tx, releaseID dbtypes.ReleaseID) ([]dbtypes.ArtistID, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT ta.artist_id
		FROM track_artist ta
		JOIN track t ON t.id = ta.track_id
		WHERE t.release_id = ? AND ta.role = ?`, releaseID, string(LinkAlbumArtist))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []dbtypes.ArtistID
	for rows.Next() {
		var id dbtypes.ArtistID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReleasesByArtist returns every release that carries at least one track
// linking to artistID under role, the artist-detail view's discography.
func ReleasesByArtist(ctx context.Context, tx *Tx, artistID dbtypes.ArtistID, role TrackArtistLinkType) ([]Release, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT r.id, r.name, r.sort_name, r.mbid, r.year, r.original_year, r.total_disc, r.cover_image_id
		FROM release r
		JOIN track t ON t.release_id = r.id
		JOIN track_artist ta ON ta.track_id = t.id
		WHERE ta.artist_id = ? AND ta.role = ?
		ORDER BY r.year DESC, r.sort_name COLLATE NOCASE ASC`, artistID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Release
	for rows.Next() {
		var r Release
		var mbid sql.NullString
		var year, origYear, totalDisc, coverID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Name, &r.SortName, &mbid, &year, &origYear, &totalDisc, &coverID); err != nil {
			return nil, err
		}
		scanReleaseNullables(&r, mbid, year, origYear, totalDisc)
		if coverID.Valid {
			v := dbtypes.ImageID(coverID.Int64)
			r.CoverImageID = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
