package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lms/internal/dbtypes"
)

// UpsertArtist inserts or updates an artist keyed by name+sort_name: it
// looks the row up first and fills in mbid/biography from p when given,
// or else inserts a new row with INSERT ... RETURNING onto the
// dbtypes.ArtistID surrogate key.
func UpsertArtist(ctx context.Context, tx *Tx, p UpsertArtistParams) (Artist, error) {
	var existing Artist
	var mbid, bio sql.NullString
	err := tx.QueryRow(ctx, `SELECT id, name, sort_name, mbid, biography FROM artist WHERE name = ? AND sort_name = ?`,
		p.Name, p.SortName).Scan(&existing.ID, &existing.Name, &existing.SortName, &mbid, &bio)
	switch err {
	case nil:
		if p.MBID != nil || p.Biography != nil {
			_, uerr := tx.Exec(ctx, `UPDATE artist SET mbid = COALESCE(?, mbid), biography = COALESCE(?, biography) WHERE id = ?`,
				nullString(p.MBID), nullString(p.Biography), existing.ID)
			if uerr != nil {
				return Artist{}, uerr
			}
		}
		existing.MBID = scanNullString(mbid)
		existing.Biography = scanNullString(bio)
		return existing, nil
	case sql.ErrNoRows:
		insRow := tx.QueryRow(ctx, `
			INSERT INTO artist (name, sort_name, mbid, biography) VALUES (?, ?, ?, ?)
			RETURNING id, name, sort_name, mbid, biography`,
			p.Name, p.SortName, nullString(p.MBID), nullString(p.Biography))
		var a Artist
		if serr := insRow.Scan(&a.ID, &a.Name, &a.SortName, &mbid, &bio); serr != nil {
			return Artist{}, serr
		}
		a.MBID = scanNullString(mbid)
		a.Biography = scanNullString(bio)
		return a, nil
	default:
		return Artist{}, err
	}
}

// SetArtistImage attaches an already-upserted image row to an artist
// (AssociateArtistImages).
func SetArtistImage(ctx context.Context, tx *Tx, artistID dbtypes.ArtistID, imageID dbtypes.ImageID) error {
	_, err := tx.Exec(ctx, `UPDATE artist SET image_id = ? WHERE id = ?`, imageID, artistID)
	return err
}

// GetArtist fetches a single artist by ID.
func GetArtist(ctx context.Context, tx *Tx, id dbtypes.ArtistID) (Artist, error) {
	var a Artist
	var mbid, bio sql.NullString
	var imageID sql.NullInt64
	row := tx.QueryRow(ctx, `SELECT id, name, sort_name, mbid, biography, image_id FROM artist WHERE id = ?`, id)
	if err := row.Scan(&a.ID, &a.Name, &a.SortName, &mbid, &bio, &imageID); err != nil {
		if err == sql.ErrNoRows {
			return Artist{}, &ErrNotFound{Entity: "artist", ID: id}
		}
		return Artist{}, err
	}
	a.MBID = scanNullString(mbid)
	a.Biography = scanNullString(bio)
	if imageID.Valid {
		v := dbtypes.ImageID(imageID.Int64)
		a.ImageID = &v
	}
	return a, nil
}

// FindArtists runs the generic artist finder: cluster
// intersection, free-text keyword substring match and starred-only
// scoping, with whitelisted sort methods and Range-based pagination that
// fetches one extra row to compute MoreResults.
func FindArtists(ctx context.Context, tx *Tx, params FindParameters) (RangeResults[Artist], error) {
	var where []string
	var args []any

	query := `SELECT DISTINCT a.id, a.name, a.sort_name, a.mbid, a.biography, a.image_id FROM artist a`

	if len(params.Filters.ClusterIDs) > 0 {
		query += ` JOIN track_artist ta ON ta.artist_id = a.id JOIN track_cluster tc ON tc.track_id = ta.track_id`
		placeholders := make([]string, len(params.Filters.ClusterIDs))
		for i, id := range params.Filters.ClusterIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, fmt.Sprintf("tc.cluster_id IN (%s)", strings.Join(placeholders, ",")))
	}

	if params.Filters.StarredByUser.IsValid {
		query += ` JOIN starred_artist sa ON sa.artist_id = a.id`
		where = append(where, "sa.user_id = ?")
		args = append(args, params.Filters.StarredByUser)
	}

	for _, kw := range params.Filters.Keywords {
		where = append(where, "a.name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(kw)+"%")
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	if len(params.Filters.ClusterIDs) > 0 {
		query += fmt.Sprintf(" GROUP BY a.id HAVING COUNT(DISTINCT tc.cluster_id) = %d", len(params.Filters.ClusterIDs))
	}

	orderExpr, orderArgs := orderByExpr(params.Filters.SortMethod, params.Filters.RandomSeed, "a.id", "a.sort_name COLLATE NOCASE ASC")
	query += " ORDER BY " + orderExpr
	args = append(args, orderArgs...)
	query += " LIMIT ? OFFSET ?"
	args = append(args, params.Range.Size+1, params.Range.Offset)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return RangeResults[Artist]{}, err
	}
	defer rows.Close

	var out []Artist
	for rows.Next {
		var a Artist
		var mbid, bio sql.NullString
		var imageID sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Name, &a.SortName, &mbid, &bio, &imageID); err != nil {
			return RangeResults[Artist]{}, err
		}
		a.MBID = scanNullString(mbid)
		a.Biography = scanNullString(bio)
		if imageID.Valid {
			v := dbtypes.ImageID(imageID.Int64)
			a.ImageID = &v
		}
		out = append(out, a)
	}
	if err := rows.Err; err != nil {
		return RangeResults[Artist]{}, err
	}

	more := len(out) > params.Range.Size
	if more {
		out = out[:params.Range.Size]
	}
	return RangeResults[Artist]{Range: params.Range, Results: out, MoreResults: more}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

// DeleteOrphanArtists removes artists with no remaining track_artist rows.
func DeleteOrphanArtists(ctx context.Context, tx *Tx) (int64, error) {
	res, err := tx.Exec(ctx, `DELETE FROM artist WHERE id NOT IN (SELECT DISTINCT artist_id FROM track_artist)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected
}
