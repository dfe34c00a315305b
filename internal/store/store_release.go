package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lms/internal/dbtypes"
)

// UpsertRelease finds-or-creates a release keyed by name+sort_name, the
// same shape as UpsertArtist.
func UpsertRelease(ctx context.Context, tx *Tx, p UpsertReleaseParams) (Release, error) {
	var existing Release
	var mbid sql.NullString
	var year, origYear, totalDisc sql.NullInt64
	err := tx.QueryRow(ctx, `SELECT id, name, sort_name, mbid, year, original_year, total_disc FROM release WHERE name = ? AND sort_name = ?`,
		p.Name, p.SortName).Scan(&existing.ID, &existing.Name, &existing.SortName, &mbid, &year, &origYear, &totalDisc)

	switch err {
	case nil:
		scanReleaseNullables(&existing, mbid, year, origYear, totalDisc)
		return existing, nil
	case sql.ErrNoRows:
		insRow := tx.QueryRow(ctx, `
			INSERT INTO release (name, sort_name, mbid, year, original_year, total_disc) VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id, name, sort_name, mbid, year, original_year, total_disc`,
			p.Name, p.SortName, nullString(p.MBID), nullInt(p.Year), nullInt(p.OriginalYear), nullInt(p.TotalDisc))
		var r Release
		if serr := insRow.Scan(&r.ID, &r.Name, &r.SortName, &mbid, &year, &origYear, &totalDisc); serr != nil {
			return Release{}, serr
		}
		scanReleaseNullables(&r, mbid, year, origYear, totalDisc)
		return r, nil
	default:
		return Release{}, err
	}
}

func scanReleaseNullables(r *Release, mbid sql.NullString, year, origYear, totalDisc sql.NullInt64) {
	r.MBID = scanNullString(mbid)
	if year.Valid {
		v := int(year.Int64)
		r.Year = &v
	}
	if origYear.Valid {
		v := int(origYear.Int64)
		r.OriginalYear = &v
	}
	if totalDisc.Valid {
		v := int(totalDisc.Int64)
		r.TotalDisc = &v
	}
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// SetReleaseCoverImage attaches a cover image found during
// AssociateReleaseImages.
func SetReleaseCoverImage(ctx context.Context, tx *Tx, releaseID dbtypes.ReleaseID, imageID dbtypes.ImageID) error {
	_, err := tx.Exec(ctx, `UPDATE release SET cover_image_id = ? WHERE id = ?`, imageID, releaseID)
	return err
}

// LinkReleaseLabel and LinkReleaseType record the many-to-many
// release/label and release/type associations.
func LinkReleaseLabel(ctx context.Context, tx *Tx, releaseID dbtypes.ReleaseID, name string) error {
	labelID, err := upsertLabel(ctx, tx, name)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT OR IGNORE INTO release_label (release_id, label_id) VALUES (?, ?)`, releaseID, labelID)
	return err
}

func upsertLabel(ctx context.Context, tx *Tx, name string) (dbtypes.LabelID, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO label (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id`, name)
	var id dbtypes.LabelID
	return id, row.Scan(&id)
}

func LinkReleaseType(ctx context.Context, tx *Tx, releaseID dbtypes.ReleaseID, name string) error {
	row := tx.QueryRow(ctx, `
		INSERT INTO release_type (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id`, name)
	var typeID dbtypes.ReleaseTypeID
	if err := row.Scan(&typeID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `INSERT OR IGNORE INTO release_release_type (release_id, release_type_id) VALUES (?, ?)`, releaseID, typeID)
	return err
}

// GetRelease fetches a single release by ID.
func GetRelease(ctx context.Context, tx *Tx, id dbtypes.ReleaseID) (Release, error) {
	var r Release
	var mbid sql.NullString
	var year, origYear, totalDisc sql.NullInt64
	var coverID sql.NullInt64
	row := tx.QueryRow(ctx, `SELECT id, name, sort_name, mbid, year, original_year, total_disc, cover_image_id FROM release WHERE id = ?`, id)
	if err := row.Scan(&r.ID, &r.Name, &r.SortName, &mbid, &year, &origYear, &totalDisc, &coverID); err != nil {
		if err == sql.ErrNoRows {
			return Release{}, &ErrNotFound{Entity: "release", ID: id}
		}
		return Release{}, err
	}
	scanReleaseNullables(&r, mbid, year, origYear, totalDisc)
	if coverID.Valid {
		v := dbtypes.ImageID(coverID.Int64)
		r.CoverImageID = &v
	}
	return r, nil
}

// FindReleases is the release-scoped sibling of FindArtists.
func FindReleases(ctx context.Context, tx *Tx, params FindParameters) (RangeResults[Release], error) {
	var where []string
	var args []any

	query := `SELECT DISTINCT r.id, r.name, r.sort_name, r.mbid, r.year, r.original_year, r.total_disc, r.cover_image_id FROM release r`

	if len(params.Filters.ClusterIDs) > 0 {
		query += ` JOIN track t ON t.release_id = r.id JOIN track_cluster tc ON tc.track_id = t.id`
		placeholders := make([]string, len(params.Filters.ClusterIDs))
		for i, id := range params.Filters.ClusterIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, fmt.Sprintf("tc.cluster_id IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(params.Filters.ReleaseTypeIDs) > 0 {
		query += ` JOIN release_release_type rrt ON rrt.release_id = r.id`
		placeholders := make([]string, len(params.Filters.ReleaseTypeIDs))
		for i, id := range params.Filters.ReleaseTypeIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, fmt.Sprintf("rrt.release_type_id IN (%s)", strings.Join(placeholders, ",")))
	}

	if params.Filters.StarredByUser.IsValid {
		query += ` JOIN starred_release sr ON sr.release_id = r.id`
		where = append(where, "sr.user_id = ?")
		args = append(args, params.Filters.StarredByUser)
	}

	for _, kw := range params.Filters.Keywords {
		where = append(where, "r.name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(kw)+"%")
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	if len(params.Filters.ClusterIDs) > 0 {
		query += fmt.Sprintf(" GROUP BY r.id HAVING COUNT(DISTINCT tc.cluster_id) = %d", len(params.Filters.ClusterIDs))
	}

	orderExpr, orderArgs := orderByExpr(params.Filters.SortMethod, params.Filters.RandomSeed, "r.id", "r.sort_name COLLATE NOCASE ASC")
	query += " ORDER BY " + orderExpr
	args = append(args, orderArgs...)
	query += " LIMIT ? OFFSET ?"
	args = append(args, params.Range.Size+1, params.Range.Offset)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return RangeResults[Release]{}, err
	}
	defer rows.Close

	var out []Release
	for rows.Next {
		var r Release
		var mbid sql.NullString
		var year, origYear, totalDisc, coverID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Name, &r.SortName, &mbid, &year, &origYear, &totalDisc, &coverID); err != nil {
			return RangeResults[Release]{}, err
		}
		scanReleaseNullables(&r, mbid, year, origYear, totalDisc)
		if coverID.Valid {
			v := dbtypes.ImageID(coverID.Int64)
			r.CoverImageID = &v
		}
		out = append(out, r)
	}
	if err := rows.Err; err != nil {
		return RangeResults[Release]{}, err
	}

	more := len(out) > params.Range.Size
	if more {
		out = out[:params.Range.Size]
	}
	return RangeResults[Release]{Range: params.Range, Results: out, MoreResults: more}, nil
}

// DeleteOrphanReleases removes releases with no remaining tracks.
func DeleteOrphanReleases(ctx context.Context, tx *Tx) (int64, error) {
	res, err := tx.Exec(ctx, `DELETE FROM release WHERE id NOT IN (SELECT DISTINCT release_id FROM track WHERE release_id IS NOT NULL)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected
}
