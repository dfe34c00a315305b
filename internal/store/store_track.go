package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lms/internal/dbtypes"
)

// UpsertTrack inserts or fully replaces the row for path (unique key),
// keyed on the filesystem path rather than a client-generated UUID, since
// rescans must find the same logical track again by where it lives on
// disk (ScanFiles).
func UpsertTrack(ctx context.Context, tx *Tx, p UpsertTrackParams) (dbtypes.TrackID, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO track (
			path, title, file_size, mtime_unix, scan_time_unix, scan_version, duration_ms,
			track_number, track_total, disc_number, disc_total,
			release_date, original_release_date,
			mb_recording_id, mb_release_id, mb_track_id,
			replaygain_track, replaygain_release,
			copyright, copyright_url,
			bit_depth, channels, sample_rate,
			release_id, media_library_id, directory_id
		) VALUES (?, ?, ?, ?, strftime('%s','now'), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			file_size = excluded.file_size,
			mtime_unix = excluded.mtime_unix,
			scan_time_unix = excluded.scan_time_unix,
			scan_version = excluded.scan_version,
			duration_ms = excluded.duration_ms,
			track_number = excluded.track_number,
			track_total = excluded.track_total,
			disc_number = excluded.disc_number,
			disc_total = excluded.disc_total,
			release_date = excluded.release_date,
			original_release_date = excluded.original_release_date,
			mb_recording_id = excluded.mb_recording_id,
			mb_release_id = excluded.mb_release_id,
			mb_track_id = excluded.mb_track_id,
			replaygain_track = excluded.replaygain_track,
			replaygain_release = excluded.replaygain_release,
			copyright = excluded.copyright,
			copyright_url = excluded.copyright_url,
			bit_depth = excluded.bit_depth,
			channels = excluded.channels,
			sample_rate = excluded.sample_rate,
			release_id = excluded.release_id,
			media_library_id = excluded.media_library_id,
			directory_id = excluded.directory_id
		RETURNING id`,
		p.Path, p.Title, p.FileSize, p.MtimeUnix, p.ScanVersion, p.DurationMs,
		nullInt(p.TrackNumber), nullInt(p.TrackTotal), nullInt(p.DiscNumber), nullInt(p.DiscTotal),
		nullString(p.ReleaseDate), nullString(p.OriginalReleaseDate),
		nullString(p.MBRecordingID), nullString(p.MBReleaseID), nullString(p.MBTrackID),
		nullFloat(p.ReplayGainTrack), nullFloat(p.ReplayGainRelease),
		nullString(p.Copyright), nullString(p.CopyrightURL),
		nullInt(p.BitDepth), nullInt(p.Channels), nullInt(p.SampleRate),
		nullableReleaseID(p.ReleaseID), p.MediaLibraryID, p.DirectoryID,
	)

	var id dbtypes.TrackID
	if err := row.Scan(&id); err != nil {
		return dbtypes.Invalid, fmt.Errorf("store: upsert track %s: %w", p.Path, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM track_artist WHERE track_id = ?`, id); err != nil {
		return id, err
	}
	for _, name := range p.ArtistNames {
		if err := linkTrackArtist(ctx, tx, id, name, LinkArtist); err != nil {
			return id, err
		}
	}
	for _, name := range p.AlbumArtistNames {
		if err := linkTrackArtist(ctx, tx, id, name, LinkAlbumArtist); err != nil {
			return id, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM track_cluster WHERE track_id = ?`, id); err != nil {
		return id, err
	}
	for typeName, values := range p.ClusterNames {
		for _, value := range values {
			if err := linkTrackCluster(ctx, tx, id, typeName, value); err != nil {
				return id, err
			}
		}
	}

	return id, nil
}

func linkTrackArtist(ctx context.Context, tx *Tx, trackID dbtypes.TrackID, name string, role TrackArtistLinkType) error {
	artist, err := UpsertArtist(ctx, tx, UpsertArtistParams{Name: name, SortName: name})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT OR IGNORE INTO track_artist (track_id, artist_id, role) VALUES (?, ?, ?)`,
		trackID, artist.ID, string(role))
	return err
}

func linkTrackCluster(ctx context.Context, tx *Tx, trackID dbtypes.TrackID, typeName, value string) error {
	row := tx.QueryRow(ctx, `
		INSERT INTO cluster_type (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id`, typeName)
	var typeID dbtypes.ClusterTypeID
	if err := row.Scan(&typeID); err != nil {
		return err
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO cluster (cluster_type_id, name) VALUES (?, ?)
		ON CONFLICT(cluster_type_id, name) DO UPDATE SET name = excluded.name
		RETURNING id`, typeID, value)
	var clusterID dbtypes.ClusterID
	if err := row.Scan(&clusterID); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `INSERT OR IGNORE INTO track_cluster (track_id, cluster_id) VALUES (?, ?)`, trackID, clusterID)
	return err
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableReleaseID(id *dbtypes.ReleaseID) any {
	if id == nil {
		return nil
	}
	return *id
}

// GetTrack fetches a single track row by ID.
func GetTrack(ctx context.Context, tx *Tx, id dbtypes.TrackID) (Track, error) {
	row := tx.QueryRow(ctx, trackSelectColumns+` WHERE t.id = ?`, id)
	return scanTrack(row)
}

// GetTrackByPath fetches a track by its filesystem path.
func GetTrackByPath(ctx context.Context, tx *Tx, path string) (Track, error) {
	row := tx.QueryRow(ctx, trackSelectColumns+` WHERE t.path = ?`, path)
	return scanTrack(row)
}

const trackSelectColumns = `SELECT
	t.id, t.path, t.title, t.file_size, t.mtime_unix, t.scan_time_unix, t.scan_version, t.duration_ms,
	t.track_number, t.track_total, t.disc_number, t.disc_total,
	t.release_date, t.original_release_date,
	t.mb_recording_id, t.mb_release_id, t.mb_track_id,
	t.replaygain_track, t.replaygain_release,
	t.copyright, t.copyright_url,
	t.bit_depth, t.channels, t.sample_rate,
	t.release_id, t.media_library_id, t.directory_id
	FROM track t`

func scanTrack(row *sql.Row) (Track, error) {
	var t Track
	var trackNumber, trackTotal, discNumber, discTotal sql.NullInt64
	var releaseDate, originalReleaseDate, mbRecording, mbRelease, mbTrack sql.NullString
	var rgTrack, rgRelease sql.NullFloat64
	var copyright, copyrightURL sql.NullString
	var bitDepth, channels, sampleRate sql.NullInt64
	var releaseID sql.NullInt64

	err := row.Scan(&t.ID, &t.Path, &t.Title, &t.FileSize, &t.MtimeUnix, &t.ScanTimeUnix, &t.ScanVersion, &t.DurationMs,
		&trackNumber, &trackTotal, &discNumber, &discTotal,
		&releaseDate, &originalReleaseDate,
		&mbRecording, &mbRelease, &mbTrack,
		&rgTrack, &rgRelease,
		&copyright, &copyrightURL,
		&bitDepth, &channels, &sampleRate,
		&releaseID, &t.MediaLibraryID, &t.DirectoryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return Track{}, &ErrNotFound{Entity: "track"}
		}
		return Track{}, err
	}

	t.TrackNumber = scanNullInt(trackNumber)
	t.TrackTotal = scanNullInt(trackTotal)
	t.DiscNumber = scanNullInt(discNumber)
	t.DiscTotal = scanNullInt(discTotal)
	t.ReleaseDate = scanNullString(releaseDate)
	t.OriginalReleaseDate = scanNullString(originalReleaseDate)
	t.MBRecordingID = scanNullString(mbRecording)
	t.MBReleaseID = scanNullString(mbRelease)
	t.MBTrackID = scanNullString(mbTrack)
	if rgTrack.Valid {
		t.ReplayGainTrack = &rgTrack.Float64
	}
	if rgRelease.Valid {
		t.ReplayGainRelease = &rgRelease.Float64
	}
	t.Copyright = scanNullString(copyright)
	t.CopyrightURL = scanNullString(copyrightURL)
	t.BitDepth = scanNullInt(bitDepth)
	t.Channels = scanNullInt(channels)
	t.SampleRate = scanNullInt(sampleRate)
	if releaseID.Valid {
		v := dbtypes.ReleaseID(releaseID.Int64)
		t.ReleaseID = &v
	}
	return t, nil
}

func scanNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// DeleteTrack removes a track row (CheckForRemovedFiles).
func DeleteTrack(ctx context.Context, tx *Tx, id dbtypes.TrackID) error {
	_, err := tx.Exec(ctx, `DELETE FROM track WHERE id = ?`, id)
	return err
}

// ListTrackPathsUnderLibrary streams every known track path for a library,
// used to diff against a filesystem walk in CheckForRemovedFiles.
func ListTrackPathsUnderLibrary(ctx context.Context, tx *Tx, libraryID dbtypes.MediaLibraryID) (map[string]dbtypes.TrackID, error) {
	rows, err := tx.Query(ctx, `SELECT path, id FROM track WHERE media_library_id = ?`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	out := make(map[string]dbtypes.TrackID)
	for rows.Next {
		var path string
		var id dbtypes.TrackID
		if err := rows.Scan(&path, &id); err != nil {
			return nil, err
		}
		out[path] = id
	}
	return out, rows.Err
}

// FindTracks is the track-scoped sibling of FindArtists/FindReleases.
func FindTracks(ctx context.Context, tx *Tx, params FindParameters) (RangeResults[Track], error) {
	var where []string
	var args []any

	query := strings.Replace(trackSelectColumns, "FROM track t", "FROM track t", 1)

	if len(params.Filters.ClusterIDs) > 0 {
		query += ` JOIN track_cluster tc ON tc.track_id = t.id`
		placeholders := make([]string, len(params.Filters.ClusterIDs))
		for i, id := range params.Filters.ClusterIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, fmt.Sprintf("tc.cluster_id IN (%s)", strings.Join(placeholders, ",")))
	}

	if params.Filters.MediaLibraryID.IsValid {
		where = append(where, "t.media_library_id = ?")
		args = append(args, params.Filters.MediaLibraryID)
	}

	if params.Filters.StarredByUser.IsValid {
		query += ` JOIN starred_track st ON st.track_id = t.id`
		where = append(where, "st.user_id = ?")
		args = append(args, params.Filters.StarredByUser)
	}

	for _, kw := range params.Filters.Keywords {
		where = append(where, "t.path LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(kw)+"%")
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if len(params.Filters.ClusterIDs) > 0 {
		query += fmt.Sprintf(" GROUP BY t.id HAVING COUNT(DISTINCT tc.cluster_id) = %d", len(params.Filters.ClusterIDs))
	}

	orderExpr, orderArgs := orderByExprFull(params.Filters.SortMethod, params.Filters.RandomSeed, "t.id", "t.scan_time_unix DESC", "t.disc_number ASC, t.track_number ASC, t.path ASC")
	query += " ORDER BY " + orderExpr
	args = append(args, orderArgs...)
	query += " LIMIT ? OFFSET ?"
	args = append(args, params.Range.Size+1, params.Range.Offset)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return RangeResults[Track]{}, err
	}
	defer rows.Close

	var out []Track
	for rows.Next {
		t, err := scanTrackRows(rows)
		if err != nil {
			return RangeResults[Track]{}, err
		}
		out = append(out, t)
	}
	if err := rows.Err; err != nil {
		return RangeResults[Track]{}, err
	}

	more := len(out) > params.Range.Size
	if more {
		out = out[:params.Range.Size]
	}
	return RangeResults[Track]{Range: params.Range, Results: out, MoreResults: more}, nil
}

func scanTrackRows(rows *sql.Rows) (Track, error) {
	var t Track
	var trackNumber, trackTotal, discNumber, discTotal sql.NullInt64
	var releaseDate, originalReleaseDate, mbRecording, mbRelease, mbTrack sql.NullString
	var rgTrack, rgRelease sql.NullFloat64
	var copyright, copyrightURL sql.NullString
	var bitDepth, channels, sampleRate sql.NullInt64
	var releaseID sql.NullInt64

	err := rows.Scan(&t.ID, &t.Path, &t.Title, &t.FileSize, &t.MtimeUnix, &t.ScanTimeUnix, &t.ScanVersion, &t.DurationMs,
		&trackNumber, &trackTotal, &discNumber, &discTotal,
		&releaseDate, &originalReleaseDate,
		&mbRecording, &mbRelease, &mbTrack,
		&rgTrack, &rgRelease,
		&copyright, &copyrightURL,
		&bitDepth, &channels, &sampleRate,
		&releaseID, &t.MediaLibraryID, &t.DirectoryID)
	if err != nil {
		return Track{}, err
	}
	t.TrackNumber = scanNullInt(trackNumber)
	t.TrackTotal = scanNullInt(trackTotal)
	t.DiscNumber = scanNullInt(discNumber)
	t.DiscTotal = scanNullInt(discTotal)
	t.ReleaseDate = scanNullString(releaseDate)
	t.OriginalReleaseDate = scanNullString(originalReleaseDate)
	t.MBRecordingID = scanNullString(mbRecording)
	t.MBReleaseID = scanNullString(mbRelease)
	t.MBTrackID = scanNullString(mbTrack)
	if rgTrack.Valid {
		t.ReplayGainTrack = &rgTrack.Float64
	}
	if rgRelease.Valid {
		t.ReplayGainRelease = &rgRelease.Float64
	}
	t.Copyright = scanNullString(copyright)
	t.CopyrightURL = scanNullString(copyrightURL)
	t.BitDepth = scanNullInt(bitDepth)
	t.Channels = scanNullInt(channels)
	t.SampleRate = scanNullInt(sampleRate)
	if releaseID.Valid {
		v := dbtypes.ReleaseID(releaseID.Int64)
		t.ReleaseID = &v
	}
	return t, nil
}

// ListTracksByRelease returns every track of a release in disc/track order,
// the album-detail view's track listing.
func ListTracksByRelease(ctx context.Context, tx *Tx, releaseID dbtypes.ReleaseID) ([]Track, error) {
	rows, err := tx.Query(ctx, trackSelectColumns+` WHERE t.release_id = ? ORDER BY t.disc_number ASC, t.track_number ASC, t.path ASC`, releaseID)
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

// TrackArtistNames returns the artist names linked to a track under one
// role, e.g. the performing artists or the album artists of a compilation
// track.
func TrackArtistNames(ctx context.Context, tx *Tx, trackID dbtypes.TrackID, role TrackArtistLinkType) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.name FROM track_artist ta JOIN artist a ON a.id = ta.artist_id
		WHERE ta.track_id = ? AND ta.role = ? ORDER BY a.name`, trackID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []string
	for rows.Next {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err
}

// TrackClusterIDs returns the set of cluster IDs a track belongs to.
func TrackClusterIDs(ctx context.Context, tx *Tx, trackID dbtypes.TrackID) ([]dbtypes.ClusterID, error) {
	rows, err := tx.Query(ctx, `SELECT cluster_id FROM track_cluster WHERE track_id = ?`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []dbtypes.ClusterID
	for rows.Next {
		var id dbtypes.ClusterID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err
}
