package store

import (
	"context"
	"database/sql"

	"lms/internal/dbtypes"
)

// UpsertMediaLibrary inserts or updates a scan root by its unique path,
// using the "insert ... on conflict do update ... returning" shape that
// UpsertDirectory and UpsertImage also use.
func UpsertMediaLibrary(ctx context.Context, tx *Tx, p UpsertMediaLibraryParams) (MediaLibrary, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO media_library (name, root_path) VALUES (?, ?)
		ON CONFLICT(root_path) DO UPDATE SET name = excluded.name
		RETURNING id, name, root_path`,
		p.Name, p.RootPath)

	var m MediaLibrary
	if err := row.Scan(&m.ID, &m.Name, &m.RootPath); err != nil {
		return MediaLibrary{}, err
	}
	return m, nil
}

// ListMediaLibraries returns every configured scan root.
func ListMediaLibraries(ctx context.Context, tx *Tx) ([]MediaLibrary, error) {
	rows, err := tx.Query(ctx, `SELECT id, name, root_path FROM media_library ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close

	var out []MediaLibrary
	for rows.Next {
		var m MediaLibrary
		if err := rows.Scan(&m.ID, &m.Name, &m.RootPath); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err
}

// UpsertDirectory inserts or updates a directory entry encountered while
// walking a media library root, returning its ID for use as a track's
// directory_id foreign key.
func UpsertDirectory(ctx context.Context, tx *Tx, path string, parentID *dbtypes.DirectoryID, libraryID dbtypes.MediaLibraryID) (dbtypes.DirectoryID, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO directory (path, parent_id, media_library_id) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET parent_id = excluded.parent_id
		RETURNING id`,
		path, nullableDirID(parentID), libraryID)

	var id dbtypes.DirectoryID
	if err := row.Scan(&id); err != nil {
		return dbtypes.Invalid, err
	}
	return id, nil
}

// DeleteOrphanDirectories removes directory rows under libraryID with no
// remaining tracks.
func DeleteOrphanDirectories(ctx context.Context, tx *Tx, libraryID dbtypes.MediaLibraryID) (int64, error) {
	res, err := tx.Exec(ctx, `
		DELETE FROM directory
		WHERE media_library_id = ?
		 AND id NOT IN (SELECT DISTINCT directory_id FROM track)`,
		libraryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected
}

// UpsertImage records (or updates the size/mtime of) an image file found on
// disk, returning its ID for use as a cover_image_id / artist image_id.
func UpsertImage(ctx context.Context, tx *Tx, path string, fileSize, mtimeUnix int64) (dbtypes.ImageID, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO image (path, file_size, mtime_unix) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET file_size = excluded.file_size, mtime_unix = excluded.mtime_unix
		RETURNING id`,
		path, fileSize, mtimeUnix)

	var id dbtypes.ImageID
	if err := row.Scan(&id); err != nil {
		return dbtypes.Invalid, err
	}
	return id, nil
}

// DeleteOrphanImages removes image rows referenced by nothing.
func DeleteOrphanImages(ctx context.Context, tx *Tx) (int64, error) {
	res, err := tx.Exec(ctx, `
		DELETE FROM image
		WHERE id NOT IN (SELECT cover_image_id FROM release WHERE cover_image_id IS NOT NULL)
		 AND id NOT IN (SELECT image_id FROM artist WHERE image_id IS NOT NULL)
		 AND id NOT IN (SELECT embedded_image_id FROM track WHERE embedded_image_id IS NOT NULL)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected
}

func nullableDirID(id *dbtypes.DirectoryID) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func scanNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func scanNullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
