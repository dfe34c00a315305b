package store

import (
	"context"

	"lms/internal/dbtypes"
)

// UpdateArtistSortName rewrites an artist's sort_name in place, used by the
// scanner's UpdateLibraryFields step to re-derive sort names for
// rows created before an operator changed how sort names are computed,
// without re-reading the backing audio file.
func UpdateArtistSortName(ctx context.Context, tx *Tx, id dbtypes.ArtistID, sortName string) error {
	_, err := tx.Exec(ctx, `UPDATE artist SET sort_name = ? WHERE id = ?`, sortName, id)
	return err
}

// UpdateReleaseSortName is the release-scoped sibling of
// UpdateArtistSortName.
func UpdateReleaseSortName(ctx context.Context, tx *Tx, id dbtypes.ReleaseID, sortName string) error {
	_, err := tx.Exec(ctx, `UPDATE release SET sort_name = ? WHERE id = ?`, sortName, id)
	return err
}

// UpdateArtistEnrichment records the MusicBrainz match found by the
// scanner's FetchArtistInfo step. biography carries the
// disambiguation string when MusicBrainz has no proper biography field.
func UpdateArtistEnrichment(ctx context.Context, tx *Tx, id dbtypes.ArtistID, mbid, biography *string) error {
	_, err := tx.Exec(ctx, `UPDATE artist SET mbid = COALESCE(?, mbid), biography = COALESCE(?, biography) WHERE id = ?`,
		nullString(mbid), nullString(biography), id)
	return err
}
