package scanner

import (
	"context"

	"lms/internal/store"
	"lms/internal/tagutil"
)

// updateLibraryFields re-derives fields that depend on configuration
// rather than file content — currently just sort-name article reordering
// — so a change to the sort-name algorithm takes effect on existing rows
// without forcing a full rescan ("library field fixups", batches of
// ~100, the same batch size used throughout the ingest-state writes).
func (s *Scanner) updateLibraryFields(ctx context.Context, lib store.MediaLibrary, stats *Stats) error {
	if err := s.fixupArtistSortNames(ctx, lib, stats); err != nil {
		return err
	}
	return s.fixupReleaseSortNames(ctx, lib, stats)
}

const libraryFieldBatchSize = 100

func (s *Scanner) fixupArtistSortNames(ctx context.Context, lib store.MediaLibrary, stats *Stats) error {
	offset := 0
	for {
		if s.aborting {
			return nil
		}
		tx, err := s.session.ReadTransaction(ctx)
		if err != nil {
			return err
		}
		page, err := store.FindArtists(ctx, tx, store.FindParameters{
			Filters: store.FindFilters{SortMethod: store.SortName},
			Range: store.Range{Offset: offset, Size: libraryFieldBatchSize},
		})
		tx.Abandon
		if err != nil {
			return err
		}

		var fixes []store.Artist
		for _, a := range page.Results {
			if want := tagutil.SortName(a.Name); want != a.SortName {
				a.SortName = want
				fixes = append(fixes, a)
			}
		}
		if len(fixes) > 0 {
			wtx, err := s.session.WriteTransaction(ctx)
			if err != nil {
				return err
			}
			for _, a := range fixes {
				if err := store.UpdateArtistSortName(ctx, wtx, a.ID, a.SortName); err != nil {
					wtx.Abandon
					return err
				}
			}
			if err := wtx.Commit; err != nil {
				return err
			}
		}

		offset += len(page.Results)
		s.publish(StepUpdateLibraryFields, 0, offset)
		if !page.MoreResults || len(page.Results) == 0 {
			return nil
		}
	}
}

func (s *Scanner) fixupReleaseSortNames(ctx context.Context, lib store.MediaLibrary, stats *Stats) error {
	offset := 0
	for {
		if s.aborting {
			return nil
		}
		tx, err := s.session.ReadTransaction(ctx)
		if err != nil {
			return err
		}
		page, err := store.FindReleases(ctx, tx, store.FindParameters{
			Filters: store.FindFilters{SortMethod: store.SortName},
			Range: store.Range{Offset: offset, Size: libraryFieldBatchSize},
		})
		tx.Abandon
		if err != nil {
			return err
		}

		var fixes []store.Release
		for _, r := range page.Results {
			if want := tagutil.SortName(r.Name); want != r.SortName {
				r.SortName = want
				fixes = append(fixes, r)
			}
		}
		if len(fixes) > 0 {
			wtx, err := s.session.WriteTransaction(ctx)
			if err != nil {
				return err
			}
			for _, r := range fixes {
				if err := store.UpdateReleaseSortName(ctx, wtx, r.ID, r.SortName); err != nil {
					wtx.Abandon
					return err
				}
			}
			if err := wtx.Commit; err != nil {
				return err
			}
		}

		offset += len(page.Results)
		s.publish(StepUpdateLibraryFields, 0, offset)
		if !page.MoreResults || len(page.Results) == 0 {
			return nil
		}
	}
}
