package scanner

import (
	"context"
	"time"

	"lms/internal/store"
)

// computeClusterStats drops clusters that no longer have any member track
// after an ingest pass (ComputeClusterStats); it recomputes no other
// aggregate.
func (s *Scanner) computeClusterStats(ctx context.Context) error {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}
	if _, err := store.DeleteOrphanClusters(ctx, tx); err != nil {
		tx.Abandon
		return err
	}
	return tx.Commit
}

const fetchArtistInfoPageSize = 100

// fetchArtistInfo looks up MusicBrainz metadata for every artist still
// missing an mbid, one page of FindArtists at a time so a library with
// tens of thousands of artists never holds them all in memory at once
// (FetchArtistInfo). Network/lookup failures are per-artist and
// recorded under stats.Errors; they never abort the step.
func (s *Scanner) fetchArtistInfo(ctx context.Context, stats *Stats) error {
	if !s.cfg.MusicBrainzEnrichmentEnabled {
		return nil
	}

	offset := 0
	for {
		if s.aborting {
			return nil
		}

		rtx, err := s.session.ReadTransaction(ctx)
		if err != nil {
			return err
		}
		page, err := store.FindArtists(ctx, rtx, store.FindParameters{
			Range: store.Range{Offset: offset, Size: fetchArtistInfoPageSize},
		})
		rtx.Abandon
		if err != nil {
			return err
		}

		for _, artist := range page.Results {
			if artist.MBID != nil {
				continue
			}
			if s.aborting {
				return nil
			}

			enrichment, err := s.mb.EnrichArtist(ctx, artist.Name)
			if err != nil {
				s.recordErr(stats, StepFetchArtistInfo, artist.Name, err)
				continue
			}
			if enrichment == nil {
				continue
			}

			wtx, err := s.session.WriteTransaction(ctx)
			if err != nil {
				return err
			}
			bio := enrichment.Disambiguation
			if err := store.UpdateArtistEnrichment(ctx, wtx, artist.ID, &enrichment.Mbid, &bio); err != nil {
				wtx.Abandon
				return err
			}
			if err := wtx.Commit; err != nil {
				return err
			}
			stats.ArtistsFetched++
		}

		s.publish(StepFetchArtistInfo, offset+len(page.Results), offset+len(page.Results))
		if !page.MoreResults {
			break
		}
		offset += fetchArtistInfoPageSize
	}
	return nil
}

// compact runs VACUUM to reclaim space from deleted rows (Compact).
func (s *Scanner) compact(ctx context.Context, stats *Stats) error {
	if err := s.db.Compact(ctx); err != nil {
		return err
	}
	stats.Compacted++
	return nil
}

// optimize refreshes the query planner's statistics (Optimize).
func (s *Scanner) optimize(ctx context.Context) error {
	return s.db.Optimize(ctx)
}

// reloadSimilarityEngine retrains the SOM recommender against the
// post-scan state of the library (ReloadSimilarityEngine).
// Runs inside a single read transaction since training only ever reads.
func (s *Scanner) reloadSimilarityEngine(ctx context.Context) error {
	rtx, err := s.session.ReadTransaction(ctx)
	if err != nil {
		return err
	}
	defer rtx.Abandon

	width, height := s.cfg.SomWidth, s.cfg.SomHeight
	return s.recommender.Retrain(ctx, rtx, width, height, time.Now.UnixNano)
}
