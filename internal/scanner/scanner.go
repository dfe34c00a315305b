// Package scanner implements the incremental library scan pipeline:
// a fixed sequence of steps that walk each configured media library root,
// upsert changed files, drop rows for files that vanished, rebuild
// artist/release/track image and lyrics associations, and finally retrain
// the similarity engine.
//
// The per-run memoisation caches (folderImageCache, directoryCache) and the
// fsnotify watch loop all feed into one pipeline. Writes don't fan out to N worker
// goroutines directly; every write transaction holds the database's single
// exclusive lock, so
// concurrent DB writes would just serialize behind each other anyway. The
// worker pool is kept for what actually parallelizes well — opening files,
// tag-parsing them, decoding cover art — and funnels its results
// into batched, sequential write transactions instead.
package scanner

import (
	"context"
	"log/slog"
	"sync/atomic"

	"lms/internal/config"
	"lms/internal/dbtypes"
	"lms/internal/musicbrainz"
	"lms/internal/objstore"
	"lms/internal/som"
	"lms/internal/store"
)

// Step names the fourteen-stage sequence run by every scan pass, in order
//. Each step's batch boundary is where StepStats is published and
// the abort flag is checked.
type Step string

const (
	StepDiscoverFiles Step = "discover_files"
	StepCheckForRemovedFiles Step = "check_for_removed_files"
	StepUpdateLibraryFields Step = "update_library_fields"
	StepScanFiles Step = "scan_files"
	StepAssociateExternalLyrics Step = "associate_external_lyrics"
	StepAssociatePlayListFiles Step = "associate_playlist_files"
	StepAssociateArtistImages Step = "associate_artist_images"
	StepAssociateReleaseImages Step = "associate_release_images"
	StepAssociateTrackImages Step = "associate_track_images"
	StepComputeClusterStats Step = "compute_cluster_stats"
	StepFetchArtistInfo Step = "fetch_artist_info"
	StepCompact Step = "compact"
	StepOptimize Step = "optimize"
	StepReloadSimilarityEngine Step = "reload_similarity_engine"
)

// stepOrder is the exact sequence a scan pass runs its steps in.
var stepOrder = []Step{
	StepDiscoverFiles,
	StepCheckForRemovedFiles,
	StepUpdateLibraryFields,
	StepScanFiles,
	StepAssociateExternalLyrics,
	StepAssociatePlayListFiles,
	StepAssociateArtistImages,
	StepAssociateReleaseImages,
	StepAssociateTrackImages,
	StepComputeClusterStats,
	StepFetchArtistInfo,
	StepCompact,
	StepOptimize,
	StepReloadSimilarityEngine,
}

// StepStats is published at every batch boundary within a step so a
// caller can drive a progress bar or a `/scan/status` endpoint without
// polling the database.
type StepStats struct {
	Step Step
	TotalElems int
	ProcessedElems int
}

// ProgressFunc receives one StepStats update per batch boundary. May be
// nil.
type ProgressFunc func(StepStats)

// Stats accumulates the outcome counters of a full Run, one entry per
// step that mutates rows, plus the scan-wide error count.
type Stats struct {
	Added int
	Updated int
	Removed int
	LyricsLinked int
	PlaylistFiles int
	ImagesLinked int
	ArtistsFetched int
	Compacted int64
	Errors int
}

// lmsignoreName is the sentinel file that, when present in a directory,
// excludes that directory (and everything under it) from every scan step.
// Added because a single-file catalog scanning arbitrary user directories
// needs an explicit per-directory opt-out.
const lmsignoreName = ".lmsignore"

// Scanner runs every configured library against one opened store.DB. A Scanner is not
// safe for concurrent Run calls; callers serialize scans (e.g. one
// foreground scan plus an optional watch-triggered incremental rescan
// coordinate via the same Scanner instance's Abort/Run pair).
type Scanner struct {
	db *store.DB
	session *store.Session
	obj objstore.ObjectStore
	cfg config.Settings
	recommender *som.Recommender
	mb *musicbrainz.Client
	progress ProgressFunc

	aborted atomic.Bool

	// folderImageCache memoises bestFolderImage per directory within one
	// Run, guarded by its own mutex.
	folderImageCache *folderImageCache
	// directoryCache memoises path -> DirectoryID within one Run so a
	// directory shared by many tracks is only upserted once.
	directoryCache map[string]dbtypes.DirectoryID
}

// New builds a Scanner. recommender is retrained as the final step; pass
// a fresh som.New if the caller has no prior trained state.
func New(db *store.DB, cfg config.Settings, obj objstore.ObjectStore, recommender *som.Recommender, progress ProgressFunc) *Scanner {
	return &Scanner{
		db: db,
		session: store.NewSession(db),
		obj: obj,
		cfg: cfg,
		recommender: recommender,
		mb: musicbrainz.New,
		progress: progress,
	}
}

// Abort requests that the in-progress Run stop at the next batch
// boundary. Safe to call from another goroutine.
func (s *Scanner) Abort { s.aborted.Store(true) }

func (s *Scanner) aborting bool { return s.aborted.Load }

func (s *Scanner) publish(step Step, total, processed int) {
	if s.progress != nil {
		s.progress(StepStats{Step: step, TotalElems: total, ProcessedElems: processed})
	}
}

func (s *Scanner) recordErr(stats *Stats, step Step, path string, err error) {
	stats.Errors++
	slog.Warn("scan step error", "step", step, "path", path, "err", err)
}

// Run walks every configured media library root through the full fourteen-step
// sequence. A step that hits a non-recoverable error (a failed
// transaction acquisition, a corrupt database) aborts the whole run; a
// per-file error (an unreadable tag, a malformed lyrics file) is recorded
// under stats.Errors and the step continues with the next file.
func (s *Scanner) Run(ctx context.Context) (Stats, error) {
	s.aborted.Store(false)
	s.folderImageCache = newFolderImageCache
	s.directoryCache = make(map[string]dbtypes.DirectoryID)

	var stats Stats

	libraries, err := s.listLibraries(ctx)
	if err != nil {
		return stats, err
	}

	for _, lib := range libraries {
		if s.aborting {
			return stats, nil
		}
		discovered, err := s.discoverFiles(ctx, lib)
		if err != nil {
			return stats, err
		}
		if err := s.checkForRemovedFiles(ctx, lib, discovered, &stats); err != nil {
			return stats, err
		}
		if s.aborting {
			return stats, nil
		}
		if err := s.updateLibraryFields(ctx, lib, &stats); err != nil {
			return stats, err
		}
		if s.aborting {
			return stats, nil
		}
		if err := s.scanFiles(ctx, lib, discovered.audioFiles, &stats); err != nil {
			return stats, err
		}
		if s.aborting {
			return stats, nil
		}
		if err := s.associateExternalLyrics(ctx, lib, discovered.lyricsFiles, &stats); err != nil {
			return stats, err
		}
		if err := s.associatePlayListFiles(ctx, lib, discovered.playlistFiles, &stats); err != nil {
			return stats, err
		}
		if s.aborting {
			return stats, nil
		}
		if err := s.associateArtistImages(ctx, lib, &stats); err != nil {
			return stats, err
		}
		if err := s.associateReleaseImages(ctx, lib, &stats); err != nil {
			return stats, err
		}
		if err := s.associateTrackImages(ctx, lib, &stats); err != nil {
			return stats, err
		}
	}

	if s.aborting {
		return stats, nil
	}
	if err := s.computeClusterStats(ctx); err != nil {
		return stats, err
	}
	if err := s.fetchArtistInfo(ctx, &stats); err != nil {
		return stats, err
	}
	if s.aborting {
		return stats, nil
	}
	if err := s.compact(ctx, &stats); err != nil {
		return stats, err
	}
	if err := s.optimize(ctx); err != nil {
		return stats, err
	}
	if err := s.reloadSimilarityEngine(ctx); err != nil {
		return stats, err
	}

	return stats, nil
}
