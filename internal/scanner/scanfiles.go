package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"lms/internal/dbtypes"
	"lms/internal/store"
	"lms/internal/tagutil"
)

const scanFilesBatchSize = 100

// scanFiles opens and tag-parses files concurrently through a bounded
// worker pool (sized to runtime.NumCPU()); a single goroutine drains the results and writes them in
// batches of scanFilesBatchSize, since every write transaction holds the
// database's sole exclusive lock anyway.
func (s *Scanner) scanFiles(ctx context.Context, lib store.MediaLibrary, audioFiles []string, stats *Stats) error {
	rtx, err := s.session.ReadTransaction(ctx)
	if err != nil {
		return err
	}
	settings, err := store.GetScanSettings(ctx, rtx)
	if err != nil {
		rtx.Abandon()
		return err
	}
	known, err := store.ListTrackScanState(ctx, rtx, lib.ID)
	rtx.Abandon()
	if err != nil {
		return err
	}

	type statted struct {
		path string
		fi   os.FileInfo
	}

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	pathCh := make(chan statted, workers*2)
	resultCh := make(chan parsedFile, workers*2)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sp := range pathCh {
				resultCh <- parseFile(sp.path, sp.fi, s.cfg)
			}
		}()
	}

	go func() {
		defer close(pathCh)
		for _, path := range audioFiles {
			if s.aborting() {
				return
			}
			fi, err := os.Stat(path)
			if err != nil {
				continue
			}
			if st, ok := known[path]; ok &&
				st.MtimeUnix == fi.ModTime().Unix() &&
				st.FileSize == fi.Size() &&
				st.ScanVersion == settings.AudioScanVersion {
				continue // up to date, no re-read needed
			}
			pathCh <- statted{path: path, fi: fi}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	total := len(audioFiles)
	processed := 0
	var batch []parsedFile
	for pf := range resultCh {
		processed++
		if pf.err != nil {
			s.recordErr(stats, StepScanFiles, pf.path, pf.err)
			continue
		}
		batch = append(batch, pf)
		if len(batch) >= scanFilesBatchSize {
			if err := s.writeTrackBatch(ctx, lib, batch, known, settings.AudioScanVersion, stats); err != nil {
				return err
			}
			batch = batch[:0]
			s.publish(StepScanFiles, total, processed)
			if s.aborting() {
				return nil
			}
		}
	}
	if len(batch) > 0 {
		if err := s.writeTrackBatch(ctx, lib, batch, known, settings.AudioScanVersion, stats); err != nil {
			return err
		}
	}
	s.publish(StepScanFiles, total, total)

	wtx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}
	if err := store.RecordScanCompleted(ctx, wtx, time.Now().Unix()); err != nil {
		wtx.Abandon()
		return err
	}
	return wtx.Commit()
}

func (s *Scanner) writeTrackBatch(ctx context.Context, lib store.MediaLibrary, batch []parsedFile, known map[string]store.TrackScanState, scanVersion int, stats *Stats) error {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}

	for _, pf := range batch {
		dirID, err := s.resolveDirectory(ctx, tx, lib, filepath.Dir(pf.path))
		if err != nil {
			tx.Abandon()
			return err
		}

		var releaseID *dbtypes.ReleaseID
		if pf.albumTitle != "" {
			rel, err := store.UpsertRelease(ctx, tx, store.UpsertReleaseParams{
				Name:     pf.albumTitle,
				SortName: tagutil.SortName(pf.albumTitle),
				Year:     pf.releaseYear,
			})
			if err != nil {
				tx.Abandon()
				return err
			}
			releaseID = &rel.ID
		}

		clusterNames := map[string][]string{}
		if len(pf.genres) > 0 {
			clusterNames["genre"] = pf.genres
		}

		_, err = store.UpsertTrack(ctx, tx, store.UpsertTrackParams{
			Path:             pf.path,
			FileSize:         pf.fi.Size(),
			MtimeUnix:        pf.fi.ModTime().Unix(),
			ScanVersion:      scanVersion,
			DurationMs:       pf.durationMs,
			TrackNumber:      pf.trackNumber,
			TrackTotal:       pf.trackTotal,
			DiscNumber:       pf.discNumber,
			DiscTotal:        pf.discTotal,
			BitDepth:         pf.bitDepth,
			SampleRate:       pf.sampleRate,
			ReleaseID:        releaseID,
			MediaLibraryID:   lib.ID,
			DirectoryID:      dirID,
			Title:            pf.title,
			ArtistNames:      pf.artistNames,
			AlbumArtistNames: pf.albumArtistNames,
			ClusterNames:     clusterNames,
		})
		if err != nil {
			tx.Abandon()
			return err
		}

		if _, existed := known[pf.path]; existed {
			stats.Updated++
		} else {
			stats.Added++
		}
	}

	return tx.Commit()
}
