package scanner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lms/internal/dbtypes"
	"lms/internal/objstore"
	"lms/internal/store"
	"lms/internal/tagutil"
)

// folderImageCache memoises the best cover-art file found in a directory
// in mutex-guarded maps: a release and its artist folder are each visited by many
// tracks, so the directory listing and preference ordering only need to
// run once per directory per scan pass.
type folderImageCache struct {
	mu sync.Mutex
	bytes map[string][]byte
	miss map[string]bool
}

func newFolderImageCache *folderImageCache {
	return &folderImageCache{bytes: make(map[string][]byte), miss: make(map[string]bool)}
}

// preferredCoverNames ranks candidate filenames (without extension),
// lowercased, for bestFolderImage's tie-break: cover/folder/front
// preference order.
var preferredCoverNames = []string{"cover", "folder", "front", "artist"}

func (c *folderImageCache) bestFolderImage(dirPath string) []byte {
	c.mu.Lock
	defer c.mu.Unlock

	if b, ok := c.bytes[dirPath]; ok {
		return b
	}
	if c.miss[dirPath] {
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		c.miss[dirPath] = true
		return nil
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir || !tagutil.IsImageFile(e.Name) {
			continue
		}
		candidates = append(candidates, e.Name)
	}
	if len(candidates) == 0 {
		c.miss[dirPath] = true
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return coverRank(candidates[i]) < coverRank(candidates[j])
	})

	data, err := os.ReadFile(filepath.Join(dirPath, candidates[0]))
	if err != nil {
		c.miss[dirPath] = true
		return nil
	}
	c.bytes[dirPath] = data
	return data
}

func coverRank(name string) int {
	stem := strings.ToLower(tagutil.Stem(name))
	for i, want := range preferredCoverNames {
		if stem == want {
			return i
		}
	}
	return len(preferredCoverNames)
}

// storeImage writes data to the object store under key and upserts the
// matching image row, returning its id. path is a synthetic identifier
// (the source directory plus a marker) since folder art has no single
// owning file the way an embedded picture does.
func (s *Scanner) storeImage(ctx context.Context, tx *store.Tx, path string, data []byte) (dbtypes.ImageID, error) {
	id, err := store.UpsertImage(ctx, tx, path, int64(len(data)), time.Now.Unix)
	if err != nil {
		return dbtypes.Invalid, err
	}
	if err := s.obj.Put(ctx, objstore.CoverArtKey(id), bytes.NewReader(data), int64(len(data))); err != nil {
		return dbtypes.Invalid, err
	}
	return id, nil
}

// associateReleaseImages sets each release's cover image from the folder
// art of the directory its tracks live in (AssociateReleaseImages).
func (s *Scanner) associateReleaseImages(ctx context.Context, lib store.MediaLibrary, stats *Stats) error {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}

	paths, err := store.ListTrackPathsUnderLibrary(ctx, tx, lib.ID)
	if err != nil {
		tx.Abandon
		return err
	}

	byDir := map[string]dbtypes.TrackID{}
	for path, id := range paths {
		byDir[filepath.Dir(path)] = id
	}

	seenReleases := map[dbtypes.ReleaseID]bool{}
	total := len(byDir)
	processed := 0
	for dir, trackID := range byDir {
		processed++
		if s.aborting {
			break
		}
		track, err := store.GetTrack(ctx, tx, trackID)
		if err != nil || track.ReleaseID == nil || seenReleases[*track.ReleaseID] {
			continue
		}
		data := s.folderImageCache.bestFolderImage(dir)
		if data == nil {
			continue
		}
		imageID, err := s.storeImage(ctx, tx, dir+"/<release-cover>", data)
		if err != nil {
			tx.Abandon
			return err
		}
		if err := store.SetReleaseCoverImage(ctx, tx, *track.ReleaseID, imageID); err != nil {
			tx.Abandon
			return err
		}
		seenReleases[*track.ReleaseID] = true
		stats.ImagesLinked++
		if processed%200 == 0 {
			s.publish(StepAssociateReleaseImages, total, processed)
		}
	}
	s.publish(StepAssociateReleaseImages, total, total)
	return tx.Commit
}

// associateArtistImages looks for folder art one directory above each
// release's own folder (the conventional Artist/Album/track.ext layout)
// and, failing that, falls back to the release's own cover when
// cfg.ArtistImageFallbackToRelease is set (AssociateArtistImages).
func (s *Scanner) associateArtistImages(ctx context.Context, lib store.MediaLibrary, stats *Stats) error {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}

	paths, err := store.ListTrackPathsUnderLibrary(ctx, tx, lib.ID)
	if err != nil {
		tx.Abandon
		return err
	}

	byDir := map[string]dbtypes.TrackID{}
	for path, id := range paths {
		byDir[filepath.Dir(path)] = id
	}

	seenArtists := map[dbtypes.ArtistID]bool{}
	total := len(byDir)
	processed := 0
	for dir, trackID := range byDir {
		processed++
		if s.aborting {
			break
		}
		track, err := store.GetTrack(ctx, tx, trackID)
		if err != nil || track.ReleaseID == nil {
			continue
		}
		artistIDs, err := store.ReleaseAlbumArtistIDs(ctx, tx, *track.ReleaseID)
		if err != nil {
			tx.Abandon
			return err
		}

		data := s.folderImageCache.bestFolderImage(filepath.Dir(dir))
		if data == nil && s.cfg.ArtistImageFallbackToRelease {
			data = s.folderImageCache.bestFolderImage(dir)
		}
		if data == nil {
			continue
		}

		for _, artistID := range artistIDs {
			if seenArtists[artistID] {
				continue
			}
			imageID, err := s.storeImage(ctx, tx, filepath.Dir(dir)+"/<artist-cover>", data)
			if err != nil {
				tx.Abandon
				return err
			}
			if err := store.SetArtistImage(ctx, tx, artistID, imageID); err != nil {
				tx.Abandon
				return err
			}
			seenArtists[artistID] = true
			stats.ImagesLinked++
		}
		if processed%200 == 0 {
			s.publish(StepAssociateArtistImages, total, processed)
		}
	}
	s.publish(StepAssociateArtistImages, total, total)
	return tx.Commit
}

// associateTrackImages stores each track's own embedded cover picture
// separately from folder art, since an individually tagged track can carry
// artwork that differs from its folder's (a single file copied out of a
// larger release, a non-album single). Re-reads the tag's picture frame
// rather than threading it through scanFiles, keeping the parse/write
// split in scanfiles.go free of a third payload type.
func (s *Scanner) associateTrackImages(ctx context.Context, lib store.MediaLibrary, stats *Stats) error {
	tx, err := s.session.WriteTransaction(ctx)
	if err != nil {
		return err
	}
	paths, err := store.ListTrackPathsUnderLibrary(ctx, tx, lib.ID)
	if err != nil {
		tx.Abandon
		return err
	}

	total := len(paths)
	processed := 0
	for path, trackID := range paths {
		processed++
		if s.aborting {
			break
		}
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		pf := parseFile(path, fi, s.cfg)
		if pf.err != nil || len(pf.picture) == 0 {
			continue
		}
		imageID, err := s.storeImage(ctx, tx, path, pf.picture)
		if err != nil {
			tx.Abandon
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE track SET embedded_image_id = ? WHERE id = ?`, imageID, trackID); err != nil {
			tx.Abandon
			return err
		}
		stats.ImagesLinked++
		if processed%200 == 0 {
			s.publish(StepAssociateTrackImages, total, processed)
		}
	}
	s.publish(StepAssociateTrackImages, total, total)
	return tx.Commit
}
