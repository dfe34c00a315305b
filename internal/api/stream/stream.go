// Package stream handles HTTP range request streaming of track audio and
// serving cover/artist art out of the object store, plus on-the-fly
// transcoding for clients that request a format other than the track's own.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"

	"lms/internal/config"
	"lms/internal/dbtypes"
	"lms/internal/objstore"
	"lms/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

const coverMaxAge = 86400 // 1 day

// Service handles streaming HTTP routes.
type Service struct {
	db      *store.DB
	session *store.Session
	obj     objstore.ObjectStore
	kv      *redis.Client
	cfg     config.Settings
}

// New returns a new stream Service.
func New(db *store.DB, obj objstore.ObjectStore, kv *redis.Client, cfg config.Settings) *Service {
	return &Service{db: db, session: store.NewSession(db), obj: obj, kv: kv, cfg: cfg}
}

func parseTrackID(r *http.Request) (dbtypes.TrackID, error) {
	n, err := strconv.ParseInt(chi.URLParam(r, "track_id"), 10, 64)
	if err != nil {
		return dbtypes.Invalid, err
	}
	return dbtypes.TrackID(n), nil
}

// Stream serves a track's audio. With no ?format= query param it serves the
// original file straight off disk with full HTTP range support via
// http.ServeContent. A ?format= value other than the track's own extension
// is transcoded on the fly via ffmpeg and streamed without range support,
// matching how a live transcode can't seek inside bytes it hasn't produced
// yet.
func (s *Service) Stream(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseTrackID(r)
	if err != nil {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}
	s.StreamTrack(w, r, trackID)
}

// StreamTrack serves trackID's audio, shared by the regular authenticated
// route and the listen-along guest stream endpoint.
func (s *Service) StreamTrack(w http.ResponseWriter, r *http.Request, trackID dbtypes.TrackID) {
	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	track, err := store.GetTrack(r.Context(), tx, trackID)
	tx.Abandon()
	if err != nil {
		http.Error(w, "track not found", http.StatusNotFound)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == nativeFormat(track.Path) {
		s.serveOriginal(w, r, track)
		return
	}
	s.serveTranscoded(w, r, track, format)
}

func (s *Service) serveOriginal(w http.ResponseWriter, r *http.Request, track store.Track) {
	f, err := os.Open(track.Path)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.Error(w, "stat error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimeForFormat(nativeFormat(track.Path)))
	if track.BitDepth != nil {
		w.Header().Set("X-LMS-Bit-Depth", strconv.Itoa(*track.BitDepth))
	}
	if track.SampleRate != nil {
		w.Header().Set("X-LMS-Sample-Rate", strconv.Itoa(*track.SampleRate))
	}
	http.ServeContent(w, r, track.Path, fi.ModTime(), f)
}

// serveTranscoded pipes ffmpeg's stdout straight to the response. The
// object store's AudioBlobKey namespace exists for a caller that wants to
// cache this output across requests; this handler always regenerates it,
// leaving caching to a future fronting proxy/CDN via Cache-Control.
func (s *Service) serveTranscoded(w http.ResponseWriter, r *http.Request, track store.Track, format string) {
	ffmpegPath := s.cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", track.Path}
	switch format {
	case "mp3":
		args = append(args, "-f", "mp3", "-codec:a", "libmp3lame", "-b:a", "192k", "-")
	case "ogg", "opus":
		args = append(args, "-f", "ogg", "-codec:a", "libopus", "-b:a", "128k", "-")
	default:
		http.Error(w, "unsupported transcode format", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		http.Error(w, "transcode error", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		http.Error(w, "transcode error", http.StatusInternalServerError)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", mimeForFormat(format))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, 64*1024)
	_, _ = io.CopyBuffer(w, stdout, buf)
}

// Cover serves a release's cover art.
func (s *Service) Cover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "album_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid album id", http.StatusBadRequest)
		return
	}
	s.ServeReleaseCover(w, r, dbtypes.ReleaseID(id))
}

// ServeReleaseCover serves releaseID's cover art, shared by the regular
// route and the listen-along guest cover endpoint.
func (s *Service) ServeReleaseCover(w http.ResponseWriter, r *http.Request, releaseID dbtypes.ReleaseID) {
	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	release, err := store.GetRelease(r.Context(), tx, releaseID)
	tx.Abandon()
	if err != nil || release.CoverImageID == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.serveImage(w, r, objstore.CoverArtKey(*release.CoverImageID))
}

// ArtistImage serves an artist's photo from the object store.
func (s *Service) ArtistImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "artist_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid artist id", http.StatusBadRequest)
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	artist, err := store.GetArtist(r.Context(), tx, dbtypes.ArtistID(id))
	tx.Abandon()
	if err != nil || artist.ImageID == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.serveImage(w, r, objstore.CoverArtKey(*artist.ImageID))
}

// PlaylistCoverComposite serves a JSON list of up to 4 cover URLs drawn
// from a playlist's member tracks, for the UI to lay out as a 2x2 tile.
func (s *Service) PlaylistCoverComposite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid playlist id", http.StatusBadRequest)
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer tx.Abandon()

	entries, err := store.ListTrackListEntries(r.Context(), tx, dbtypes.TrackListID(id))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var coverURLs []string
	seen := map[dbtypes.ReleaseID]bool{}
	for _, e := range entries {
		track, err := store.GetTrack(r.Context(), tx, e.TrackID)
		if err != nil || track.ReleaseID == nil || seen[*track.ReleaseID] {
			continue
		}
		seen[*track.ReleaseID] = true
		release, err := store.GetRelease(r.Context(), tx, *track.ReleaseID)
		if err != nil || release.CoverImageID == nil {
			continue
		}
		coverURLs = append(coverURLs, fmt.Sprintf("/covers/%d", *track.ReleaseID))
		if len(coverURLs) == 4 {
			break
		}
	}

	if len(coverURLs) == 0 {
		http.Error(w, "no covers", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_ = json.NewEncoder(w).Encode(coverURLs)
}

// PlaylistCover is an alias kept for the single-cover route; it serves the
// same JSON list of member cover URLs as PlaylistCoverComposite.
func (s *Service) PlaylistCover(w http.ResponseWriter, r *http.Request) {
	s.PlaylistCoverComposite(w, r)
}

func (s *Service) serveImage(w http.ResponseWriter, r *http.Request, key string) {
	size, err := s.obj.Size(r.Context(), key)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	rc, err := s.obj.GetRange(r.Context(), key, 0, size)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", coverMaxAge))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	_, _ = io.Copy(w, rc)
}

func nativeFormat(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}

func mimeForFormat(format string) string {
	switch format {
	case "flac":
		return "audio/flac"
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "aiff", "aif":
		return "audio/aiff"
	case "ogg", "opus":
		return "audio/ogg"
	}
	return "application/octet-stream"
}
