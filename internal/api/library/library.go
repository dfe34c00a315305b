// Package library handles browsing tracks, albums, artists, search, lyrics
// and listening history.
package library

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"lms/internal/api/auth"
	"lms/internal/api/lyricfetch"
	"lms/internal/dbtypes"
	"lms/internal/store"
	"lms/internal/tagutil"

	"github.com/go-chi/chi/v5"
)

// Service handles library HTTP routes.
type Service struct {
	db      *store.DB
	session *store.Session
}

// New returns a new library Service.
func New(db *store.DB) *Service {
	return &Service{db: db, session: store.NewSession(db)}
}

// Routes registers library endpoints.
func (s *Service) Routes(r chi.Router) {
	r.Get("/tracks", s.listTracks)
	r.Get("/albums", s.listAlbums)
	r.Get("/artists", s.listArtists)
	r.Get("/albums/{id}", s.albumDetail)
	r.Get("/artists/{id}", s.artistDetail)
	r.Get("/tracks/{id}", s.trackDetail)
	r.Get("/search", s.search)
	r.Get("/recently-played", s.recentlyPlayed)
	r.Get("/recently-played/albums", s.recentlyPlayedAlbums)
	r.Get("/most-played", s.mostPlayed)
	r.Get("/recently-added/albums", s.recentlyAddedAlbums)
	r.Post("/history", s.recordPlay)
	r.Get("/favorites", s.listFavorites)
	r.Get("/favorites/ids", s.listFavoriteIDs)
	r.Post("/favorites/{track_id}", s.addFavorite)
	r.Delete("/favorites/{track_id}", s.removeFavorite)
	r.Get("/tracks/{id}/lyrics", s.getTrackLyrics)
	r.Put("/tracks/{id}/lyrics", s.setTrackLyrics)
}

func (s *Service) listTracks(w http.ResponseWriter, r *http.Request) {
	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	res, err := store.FindTracks(r.Context(), tx, store.FindParameters{
		Filters: store.FindFilters{SortMethod: sortMethod(r)},
		Range:   pagination(r),
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) listAlbums(w http.ResponseWriter, r *http.Request) {
	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	res, err := store.FindReleases(r.Context(), tx, store.FindParameters{
		Filters: store.FindFilters{SortMethod: sortMethod(r)},
		Range:   pagination(r),
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) listArtists(w http.ResponseWriter, r *http.Request) {
	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	res, err := store.FindArtists(r.Context(), tx, store.FindParameters{
		Filters: store.FindFilters{SortMethod: sortMethod(r)},
		Range:   pagination(r),
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) albumDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid album id")
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	releaseID := dbtypes.ReleaseID(id)
	release, err := store.GetRelease(r.Context(), tx, releaseID)
	if err != nil {
		writeErr(w, http.StatusNotFound, "album not found")
		return
	}
	tracks, err := store.ListTracksByRelease(r.Context(), tx, releaseID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	artistIDs, err := store.ReleaseAlbumArtistIDs(r.Context(), tx, releaseID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	var artists []store.Artist
	for _, aid := range artistIDs {
		if a, err := store.GetArtist(r.Context(), tx, aid); err == nil {
			artists = append(artists, a)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"album": release, "tracks": tracks, "artists": artists})
}

func (s *Service) artistDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid artist id")
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	artistID := dbtypes.ArtistID(id)
	artist, err := store.GetArtist(r.Context(), tx, artistID)
	if err != nil {
		writeErr(w, http.StatusNotFound, "artist not found")
		return
	}
	albums, err := store.ReleasesByArtist(r.Context(), tx, artistID, store.LinkAlbumArtist)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artist": artist, "albums": albums})
}

func (s *Service) trackDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid track id")
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	trackID := dbtypes.TrackID(id)
	track, err := store.GetTrack(r.Context(), tx, trackID)
	if err != nil {
		writeErr(w, http.StatusNotFound, "track not found")
		return
	}
	artistNames, _ := store.TrackArtistNames(r.Context(), tx, trackID, store.LinkArtist)
	writeJSON(w, http.StatusOK, map[string]any{"track": track, "artist_names": artistNames})
}

func (s *Service) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeErr(w, http.StatusBadRequest, "q is required")
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	filters := store.FindFilters{Keywords: []string{q}}
	tracks, _ := store.FindTracks(r.Context(), tx, store.FindParameters{Filters: filters, Range: store.Range{Size: 20}})
	albums, _ := store.FindReleases(r.Context(), tx, store.FindParameters{Filters: filters, Range: store.Range{Size: 20}})
	artists, _ := store.FindArtists(r.Context(), tx, store.FindParameters{Filters: filters, Range: store.Range{Size: 20}})
	writeJSON(w, http.StatusOK, map[string]any{
		"tracks":  tracks.Results,
		"albums":  albums.Results,
		"artists": artists.Results,
	})
}

func (s *Service) recentlyPlayed(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := limitParam(r, 100, 200)

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	rows, err := store.ListRecentlyPlayed(r.Context(), tx, userID, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Service) mostPlayed(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := limitParam(r, 100, 200)

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	rows, err := store.ListMostPlayed(r.Context(), tx, userID, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// recentlyPlayedAlbums dedupes a user's recently played tracks down to the
// distinct releases they belong to, newest play first.
func (s *Service) recentlyPlayedAlbums(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	tracks, err := store.ListRecentlyPlayed(r.Context(), tx, userID, 200)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	var albums []store.Release
	seen := map[dbtypes.ReleaseID]bool{}
	for _, t := range tracks {
		if t.ReleaseID == nil || seen[*t.ReleaseID] {
			continue
		}
		seen[*t.ReleaseID] = true
		if rel, err := store.GetRelease(r.Context(), tx, *t.ReleaseID); err == nil {
			albums = append(albums, rel)
		}
		if len(albums) == 20 {
			break
		}
	}
	writeJSON(w, http.StatusOK, albums)
}

func (s *Service) recentlyAddedAlbums(w http.ResponseWriter, r *http.Request) {
	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	res, err := store.FindReleases(r.Context(), tx, store.FindParameters{
		Filters: store.FindFilters{SortMethod: store.SortLastModified},
		Range:   store.Range{Size: 20},
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.Results)
}

func (s *Service) recordPlay(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		TrackID int64 `json:"track_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TrackID == 0 {
		writeErr(w, http.StatusBadRequest, "track_id required")
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	if err := store.RecordPlayedTrack(r.Context(), tx, userID, dbtypes.TrackID(body.TrackID), time.Now().Unix()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) listFavorites(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	res, err := store.FindTracks(r.Context(), tx, store.FindParameters{
		Filters: store.FindFilters{StarredByUser: userID, SortMethod: store.SortStarredDateDesc},
		Range:   store.Range{Size: 500},
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.Results)
}

func (s *Service) listFavoriteIDs(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	ids, err := store.ListStarredTracks(r.Context(), tx, userID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []dbtypes.TrackID{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Service) addFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	trackID, err := parseIDParam(r, "track_id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid track id")
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	if err := store.StarTrack(r.Context(), tx, userID, dbtypes.TrackID(trackID), time.Now().Unix()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) removeFavorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	trackID, err := parseIDParam(r, "track_id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid track id")
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	if err := store.UnstarTrack(r.Context(), tx, userID, dbtypes.TrackID(trackID)); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- lyrics ---

// LyricLine represents a single timed lyric line, the JSON shape the UI's
// synced-lyrics view consumes regardless of whether the source was
// synchronized.
type LyricLine struct {
	TimeMs int    `json:"time_ms"`
	Text   string `json:"text"`
}

func toLyricLines(l tagutil.Lyrics) []LyricLine {
	if len(l.SynchronizedLines) > 0 {
		lines := make([]LyricLine, 0, len(l.SynchronizedLines))
		for d, text := range l.SynchronizedLines {
			lines = append(lines, LyricLine{TimeMs: int((d + l.Offset).Milliseconds()), Text: text})
		}
		sort.Slice(lines, func(i, j int) bool { return lines[i].TimeMs < lines[j].TimeMs })
		return lines
	}
	lines := make([]LyricLine, 0, len(l.UnsynchronizedLines))
	for _, text := range l.UnsynchronizedLines {
		lines = append(lines, LyricLine{TimeMs: -1, Text: text})
	}
	return lines
}

func (s *Service) getTrackLyrics(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid track id")
		return
	}
	trackID := dbtypes.TrackID(id)

	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows, err := store.ListTrackLyrics(r.Context(), tx, trackID)
	if err != nil {
		tx.Abandon()
		writeErr(w, http.StatusNotFound, "track not found")
		return
	}
	if len(rows) > 0 {
		tx.Abandon()
		lyrics, err := tagutil.ParseLyrics(strings.NewReader(rows[0].Content))
		if err != nil {
			writeJSON(w, http.StatusOK, []LyricLine{})
			return
		}
		writeJSON(w, http.StatusOK, toLyricLines(lyrics))
		return
	}

	// No cached lyrics — auto-fetch from external providers, grounded on
	// the track/release/artist names so the search has something to match.
	track, err := store.GetTrack(r.Context(), tx, trackID)
	if err != nil {
		tx.Abandon()
		writeJSON(w, http.StatusOK, []LyricLine{})
		return
	}
	artistNames, _ := store.TrackArtistNames(r.Context(), tx, trackID, store.LinkArtist)
	albumTitle := ""
	if track.ReleaseID != nil {
		if rel, err := store.GetRelease(r.Context(), tx, *track.ReleaseID); err == nil {
			albumTitle = rel.Name
		}
	}
	tx.Abandon()
	artistName := ""
	if len(artistNames) > 0 {
		artistName = artistNames[0]
	}

	res, err := lyricfetch.Search(r.Context(), artistName, albumTitle, track.Title, int(track.DurationMs))
	if err != nil || res == nil {
		writeJSON(w, http.StatusOK, []LyricLine{})
		return
	}
	raw := res.LRC
	synced := raw != ""
	if raw == "" {
		raw = res.Plain
	}
	if raw == "" {
		writeJSON(w, http.StatusOK, []LyricLine{})
		return
	}

	wtx, err := s.session.WriteTransaction(r.Context())
	if err == nil {
		if _, err := store.UpsertEmbeddedLyrics(r.Context(), wtx, trackID, synced, nil, nil, nil, nil, 0, raw); err == nil {
			_ = wtx.Commit()
		} else {
			wtx.Abandon()
			slog.Warn("lyricfetch: failed to cache lyrics", "track_id", trackID, "err", err)
		}
	}

	lyrics, err := tagutil.ParseLyrics(strings.NewReader(raw))
	if err != nil {
		writeJSON(w, http.StatusOK, []LyricLine{})
		return
	}
	writeJSON(w, http.StatusOK, toLyricLines(lyrics))
}

func (s *Service) setTrackLyrics(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid track id")
		return
	}
	var body struct {
		Lyrics string `json:"lyrics"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	parsed, _ := tagutil.ParseLyrics(strings.NewReader(body.Lyrics))
	synced := len(parsed.SynchronizedLines) > 0

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	if _, err := store.UpsertEmbeddedLyrics(r.Context(), tx, dbtypes.TrackID(id), synced, nil, nil, nil, nil, 0, body.Lyrics); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func sortMethod(r *http.Request) store.SortMethod {
	switch r.URL.Query().Get("sort") {
	case "recent":
		return store.SortLastModified
	case "random":
		return store.SortRandom
	default:
		return store.SortName
	}
}

func pagination(r *http.Request) store.Range {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return store.Range{Offset: offset, Size: limit}
}

func limitParam(r *http.Request, def, max int) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > max {
		return def
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
