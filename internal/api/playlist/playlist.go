// Package playlist handles playlist CRUD and track membership. A playlist
// is a tracklist row of type TrackListPlaylist; this package is a thin
// ownership-checked HTTP façade over the tracklist primitives in
// internal/store shared with the queue and favorites features.
package playlist

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"lms/internal/api/auth"
	"lms/internal/dbtypes"
	"lms/internal/store"

	"github.com/go-chi/chi/v5"
)

// Service handles playlist HTTP routes.
type Service struct {
	db      *store.DB
	session *store.Session
}

// New returns a new playlist Service.
func New(db *store.DB) *Service {
	return &Service{db: db, session: store.NewSession(db)}
}

// Routes registers playlist endpoints.
func (s *Service) Routes(r chi.Router) {
	r.Get("/", s.list)
	r.Post("/", s.create)
	r.Get("/{id}", s.detail)
	r.Patch("/{id}", s.update)
	r.Delete("/{id}", s.delete)
	r.Post("/{id}/tracks", s.addTrack)
	r.Delete("/{id}/tracks/{entry_id}", s.removeTrack)
	r.Put("/{id}/tracks/order", s.reorderTracks)
}

func (s *Service) list(w http.ResponseWriter, r *http.Request) {
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

	pls, err := store.ListTrackListsByOwner(r.Context(), tx, userID, store.TrackListPlaylist)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pls)
}

type createReq struct {
	Name string `json:"name"`
}

func (s *Service) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	pl, err := store.CreateTrackList(r.Context(), tx, store.CreateTrackListParams{
		OwnerUserID: &userID,
		Type:        store.TrackListPlaylist,
		Visibility:  store.VisibilityPrivate,
		Name:        req.Name,
	}, time.Now().Unix())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pl)
}

func (s *Service) loadOwned(r *http.Request) (*store.Tx, store.TrackList, dbtypes.UserID, bool, error) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		return nil, store.TrackList{}, 0, false, nil
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, store.TrackList{}, userID, true, err
	}
	tx, err := s.session.ReadTransaction(r.Context())
	if err != nil {
		return nil, store.TrackList{}, userID, true, err
	}
	pl, err := store.GetTrackList(r.Context(), tx, dbtypes.TrackListID(id))
	if err != nil {
		tx.Abandon()
		return nil, store.TrackList{}, userID, true, err
	}
	return tx, pl, userID, true, nil
}

func (s *Service) detail(w http.ResponseWriter, r *http.Request) {
	tx, pl, _, ok, err := s.loadOwned(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeErr(w, http.StatusNotFound, "playlist not found")
		return
	}
	defer tx.Abandon()

	entries, err := store.ListTrackListEntries(r.Context(), tx, pl.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	tracks := make([]store.Track, 0, len(entries))
	for _, e := range entries {
		if t, err := store.GetTrack(r.Context(), tx, e.TrackID); err == nil {
			tracks = append(tracks, t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlist": pl, "entries": entries, "tracks": tracks})
}

type updateReq struct {
	Name string `json:"name"`
}

func (s *Service) update(w http.ResponseWriter, r *http.Request) {
	tx, pl, userID, ok, err := s.loadOwned(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeErr(w, http.StatusNotFound, "playlist not found")
		return
	}
	tx.Abandon()
	if pl.OwnerUserID == nil || *pl.OwnerUserID != userID {
		writeErr(w, http.StatusForbidden, "not your playlist")
		return
	}

	var req updateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}

	wtx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer wtx.Abandon()
	if err := store.UpdateTrackListName(r.Context(), wtx, pl.ID, req.Name); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := wtx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	pl.Name = req.Name
	writeJSON(w, http.StatusOK, pl)
}

func (s *Service) delete(w http.ResponseWriter, r *http.Request) {
	tx, pl, userID, ok, err := s.loadOwned(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeErr(w, http.StatusNotFound, "playlist not found")
		return
	}
	tx.Abandon()
	if pl.OwnerUserID == nil || *pl.OwnerUserID != userID {
		writeErr(w, http.StatusForbidden, "not your playlist")
		return
	}

	wtx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer wtx.Abandon()
	if err := store.DeleteTrackList(r.Context(), wtx, pl.ID); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := wtx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addTrackReq struct {
	TrackID int64 `json:"track_id"`
}

func (s *Service) addTrack(w http.ResponseWriter, r *http.Request) {
	tx, pl, userID, ok, err := s.loadOwned(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeErr(w, http.StatusNotFound, "playlist not found")
		return
	}
	tx.Abandon()
	if pl.OwnerUserID == nil || *pl.OwnerUserID != userID {
		writeErr(w, http.StatusForbidden, "not your playlist")
		return
	}

	var req addTrackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == 0 {
		writeErr(w, http.StatusBadRequest, "track_id required")
		return
	}

	wtx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer wtx.Abandon()
	if err := store.AppendTrackListEntry(r.Context(), wtx, pl.ID, dbtypes.TrackID(req.TrackID), nil); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := wtx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) removeTrack(w http.ResponseWriter, r *http.Request) {
	tx, pl, userID, ok, err := s.loadOwned(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeErr(w, http.StatusNotFound, "playlist not found")
		return
	}
	tx.Abandon()
	if pl.OwnerUserID == nil || *pl.OwnerUserID != userID {
		writeErr(w, http.StatusForbidden, "not your playlist")
		return
	}

	entryID, err := strconv.ParseInt(chi.URLParam(r, "entry_id"), 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	wtx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer wtx.Abandon()
	if err := store.RemoveTrackListEntry(r.Context(), wtx, pl.ID, entryID); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := wtx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderReq struct {
	Order []struct {
		EntryID  int64 `json:"entry_id"`
		Position int   `json:"position"`
	} `json:"order"`
}

func (s *Service) reorderTracks(w http.ResponseWriter, r *http.Request) {
	tx, pl, userID, ok, err := s.loadOwned(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		writeErr(w, http.StatusNotFound, "playlist not found")
		return
	}
	tx.Abandon()
	if pl.OwnerUserID == nil || *pl.OwnerUserID != userID {
		writeErr(w, http.StatusForbidden, "not your playlist")
		return
	}

	var req orderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	wtx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer wtx.Abandon()
	for _, item := range req.Order {
		if err := store.ReorderTrackListEntry(r.Context(), wtx, pl.ID, item.EntryID, item.Position); err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := wtx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
