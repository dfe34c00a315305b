// Package queue handles per-user playback queue management with KeyVal
// caching: the queue is cached when read and the cached copy is deleted on
// every mutation. The queue is a tracklist row of type
// TrackListInternal, created lazily on first use.
package queue

import (
	"encoding/json"
	"net/http"
	"time"

	"lms/internal/api/auth"
	"lms/internal/dbtypes"
	"lms/internal/kvkeys"
	"lms/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

const queueCacheTTL = 24 * time.Hour

const queueListName = "queue"

// Service handles queue HTTP routes.
type Service struct {
	db      *store.DB
	session *store.Session
	kv      *redis.Client
}

// New returns a new queue Service.
func New(db *store.DB, kv *redis.Client) *Service {
	return &Service{db: db, session: store.NewSession(db), kv: kv}
}

// Routes registers queue endpoints.
func (s *Service) Routes(r chi.Router) {
	r.Get("/", s.getQueue)
	r.Put("/", s.replaceQueue)
	r.Delete("/", s.clearQueue)
	r.Post("/next", s.addNext)
	r.Post("/last", s.addLast)
}

// queueListID returns the user's queue tracklist, creating it on first use.
func (s *Service) queueListID(tx *store.Tx, r *http.Request, userID dbtypes.UserID) (dbtypes.TrackListID, error) {
	lists, err := store.ListTrackListsByOwner(r.Context(), tx, userID, store.TrackListInternal)
	if err != nil {
		return dbtypes.Invalid, err
	}
	if len(lists) > 0 {
		return lists[0].ID, nil
	}
	tl, err := store.CreateTrackList(r.Context(), tx, store.CreateTrackListParams{
		OwnerUserID: &userID, Type: store.TrackListInternal, Visibility: store.VisibilityPrivate, Name: queueListName,
	}, time.Now().Unix())
	if err != nil {
		return dbtypes.Invalid, err
	}
	return tl.ID, nil
}

func (s *Service) getQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if raw, err := s.kv.Get(r.Context(), kvkeys.UserQueue(userID)).Result(); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	listID, err := s.queueListID(tx, r, userID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries, err := store.ListTrackListEntries(r.Context(), tx, listID)
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
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.cacheQueue(r, userID, tracks)
	writeJSON(w, http.StatusOK, tracks)
}

type replaceReq struct {
	TrackIDs []int64 `json:"track_ids"`
}

func (s *Service) replaceQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req replaceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	listID, err := s.queueListID(tx, r, userID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := store.ClearTrackList(r.Context(), tx, listID); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, id := range req.TrackIDs {
		if err := store.AppendTrackListEntry(r.Context(), tx, listID, dbtypes.TrackID(id), nil); err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.kv.Del(r.Context(), kvkeys.UserQueue(userID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) clearQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	listID, err := s.queueListID(tx, r, userID)
	if err == nil {
		_ = store.ClearTrackList(r.Context(), tx, listID)
		_ = tx.Commit()
	}
	s.kv.Del(r.Context(), kvkeys.UserQueue(userID))
	w.WriteHeader(http.StatusNoContent)
}

type addTrackReq struct {
	TrackID int64 `json:"track_id"`
}

func (s *Service) addNext(w http.ResponseWriter, r *http.Request) {
	s.insertAt(w, r, true)
}

func (s *Service) addLast(w http.ResponseWriter, r *http.Request) {
	s.insertAt(w, r, false)
}

// insertAt appends a track to a user's queue. "Next" insertion reorders the
// new entry to position 0 so it plays immediately after the current track.
func (s *Service) insertAt(w http.ResponseWriter, r *http.Request, next bool) {
	userID, ok := auth.UserIDFromCtx(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req addTrackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == 0 {
		writeErr(w, http.StatusBadRequest, "track_id required")
		return
	}

	tx, err := s.session.WriteTransaction(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Abandon()

	listID, err := s.queueListID(tx, r, userID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := store.AppendTrackListEntry(r.Context(), tx, listID, dbtypes.TrackID(req.TrackID), nil); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if next {
		entries, err := store.ListTrackListEntries(r.Context(), tx, listID)
		if err == nil && len(entries) > 1 {
			last := entries[len(entries)-1]
			if err := store.ReorderTrackListEntry(r.Context(), tx, listID, last.ID, 0); err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	}
	if err := tx.Commit(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.kv.Del(r.Context(), kvkeys.UserQueue(userID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) cacheQueue(r *http.Request, userID dbtypes.UserID, tracks []store.Track) {
	b, err := json.Marshal(tracks)
	if err != nil {
		return
	}
	s.kv.Set(r.Context(), kvkeys.UserQueue(userID), b, queueCacheTTL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
