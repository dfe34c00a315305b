// Package playercontrol exposes the local PulseAudio-backed player as HTTP
// routes: load the caller's queue onto it, then play/pause/stop/
// seek/inspect it. There is one physical audio output per server process,
// so every authenticated user drives the same Player — this is a local
// listening-room feature, not a per-user stream.
package playercontrol

import (
	"encoding/json"
	"net/http"
	"time"

	"lms/internal/api/auth"
	"lms/internal/player"
	"lms/internal/store"

	"github.com/go-chi/chi/v5"
)

// Service handles player-control HTTP routes.
type Service struct {
	db      *store.DB
	session *store.Session
	player  *player.Player
}

// New returns a new playercontrol Service wrapping an already-constructed
// Player (built by cmd/server/main.go with the configured sink/transcoder).
func New(db *store.DB, p *player.Player) *Service {
	return &Service{db: db, session: store.NewSession(db), player: p}
}

// Routes registers player-control endpoints.
func (s *Service) Routes(r chi.Router) {
	r.Post("/queue/load", s.loadQueue)
	r.Post("/play", s.play)
	r.Post("/pause", s.pause)
	r.Post("/stop", s.stop)
	r.Post("/seek", s.seek)
	r.Get("/status", s.status)
}

// loadQueue replaces the player's play queue with the caller's queue
// tracklist, in position order, so a subsequent play picks up where the
// web UI's queue view left off.
func (s *Service) loadQueue(w http.ResponseWriter, r *http.Request) {
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

	lists, err := store.ListTrackListsByOwner(r.Context(), tx, userID, store.TrackListInternal)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(lists) == 0 {
		writeErr(w, http.StatusNotFound, "queue is empty")
		return
	}
	entries, err := store.ListTrackListEntries(r.Context(), tx, lists[0].ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	queue := make([]player.Entry, 0, len(entries))
	for _, e := range entries {
		track, err := store.GetTrack(r.Context(), tx, e.TrackID)
		if err != nil {
			continue
		}
		queue = append(queue, player.Entry{
			TrackID:  track.ID,
			Path:     track.Path,
			Duration: time.Duration(track.DurationMs) * time.Millisecond,
		})
	}

	if err := s.player.SetQueue(r.Context(), queue); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"track_count": len(queue)})
}

type playReq struct {
	EntryIndex int   `json:"entry_index"`
	OffsetMs   int64 `json:"offset_ms"`
}

func (s *Service) play(w http.ResponseWriter, r *http.Request) {
	var req playReq
	req.EntryIndex = -1
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if err := s.player.Play(r.Context(), req.EntryIndex, time.Duration(req.OffsetMs)*time.Millisecond); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) pause(w http.ResponseWriter, r *http.Request) {
	if err := s.player.Pause(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.player.Stop(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type seekReq struct {
	OffsetMs int64 `json:"offset_ms"`
}

func (s *Service) seek(w http.ResponseWriter, r *http.Request) {
	var req seekReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.player.Seek(r.Context(), time.Duration(req.OffsetMs)*time.Millisecond); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.player.GetStatus(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":          st.State,
		"entry_index":    st.EntryIndex,
		"current_offset_ms": st.CurrentOffset.Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
