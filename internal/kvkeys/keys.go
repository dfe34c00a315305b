// Package kvkeys defines the key schema for the KeyVal (Redis) layer:
// sessions, refresh tokens, per-track metadata cache, per-user play queues,
// login rate limiting, and listen-party session/guest tokens.
package kvkeys

import (
	"strconv"
	"strings"

	"lms/internal/dbtypes"
)

func Session(userID dbtypes.UserID) string     { return "session:" + userID.String() }
func RefreshToken(token string) string         { return "refresh:" + token }
func TrackMeta(trackID dbtypes.TrackID) string { return "track:meta:" + trackID.String() }
func UserQueue(userID dbtypes.UserID) string   { return "queue:" + userID.String() }
func LoginAttempts(ip string) string           { return "ratelimit:login:" + strings.ReplaceAll(ip, ":", "_") }
func ListenSession(id string) string           { return "listen_session:" + id }
func ListenGuestToken(token string) string     { return "listen_guest:" + token }

// ScanProgress holds the step/progress counters for the currently running
// (or most recently completed) library scan, published by internal/scanner
// so the API layer can expose a scan-status endpoint without polling SQLite.
func ScanProgress() string { return "scan:progress" }

// SimilarTracksCacheEntry caches a SOM similarity query result keyed on the
// seed track and requested count, avoiding recomputation on repeated
// "similar tracks" requests for the same track within a session.
func SimilarTracksCacheEntry(seed dbtypes.TrackID, count int) string {
	return "similar:track:" + seed.String() + ":" + strconv.Itoa(count)
}
