// Package entity holds the query-builder types shared by every finder in
// internal/store (FindFilters, SortMethod, Range) plus
// RandomSession, the memoization primitive that keeps "random" browsing
// stable across pages of the same session instead of reshuffling on every
// request.
//
// Tracks, releases and artists share the one FindFilters/Range shape, so
// they can all be browsed, filtered and paginated the same way.
package entity

import "lms/internal/store"

// Re-export the store-level query primitives under the entity package so
// callers (internal/api, internal/scanner) depend on one name for both the
// request shape and the rows it returns.
type (
	Range = store.Range
	FindFilters = store.FindFilters
	SortMethod = store.SortMethod
)

const (
	SortRandom = store.SortRandom
	SortName = store.SortName
	SortLastModified = store.SortLastModified
	SortStarredDateDesc = store.SortStarredDateDesc
	SortPlayCountDesc = store.SortPlayCountDesc
)

// RandomSession pins the per-request arithmetic used to turn SortRandom
// into a stable ordering across Range pages: rather than re-rolling
// RANDOM on every query (which would show the same track on page 1 and
// page 2), every row is ordered by `(id * 1103515245 + seed) % modulus`,
// a fixed linear-congruential permutation keyed by Seed. Two finds with
// the same Seed always return pages in the same relative order; a new
// Seed reshuffles.
type RandomSession struct {
	Seed int64
}

// NewRandomSession mints a session pinned to seed (typically derived from
// the calling user + a session-scoped nonce, minted once per browse
// session and reused for subsequent pages).
func NewRandomSession(seed int64) RandomSession {
	return RandomSession{Seed: seed}
}

// OrderExpr returns the SQL ORDER BY expression and bound argument that
// realize this session's stable pseudo-random order, given the row id
// column's SQL name.
func (r RandomSession) OrderExpr(idColumn string) (expr string, arg int64) {
	return "((" + idColumn + " * 1103515245 + ?) % 2147483647)", r.Seed
}
