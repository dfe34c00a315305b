package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"
)

// QueryPlanRecorder is a process-wide singleton: it intercepts each distinct
// SQL string on first execution, runs `EXPLAIN QUERY PLAN` against it, and
// stores a formatted, tree-indented plan, offering visitor-style iteration
// for an operator export endpoint.
//
// The plan rows are indented by their id/parent columns (the recursive
// format closure in RecordIfNeeded), walking database/sql's *sql.Rows
// directly. Deliberately an
// intentional singleton rather than a zero-initialised global — SQLite
// exposes statements without a channel back to their owning handle — so it
// is constructed explicitly via NewQueryPlanRecorder and held on DB, never
// package-level.
type QueryPlanRecorder struct {
	mu sync.RWMutex
	plans map[string]string
}

// NewQueryPlanRecorder returns an empty recorder.
func NewQueryPlanRecorder *QueryPlanRecorder {
	return &QueryPlanRecorder{plans: make(map[string]string)}
}

// QueryPlanVisitor is called once per recorded (query, plan) pair.
type QueryPlanVisitor func(query, plan string)

// VisitQueryPlans iterates every recorded plan under a read lock.
func (r *QueryPlanRecorder) VisitQueryPlans(visitor QueryPlanVisitor) {
	r.mu.RLock
	defer r.mu.RUnlock
	for query, plan := range r.plans {
		visitor(query, plan)
	}
}

type planEntry struct {
	id int
	detail string
}

// RecordIfNeeded runs EXPLAIN QUERY PLAN for query the first time it is
// seen and stores the formatted result; subsequent calls for the same
// string are no-ops. Errors are swallowed: the recorder is a diagnostic
// aid, never a reason to fail a real query.
func (r *QueryPlanRecorder) RecordIfNeeded(ctx context.Context, tx *sql.Tx, query string) {
	r.mu.RLock
	_, ok := r.plans[query]
	r.mu.RUnlock
	if ok {
		return
	}

	rows, err := tx.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query)
	if err != nil {
		return
	}
	defer rows.Close

	entries := map[int]planEntry{0: {id: 0, detail: ""}}
	children := map[int][]int{}

	for rows.Next {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return
		}
		entries[id] = planEntry{id: id, detail: detail}
		children[parent] = append(children[parent], id)
	}
	if rows.Err != nil {
		return
	}

	var b strings.Builder
	var format func(id, level int)
	format = func(id, level int) {
		b.WriteString(strings.Repeat("\t", level))
		b.WriteString(entries[id].detail)
		b.WriteByte('\n')
		for _, child := range children[id] {
			format(child, level+1)
		}
	}
	format(0, 0)

	r.mu.Lock
	if _, already := r.plans[query]; !already {
		r.plans[query] = b.String
	}
	r.mu.Unlock
}
