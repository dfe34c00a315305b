package store

import "fmt"

// ErrCorruption is returned when the startup integrity pass fails.
type ErrCorruption struct {
	Detail string
}

func (e *ErrCorruption) Error string { return fmt.Sprintf("store: corruption detected: %s", e.Detail) }

// ErrMigrationFailed is returned when an up-migration throws (// "SchemaMigrationFailed(version)").
type ErrMigrationFailed struct {
	Version int
	Cause error
}

func (e *ErrMigrationFailed) Error string {
	return fmt.Sprintf("store: migration to version %d failed: %v", e.Version, e.Cause)
}

func (e *ErrMigrationFailed) Unwrap error { return e.Cause }

// ErrConnectionTimeout is returned when the pool cannot hand out a
// connection within the configured timeout.
type ErrConnectionTimeout struct{}

func (e *ErrConnectionTimeout) Error string { return "store: connection pool acquisition timed out" }

// ErrForeignKeyViolation is returned when a `full` integrity check reports a
// broken reference. Fatal: callers should abort startup.
type ErrForeignKeyViolation struct {
	Detail string
}

func (e *ErrForeignKeyViolation) Error string {
	return fmt.Sprintf("store: foreign key violation: %s", e.Detail)
}

// ErrNotFound is a typed "not found" per entity for queries.
type ErrNotFound struct {
	Entity string
	ID any
}

func (e *ErrNotFound) Error string { return fmt.Sprintf("store: %s %v not found", e.Entity, e.ID) }

// ErrBusy is returned when an operation that only runs one-at-a-time (a
// scan) was requested while one is already in progress.
type ErrBusy struct{}

func (e *ErrBusy) Error string { return "store: busy" }
