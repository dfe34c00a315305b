package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one ordered, idempotent up-migration ("schema migration
// engine"). Each runs inside its own write transaction; a migration that
// returns an error aborts the whole Migrate call without marking itself
// applied, matching "migration must succeed in full or not be marked
// applied".
type migration struct {
	version int
	up func(tx *sql.Tx) error
}

// migrations is the ordered list of schema versions, each an up function
// carrying its SQL inline, tracked via a `version_info`-keyed migration
// engine rather than a single re-appliable script.
var migrations = []migration{
	{version: 1, up: migrateV1},
	{version: 2, up: migrateV2},
}

func migrateV1(tx *sql.Tx) error {
	const schema = `
CREATE TABLE IF NOT EXISTS version_info (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	db_version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS media_library (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	root_path TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS directory (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	parent_id INTEGER REFERENCES directory(id) ON DELETE CASCADE,
	media_library_id INTEGER NOT NULL REFERENCES media_library(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_directory_parent ON directory(parent_id);
CREATE INDEX IF NOT EXISTS idx_directory_library ON directory(media_library_id);

CREATE TABLE IF NOT EXISTS image (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	file_size INTEGER NOT NULL,
	mtime_unix INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS label (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS release_type (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS cluster_type (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS cluster (
	id INTEGER PRIMARY KEY,
	cluster_type_id INTEGER NOT NULL REFERENCES cluster_type(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE(cluster_type_id, name)
);

CREATE TABLE IF NOT EXISTS artist (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	sort_name TEXT NOT NULL,
	mbid TEXT,
	biography TEXT,
	image_id INTEGER REFERENCES image(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_artist_mbid ON artist(mbid);
CREATE INDEX IF NOT EXISTS idx_artist_name ON artist(name);

CREATE TABLE IF NOT EXISTS release (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	sort_name TEXT NOT NULL,
	mbid TEXT,
	year INTEGER,
	original_year INTEGER,
	total_disc INTEGER,
	cover_image_id INTEGER REFERENCES image(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_release_mbid ON release(mbid);
CREATE INDEX IF NOT EXISTS idx_release_name ON release(name);

CREATE TABLE IF NOT EXISTS release_label (
	release_id INTEGER NOT NULL REFERENCES release(id) ON DELETE CASCADE,
	label_id INTEGER NOT NULL REFERENCES label(id) ON DELETE CASCADE,
	PRIMARY KEY(release_id, label_id)
);

CREATE TABLE IF NOT EXISTS release_release_type (
	release_id INTEGER NOT NULL REFERENCES release(id) ON DELETE CASCADE,
	release_type_id INTEGER NOT NULL REFERENCES release_type(id) ON DELETE CASCADE,
	PRIMARY KEY(release_id, release_type_id)
);

CREATE TABLE IF NOT EXISTS track (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	file_size INTEGER NOT NULL,
	mtime_unix INTEGER NOT NULL,
	scan_time_unix INTEGER NOT NULL,
	scan_version INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	track_number INTEGER,
	track_total INTEGER,
	disc_number INTEGER,
	disc_total INTEGER,
	release_date TEXT,
	original_release_date TEXT,
	mb_recording_id TEXT,
	mb_release_id TEXT,
	mb_track_id TEXT,
	replaygain_track REAL,
	replaygain_release REAL,
	copyright TEXT,
	copyright_url TEXT,
	bit_depth INTEGER,
	channels INTEGER,
	sample_rate INTEGER,
	release_id INTEGER REFERENCES release(id) ON DELETE SET NULL,
	media_library_id INTEGER NOT NULL REFERENCES media_library(id) ON DELETE CASCADE,
	directory_id INTEGER NOT NULL REFERENCES directory(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_track_release ON track(release_id);
CREATE INDEX IF NOT EXISTS idx_track_directory ON track(directory_id);
CREATE INDEX IF NOT EXISTS idx_track_mb_recording ON track(mb_recording_id);

CREATE TABLE IF NOT EXISTS track_artist (
	track_id INTEGER NOT NULL REFERENCES track(id) ON DELETE CASCADE,
	artist_id INTEGER NOT NULL REFERENCES artist(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	PRIMARY KEY(track_id, artist_id, role)
);
CREATE INDEX IF NOT EXISTS idx_track_artist_artist ON track_artist(artist_id);

CREATE TABLE IF NOT EXISTS track_cluster (
	track_id INTEGER NOT NULL REFERENCES track(id) ON DELETE CASCADE,
	cluster_id INTEGER NOT NULL REFERENCES cluster(id) ON DELETE CASCADE,
	PRIMARY KEY(track_id, cluster_id)
);
CREATE INDEX IF NOT EXISTS idx_track_cluster_cluster ON track_cluster(cluster_id);

CREATE TABLE IF NOT EXISTS track_lyrics (
	id INTEGER PRIMARY KEY,
	track_id INTEGER NOT NULL REFERENCES track(id) ON DELETE CASCADE,
	external_path TEXT,
	synchronized INTEGER NOT NULL DEFAULT 0,
	language TEXT,
	display_artist TEXT,
	display_album TEXT,
	display_title TEXT,
	offset_ms INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_track_lyrics_track ON track_lyrics(track_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_track_lyrics_external_path ON track_lyrics(external_path) WHERE external_path IS NOT NULL;

CREATE TABLE IF NOT EXISTS playlist_file (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	file_size INTEGER NOT NULL,
	mtime_unix INTEGER NOT NULL,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lms_user (
	id INTEGER PRIMARY KEY,
	login TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT 'regular',
	password_hash TEXT,
	password_salt TEXT,
	last_login_unix INTEGER
);

CREATE TABLE IF NOT EXISTS tracklist (
	id INTEGER PRIMARY KEY,
	owner_user_id INTEGER REFERENCES lms_user(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	visibility TEXT NOT NULL DEFAULT 'private',
	name TEXT NOT NULL,
	created_unix INTEGER NOT NULL,
	last_modified_unix INTEGER NOT NULL,
	UNIQUE(owner_user_id, type, name)
);

CREATE TABLE IF NOT EXISTS tracklist_entry (
	id INTEGER PRIMARY KEY,
	tracklist_id INTEGER NOT NULL REFERENCES tracklist(id) ON DELETE CASCADE,
	track_id INTEGER NOT NULL REFERENCES track(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	entry_timestamp_unix INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tracklist_entry_list ON tracklist_entry(tracklist_id, position);

CREATE TABLE IF NOT EXISTS starred_artist (
	user_id INTEGER NOT NULL REFERENCES lms_user(id) ON DELETE CASCADE,
	artist_id INTEGER NOT NULL REFERENCES artist(id) ON DELETE CASCADE,
	backend TEXT NOT NULL DEFAULT 'internal',
	sync_state TEXT NOT NULL DEFAULT 'unsynchronized',
	starred_at_unix INTEGER NOT NULL,
	PRIMARY KEY(user_id, artist_id, backend)
);

CREATE TABLE IF NOT EXISTS starred_release (
	user_id INTEGER NOT NULL REFERENCES lms_user(id) ON DELETE CASCADE,
	release_id INTEGER NOT NULL REFERENCES release(id) ON DELETE CASCADE,
	backend TEXT NOT NULL DEFAULT 'internal',
	sync_state TEXT NOT NULL DEFAULT 'unsynchronized',
	starred_at_unix INTEGER NOT NULL,
	PRIMARY KEY(user_id, release_id, backend)
);

CREATE TABLE IF NOT EXISTS starred_track (
	user_id INTEGER NOT NULL REFERENCES lms_user(id) ON DELETE CASCADE,
	track_id INTEGER NOT NULL REFERENCES track(id) ON DELETE CASCADE,
	backend TEXT NOT NULL DEFAULT 'internal',
	sync_state TEXT NOT NULL DEFAULT 'unsynchronized',
	starred_at_unix INTEGER NOT NULL,
	PRIMARY KEY(user_id, track_id, backend)
);

CREATE TABLE IF NOT EXISTS auth_token (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES lms_user(id) ON DELETE CASCADE,
	domain TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	expiry_unix INTEGER,
	max_use_count INTEGER,
	use_count INTEGER NOT NULL DEFAULT 0,
	last_used_unix INTEGER
);
CREATE INDEX IF NOT EXISTS idx_auth_token_user_domain ON auth_token(user_id, domain);

CREATE TABLE IF NOT EXISTS scan_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	audio_scan_version INTEGER NOT NULL DEFAULT 1,
	artist_info_scan_version INTEGER NOT NULL DEFAULT 1,
	last_scan_unix INTEGER
);

CREATE TABLE IF NOT EXISTS ui_state (
	user_id INTEGER NOT NULL REFERENCES lms_user(id) ON DELETE CASCADE,
	item_key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY(user_id, item_key)
);
`
	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("apply v1 schema: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO scan_settings(id) VALUES (1)`); err != nil {
		return fmt.Errorf("seed scan_settings: %w", err)
	}
	return nil
}

// migrateV2 adds the column AssociateTrackImages needs to record a track's
// own embedded cover separately from its release's folder art.
func migrateV2(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE track ADD COLUMN embedded_image_id INTEGER REFERENCES image(id) ON DELETE SET NULL`)
	return err
}

// Migrate inspects version_info and applies every migration whose version
// is greater than the current db_version, each inside its own write
// transaction, in order. Returns ErrMigrationFailed{Version} on the first
// failure without marking that version applied.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version_info (id INTEGER PRIMARY KEY CHECK (id = 1), db_version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure version_info: %w", err)
	}

	current := 0
	row := db.conn.QueryRowContext(ctx, `SELECT db_version FROM version_info WHERE id = 1`)
	if err := row.Scan(&current); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.up(tx); err != nil {
			_ = tx.Rollback
			return &ErrMigrationFailed{Version: m.version, Cause: err}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO version_info(id, db_version) VALUES (1, ?)
			 ON CONFLICT(id) DO UPDATE SET db_version = excluded.db_version`, m.version); err != nil {
			_ = tx.Rollback
			return &ErrMigrationFailed{Version: m.version, Cause: err}
		}

		if err := tx.Commit; err != nil {
			return &ErrMigrationFailed{Version: m.version, Cause: err}
		}

		current = m.version
	}

	return nil
}
