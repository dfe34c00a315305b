package store

import (
	"context"
	"database/sql"

	"lms/internal/dbtypes"
)

// CreateUser inserts a new login onto a surrogate int64 ID and a salted
// bcrypt hash pair instead of a caller-supplied UUID.
func CreateUser(ctx context.Context, tx *Tx, p CreateUserParams) (User, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO lms_user (login, type, password_hash, password_salt) VALUES (?, ?, ?, ?)
		RETURNING id, login, type, password_hash, password_salt, last_login_unix`,
		p.Login, string(p.Type), p.PasswordHash, p.PasswordSalt)
	return scanUser(row)
}

// HasAnyUser reports whether at least one account exists, used to gate the
// first-run registration bootstrap.
func HasAnyUser(ctx context.Context, tx *Tx) (bool, error) {
	var n int
	row := tx.QueryRow(ctx, `SELECT COUNT(*) FROM lms_user`)
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateUserPasswordHash overwrites a user's password hash, used by the
// change-password flow. Leaves password_salt untouched since bcrypt carries
// its own salt embedded in the hash.
func UpdateUserPasswordHash(ctx context.Context, tx *Tx, id dbtypes.UserID, hash string) error {
	_, err := tx.Exec(ctx, `UPDATE lms_user SET password_hash = ? WHERE id = ?`, hash, id)
	return err
}

// GetUserByLogin fetches a user by their unique login name, the lookup
// path used by the authentication handler.
func GetUserByLogin(ctx context.Context, tx *Tx, login string) (User, error) {
	row := tx.QueryRow(ctx, `SELECT id, login, type, password_hash, password_salt, last_login_unix FROM lms_user WHERE login = ?`, login)
	return scanUser(row)
}

// GetUser fetches a user by ID.
func GetUser(ctx context.Context, tx *Tx, id dbtypes.UserID) (User, error) {
	row := tx.QueryRow(ctx, `SELECT id, login, type, password_hash, password_salt, last_login_unix FROM lms_user WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	var typ string
	var hash, salt sql.NullString
	var lastLogin sql.NullInt64
	if err := row.Scan(&u.ID, &u.Login, &typ, &hash, &salt, &lastLogin); err != nil {
		if err == sql.ErrNoRows {
			return User{}, &ErrNotFound{Entity: "user"}
		}
		return User{}, err
	}
	u.Type = UserType(typ)
	u.PasswordHash = scanNullString(hash)
	u.PasswordSalt = scanNullString(salt)
	u.LastLoginUnix = scanNullInt64(lastLogin)
	return u, nil
}

// RecordLogin stamps last_login_unix to now, called on every successful
// authentication.
func RecordLogin(ctx context.Context, tx *Tx, id dbtypes.UserID, nowUnix int64) error {
	_, err := tx.Exec(ctx, `UPDATE lms_user SET last_login_unix = ? WHERE id = ?`, nowUnix, id)
	return err
}

// ListUsers returns every account, for the admin panel.
func ListUsers(ctx context.Context, tx *Tx) ([]User, error) {
	rows, err := tx.Query(ctx, `SELECT id, login, type, password_hash, password_salt, last_login_unix FROM lms_user ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var typ string
		var hash, salt sql.NullString
		var lastLogin sql.NullInt64
		if err := rows.Scan(&u.ID, &u.Login, &typ, &hash, &salt, &lastLogin); err != nil {
			return nil, err
		}
		u.Type = UserType(typ)
		u.PasswordHash = scanNullString(hash)
		u.PasswordSalt = scanNullString(salt)
		u.LastLoginUnix = scanNullInt64(lastLogin)
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteUser removes an account and cascades to its tracklists, starred
// rows and auth tokens via foreign keys.
func DeleteUser(ctx context.Context, tx *Tx, id dbtypes.UserID) error {
	_, err := tx.Exec(ctx, `DELETE FROM lms_user WHERE id = ?`, id)
	return err
}

// SetUIState persists one opaque client-side UI preference key/value pair.
func SetUIState(ctx context.Context, tx *Tx, userID dbtypes.UserID, key, value string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ui_state (user_id, item_key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, item_key) DO UPDATE SET value = excluded.value`,
		userID, key, value)
	return err
}

// GetUIState reads back a previously stored UI preference.
func GetUIState(ctx context.Context, tx *Tx, userID dbtypes.UserID, key string) (string, error) {
	var value string
	row := tx.QueryRow(ctx, `SELECT value FROM ui_state WHERE user_id = ? AND item_key = ?`, userID, key)
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", &ErrNotFound{Entity: "ui_state", ID: key}
	}
	return value, err
}
