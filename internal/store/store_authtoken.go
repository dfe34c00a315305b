package store

import (
	"context"
	"database/sql"

	"lms/internal/dbtypes"
)

// IssueAuthToken records an opaque bearer token scoped to a domain (e.g.
// "subsonic-api", "stream") with an optional expiry and use-count cap
// (AuthToken).
func IssueAuthToken(ctx context.Context, tx *Tx, p IssueAuthTokenParams) (AuthToken, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO auth_token (user_id, domain, token, expiry_unix, max_use_count) VALUES (?, ?, ?, ?, ?)
		RETURNING id, user_id, domain, token, expiry_unix, max_use_count, use_count, last_used_unix`,
		p.UserID, p.Domain, p.Token, nullInt64(p.ExpiryUnix), nullInt(p.MaxUseCount))
	return scanAuthToken(row)
}

// ConsumeAuthToken looks a token up by its opaque value, checks the expiry
// and max-use-count invariants, and if valid bumps use_count and
// last_used_unix atomically in the same transaction.
func ConsumeAuthToken(ctx context.Context, tx *Tx, token string, nowUnix int64) (AuthToken, error) {
	row := tx.QueryRow(ctx, `SELECT id, user_id, domain, token, expiry_unix, max_use_count, use_count, last_used_unix FROM auth_token WHERE token = ?`, token)
	t, err := scanAuthToken(row)
	if err != nil {
		return AuthToken{}, err
	}

	if t.ExpiryUnix != nil && nowUnix > *t.ExpiryUnix {
		return AuthToken{}, &ErrNotFound{Entity: "auth_token", ID: token}
	}
	if t.MaxUseCount != nil && t.UseCount >= *t.MaxUseCount {
		return AuthToken{}, &ErrNotFound{Entity: "auth_token", ID: token}
	}

	if _, err := tx.Exec(ctx, `UPDATE auth_token SET use_count = use_count + 1, last_used_unix = ? WHERE id = ?`, nowUnix, t.ID); err != nil {
		return AuthToken{}, err
	}
	t.UseCount++
	t.LastUsedUnix = &nowUnix
	return t, nil
}

// RevokeAuthToken deletes a token, ending its validity immediately.
func RevokeAuthToken(ctx context.Context, tx *Tx, id dbtypes.AuthTokenID) error {
	_, err := tx.Exec(ctx, `DELETE FROM auth_token WHERE id = ?`, id)
	return err
}

// RevokeExpiredAuthTokens deletes every token past its expiry, a periodic
// housekeeping sweep.
func RevokeExpiredAuthTokens(ctx context.Context, tx *Tx, nowUnix int64) (int64, error) {
	res, err := tx.Exec(ctx, `DELETE FROM auth_token WHERE expiry_unix IS NOT NULL AND expiry_unix < ?`, nowUnix)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected
}

func scanAuthToken(row *sql.Row) (AuthToken, error) {
	var t AuthToken
	var expiry, lastUsed sql.NullInt64
	var maxUse sql.NullInt64
	if err := row.Scan(&t.ID, &t.UserID, &t.Domain, &t.Token, &expiry, &maxUse, &t.UseCount, &lastUsed); err != nil {
		if err == sql.ErrNoRows {
			return AuthToken{}, &ErrNotFound{Entity: "auth_token"}
		}
		return AuthToken{}, err
	}
	t.ExpiryUnix = scanNullInt64(expiry)
	t.LastUsedUnix = scanNullInt64(lastUsed)
	if maxUse.Valid {
		v := int(maxUse.Int64)
		t.MaxUseCount = &v
	}
	return t, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
