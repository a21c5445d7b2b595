package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/enrollhq/enroll/internal/auth"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/errorz"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

const userColumns = `id, email, password_hash, confirmed, registered_on, confirmed_on`

func insertUser(ef execFunc, u *auth.User) error {
	const q = `INSERT INTO users (email, password_hash, confirmed, registered_on, confirmed_on) VALUES (?, ?, ?, ?, ?)`

	result, err := ef(q, string(u.Email), u.PasswordHash, u.Confirmed, u.RegisteredOn, u.ConfirmedOn)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	u.ID = int(id)

	return nil
}

func updateUser(ef execFunc, u *auth.User) error {
	const q = `UPDATE users SET email = ?, password_hash = ?, confirmed = ?, registered_on = ?, confirmed_on = ? WHERE id = ?`

	result, err := ef(q, string(u.Email), u.PasswordHash, u.Confirmed, u.RegisteredOn, u.ConfirmedOn, u.ID)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectUsers(qf queryFunc, f *auth.UserFilter) ([]auth.User, error) {
	var b strings.Builder
	params := make([]any, 0)

	b.WriteString(`SELECT ` + userColumns + ` FROM users WHERE 1=1`)

	if len(f.IDs) > 0 {
		b.WriteString(` AND id IN (` + placeholders(len(f.IDs)) + `)`)
		for _, id := range f.IDs {
			params = append(params, id)
		}
	}

	if len(f.Emails) > 0 {
		b.WriteString(` AND email IN (` + placeholders(len(f.Emails)) + `)`)
		for _, addr := range f.Emails {
			params = append(params, string(addr))
		}
	}

	if f.Confirmed != nil {
		b.WriteString(` AND confirmed = ?`)
		params = append(params, *f.Confirmed)
	}

	b.WriteString(` ORDER BY id ASC`)

	rows, err := qf(b.String(), params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		var u auth.User
		var rawEmail string
		var confirmedOn sql.NullTime

		err := rows.Scan(&u.ID, &rawEmail, &u.PasswordHash, &u.Confirmed, &u.RegisteredOn, &confirmedOn)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		u.Email, err = email.ParseAddress(rawEmail)
		if err != nil {
			return nil, err
		}

		if confirmedOn.Valid {
			t := confirmedOn.Time
			u.ConfirmedOn = &t
		}

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
