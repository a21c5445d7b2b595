package db

import (
	"context"
	"database/sql"

	"github.com/enrollhq/enroll/internal/auth"
)

// Store is responsible for persisting users to a database.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx: tx,
	}, nil
}

// FindUsers queries for users based on the provided filter without
// an explicit transaction.
func (s *Store) FindUsers(ctx context.Context, filter *auth.UserFilter) ([]auth.User, error) {
	return selectUsers(func(query string, params ...any) (*sql.Rows, error) {
		return s.db.QueryContext(ctx, query, params...)
	}, filter)
}
