package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enrollhq/enroll/internal/auth"
	"github.com/enrollhq/enroll/internal/auth/db"
	"github.com/enrollhq/enroll/internal/db/testdb"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/errorz"
	"github.com/enrollhq/enroll/internal/krypto"
)

func setupStore(t *testing.T) *db.Store {
	t.Helper()

	return db.New(testdb.RunWhile(t))
}

func testUser(t *testing.T, addr string) auth.User {
	t.Helper()

	parsedAddr, err := email.ParseAddress(addr)
	if err != nil {
		t.Fatalf("failed to parse address: %v", err)
	}

	hash, err := krypto.HashArgon2([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	return auth.User{
		Email:        parsedAddr,
		PasswordHash: hash,
		Confirmed:    false,
		RegisteredOn: time.Now().Round(time.Second).UTC(),
	}
}

// createUser inserts a user in its own committed transaction.
func createUser(t *testing.T, store *db.Store, u *auth.User) {
	t.Helper()

	inTx(t, store, func(tx auth.Tx) error {
		return tx.CreateUser(u)
	})
}

func inTx(t *testing.T, store *db.Store, f func(tx auth.Tx) error) {
	t.Helper()

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	if err := f(tx); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			t.Errorf("failed to rollback: %v", rErr)
		}
		t.Fatalf("transaction failed: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func TestTx_CreateUser(t *testing.T) {
	t.Run("ok, assigns increasing IDs", func(t *testing.T) {
		store := setupStore(t)

		alice := testUser(t, "alice@example.com")
		bob := testUser(t, "bob@example.com")

		createUser(t, store, &alice)
		createUser(t, store, &bob)

		if alice.ID == 0 || bob.ID == 0 {
			t.Errorf("users were not assigned IDs: %d, %d", alice.ID, bob.ID)
		}

		if bob.ID <= alice.ID {
			t.Errorf("IDs not increasing: %d then %d", alice.ID, bob.ID)
		}
	})

	t.Run("fail, duplicate email violates constraint", func(t *testing.T) {
		store := setupStore(t)

		first := testUser(t, "test@example.com")
		createUser(t, store, &first)

		second := testUser(t, "test@example.com")

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin transaction: %v", err)
		}

		defer tx.Rollback()

		err = tx.CreateUser(&second)
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Errorf("expected ErrConstraintViolated, got %v", err)
		}
	})
}

func TestTx_UpdateUser(t *testing.T) {
	t.Run("ok, round trips all fields", func(t *testing.T) {
		store := setupStore(t)

		user := testUser(t, "test@example.com")
		createUser(t, store, &user)

		confirmedOn := time.Now().Round(time.Second).UTC()
		user.Confirmed = true
		user.ConfirmedOn = &confirmedOn

		inTx(t, store, func(tx auth.Tx) error {
			return tx.UpdateUser(&user)
		})

		got, err := store.FindUsers(context.Background(), &auth.UserFilter{
			IDs: []int{user.ID},
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(got) != 1 {
			t.Fatalf("expected 1 user, got %d", len(got))
		}

		assertSameUser(t, got[0], user)
	})

	t.Run("fail, unknown user", func(t *testing.T) {
		store := setupStore(t)

		user := testUser(t, "test@example.com")
		user.ID = 42

		tx, err := store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin transaction: %v", err)
		}

		defer tx.Rollback()

		err = tx.UpdateUser(&user)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_FindUsers(t *testing.T) {
	setup := func(t *testing.T) (*db.Store, auth.User, auth.User) {
		store := setupStore(t)

		alice := testUser(t, "alice@example.com")
		confirmedOn := time.Now().Round(time.Second).UTC()
		alice.Confirmed = true
		alice.ConfirmedOn = &confirmedOn

		bob := testUser(t, "bob@example.com")

		createUser(t, store, &alice)
		createUser(t, store, &bob)

		return store, alice, bob
	}

	ptr := func(b bool) *bool {
		return &b
	}

	t.Run("ok, matching filters", func(t *testing.T) {
		store, alice, bob := setup(t)

		tests := map[string]struct {
			filter *auth.UserFilter
			want   []auth.User
		}{
			"all users": {
				filter: &auth.UserFilter{},
				want:   []auth.User{alice, bob},
			},
			"by ID": {
				filter: &auth.UserFilter{IDs: []int{bob.ID}},
				want:   []auth.User{bob},
			},
			"by email": {
				filter: &auth.UserFilter{Emails: []email.Address{"alice@example.com"}},
				want:   []auth.User{alice},
			},
			"confirmed only": {
				filter: &auth.UserFilter{Confirmed: ptr(true)},
				want:   []auth.User{alice},
			},
			"unconfirmed only": {
				filter: &auth.UserFilter{Confirmed: ptr(false)},
				want:   []auth.User{bob},
			},
			"combined": {
				filter: &auth.UserFilter{
					Emails:    []email.Address{"alice@example.com", "bob@example.com"},
					Confirmed: ptr(true),
				},
				want: []auth.User{alice},
			},
		}

		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				got, err := store.FindUsers(context.Background(), tc.filter)
				if err != nil {
					t.Fatalf("failed to find users: %v", err)
				}

				if len(got) != len(tc.want) {
					t.Fatalf("expected %d users, got %d", len(tc.want), len(got))
				}

				for i := range got {
					assertSameUser(t, got[i], tc.want[i])
				}
			})
		}
	})

	t.Run("ok, no match returns empty slice", func(t *testing.T) {
		store, _, _ := setup(t)

		got, err := store.FindUsers(context.Background(), &auth.UserFilter{
			Emails: []email.Address{"nobody@example.com"},
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if got == nil || len(got) != 0 {
			t.Errorf("expected empty slice, got %v", got)
		}
	})
}

func assertSameUser(t *testing.T, got, want auth.User) {
	t.Helper()

	if got.ID != want.ID {
		t.Errorf("got ID %d, want %d", got.ID, want.ID)
	}

	if got.Email != want.Email {
		t.Errorf("got email %q, want %q", got.Email, want.Email)
	}

	if got.PasswordHash.String() != want.PasswordHash.String() {
		t.Errorf("got hash %q, want %q", got.PasswordHash, want.PasswordHash)
	}

	if got.Confirmed != want.Confirmed {
		t.Errorf("got confirmed %v, want %v", got.Confirmed, want.Confirmed)
	}

	if !got.RegisteredOn.Equal(want.RegisteredOn) {
		t.Errorf("got registered on %v, want %v", got.RegisteredOn, want.RegisteredOn)
	}

	switch {
	case got.ConfirmedOn == nil && want.ConfirmedOn == nil:
	case got.ConfirmedOn == nil || want.ConfirmedOn == nil:
		t.Errorf("got confirmed on %v, want %v", got.ConfirmedOn, want.ConfirmedOn)
	case !got.ConfirmedOn.Equal(*want.ConfirmedOn):
		t.Errorf("got confirmed on %v, want %v", got.ConfirmedOn, want.ConfirmedOn)
	}
}
