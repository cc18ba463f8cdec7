package user

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupUserMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestCreateUser(t *testing.T) {
	repo, mock, close := setupUserMock(t)
	defer close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, password_hash, role, created_at
	`)).
		WithArgs("Teacher", "teacher@school.edu", "hash", "member").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "created_at"}).
			AddRow(1, "Teacher", "teacher@school.edu", "hash", "member", now))

	u, err := repo.Create(context.Background(), "Teacher", "teacher@school.edu", "hash", "member")
	require.NoError(t, err)
	assert.Equal(t, 1, u.ID)
	assert.Equal(t, "member", u.Role)
}

func TestFindByEmail(t *testing.T) {
	repo, mock, close := setupUserMock(t)
	defer close()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, email, password_hash, role, created_at").
			WithArgs("teacher@school.edu").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "created_at"}).
				AddRow(1, "Teacher", "teacher@school.edu", "hash", "member", time.Now()))

		u, err := repo.FindByEmail(context.Background(), "teacher@school.edu")
		require.NoError(t, err)
		assert.Equal(t, "teacher@school.edu", u.Email)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, email, password_hash, role, created_at").
			WithArgs("ghost@school.edu").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "created_at"}))

		_, err := repo.FindByEmail(context.Background(), "ghost@school.edu")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestEmailExists(t *testing.T) {
	repo, mock, close := setupUserMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`)).
		WithArgs("teacher@school.edu").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "teacher@school.edu")
	require.NoError(t, err)
	assert.True(t, exists)
}
