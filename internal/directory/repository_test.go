package directory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Lookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	created := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "email", "full_name", "phone", "role", "preferred_language", "created_at"}).
			AddRow(4, "amina@example.co.tz", "Amina Juma", "+255700000001", "tenant", "", created)
		mock.ExpectQuery(`SELECT id, email, full_name`).WithArgs(int64(4)).WillReturnRows(rows)

		user, err := repo.Lookup(context.Background(), 4)
		require.NoError(t, err)
		assert.Equal(t, "Amina Juma", user.FullName)
		assert.Equal(t, RoleTenant, user.Role)
		assert.Equal(t, LanguageEnglish, user.PreferredLanguage)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, email, full_name`).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

		_, err := repo.Lookup(context.Background(), 9)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
