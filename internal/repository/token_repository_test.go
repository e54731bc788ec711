package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presencepro-api/internal/models"
)

func TestTokenRepositoryRevoke(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	userID := "user-1"
	expires := time.Now().Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_denylist")).
		WithArgs("jti-1", "user-1", expires, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := &models.RevokedToken{JTI: "jti-1", UserID: &userID, ExpiresAt: expires}
	require.NoError(t, repo.Revoke(context.Background(), token))
	assert.False(t, token.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryIsRevoked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	query := regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM token_denylist WHERE jti = $1)")
	mock.ExpectQuery(query).WithArgs("jti-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(query).WithArgs("jti-2").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	revoked, err := repo.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryPurgeExpired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM token_denylist WHERE expires_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	purged, err := repo.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
