package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/models"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := New(db, "query_memory")
	require.NoError(t, err)
	return s, mock
}

func TestNew_RejectsUnsafeTableName(t *testing.T) {
	_, err := New(nil, "memory; DROP TABLE users")
	assert.Error(t, err)
}

func TestStore_Persist(t *testing.T) {
	s, mock := newStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO query_memory (query_id, site, fact, created_at) VALUES ($1, $2, $3, $4)`)).
		WithArgs("q-1", "seriouseats", "The user is vegetarian.", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Persist(context.Background(), models.MemoryFact{
		QueryID: "q-1", Site: "seriouseats", Fact: "The user is vegetarian.", CreatedAt: at,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PersistDefaultsTimestamp(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec("INSERT INTO query_memory").
		WithArgs("q-2", "", "likes spicy food", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	require.NoError(t, s.Persist(context.Background(), models.MemoryFact{QueryID: "q-2", Fact: "likes spicy food"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PersistError(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec("INSERT INTO query_memory").WillReturnError(errors.New("connection reset"))

	err := s.Persist(context.Background(), models.MemoryFact{QueryID: "q", Fact: "f"})
	assert.ErrorContains(t, err, "connection reset")
}

func TestStore_EnsureSchema(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS query_memory").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Recent(t *testing.T) {
	s, mock := newStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT query_id, site, fact, created_at FROM query_memory").
		WithArgs("seriouseats", 5).
		WillReturnRows(sqlmock.NewRows([]string{"query_id", "site", "fact", "created_at"}).
			AddRow("q-1", "seriouseats", "vegetarian", at))

	facts, err := s.Recent(context.Background(), "seriouseats", 5)

	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "vegetarian", facts[0].Fact)
	assert.NoError(t, mock.ExpectationsWereMet())
}
