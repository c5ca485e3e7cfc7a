package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	trainerID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT phone, trainer_id, state").
		WithArgs("5215550001").
		WillReturnRows(sqlmock.NewRows([]string{"phone", "trainer_id", "state", "context", "version", "last_message_at"}).
			AddRow("5215550001", trainerID, "choosing_option", []byte(`{"slots":[]}`), int64(3), now))

	store := NewConversationStore(db)
	conv, err := store.LoadOrCreate(context.Background(), "5215550001", trainerID)
	require.NoError(t, err)

	assert.Equal(t, "choosing_option", conv.State)
	assert.Equal(t, int64(3), conv.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadOrCreateInsertsIdleRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	trainerID := uuid.New()
	mock.ExpectQuery("SELECT phone, trainer_id, state").
		WithArgs("5215550002").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("5215550002", trainerID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewConversationStore(db)
	conv, err := store.LoadOrCreate(context.Background(), "5215550002", trainerID)
	require.NoError(t, err)

	assert.Equal(t, "idle", conv.State)
	assert.Equal(t, int64(1), conv.Version)
	assert.JSONEq(t, "{}", string(conv.Context))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadOrCreateRetriesOnDuplicateKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	trainerID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT phone, trainer_id, state").
		WithArgs("5215550005").
		WillReturnError(sql.ErrNoRows)
	// A concurrent handler wins the insert race; the retry picks up its row.
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("5215550005", trainerID, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT phone, trainer_id, state").
		WithArgs("5215550005").
		WillReturnRows(sqlmock.NewRows([]string{"phone", "trainer_id", "state", "context", "version", "last_message_at"}).
			AddRow("5215550005", trainerID, "idle", []byte(`{}`), int64(1), now))

	store := NewConversationStore(db)
	conv, err := store.LoadOrCreate(context.Background(), "5215550005", trainerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), conv.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBumpsVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conv := &Conversation{
		Phone:         "5215550003",
		State:         "choosing_service",
		Context:       []byte(`{"services":[]}`),
		Version:       2,
		LastMessageAt: time.Now().UTC(),
	}
	mock.ExpectExec("UPDATE conversations").
		WithArgs(conv.State, conv.Context, conv.LastMessageAt, conv.Phone, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewConversationStore(db)
	require.NoError(t, store.Save(context.Background(), conv))
	assert.Equal(t, int64(3), conv.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveVersionConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	conv := &Conversation{
		Phone:         "5215550004",
		State:         "idle",
		Version:       5,
		LastMessageAt: time.Now().UTC(),
	}
	mock.ExpectExec("UPDATE conversations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewConversationStore(db)
	err = store.Save(context.Background(), conv)
	assert.ErrorIs(t, err, ErrVersionConflict)
	// Version stays at what was loaded so the caller can re-read.
	assert.Equal(t, int64(5), conv.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}
