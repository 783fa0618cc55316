package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	// GORM pings during initialization
	mock.ExpectPing()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       db,
		DriverName: "postgres",
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock, func() { db.Close() }
}

func TestThreadRepository_FindBySubject_PropagatesStoreError(t *testing.T) {
	gormDB, mock, cleanup := setupMockDB(t)
	defer cleanup()
	mock.ExpectQuery(`SELECT \* FROM "threads"`).WillReturnError(sql.ErrConnDone)

	_, err := NewThreadRepository(gormDB).FindBySubject(context.Background(), "T1", "Hello", 5)

	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestThreadRepository_GetByID_PropagatesStoreError(t *testing.T) {
	gormDB, mock, cleanup := setupMockDB(t)
	defer cleanup()
	mock.ExpectQuery(`SELECT \* FROM "threads"`).WillReturnError(sql.ErrConnDone)

	_, err := NewThreadRepository(gormDB).GetByID(context.Background(), "T1", "thread_a")

	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestThreadRepository_GetByID_MapsNoRowsToNotFound(t *testing.T) {
	gormDB, mock, cleanup := setupMockDB(t)
	defer cleanup()
	mock.ExpectQuery(`SELECT \* FROM "threads"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewThreadRepository(gormDB).GetByID(context.Background(), "T1", "thread_a")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_FindByMessageIDs_PropagatesStoreError(t *testing.T) {
	gormDB, mock, cleanup := setupMockDB(t)
	defer cleanup()
	mock.ExpectQuery(`SELECT \* FROM "messages"`).WillReturnError(sql.ErrConnDone)

	_, err := NewMessageRepository(gormDB).FindByMessageIDs(context.Background(), "T1", []string{"m1@x.com"})

	assert.ErrorIs(t, err, sql.ErrConnDone)
}
