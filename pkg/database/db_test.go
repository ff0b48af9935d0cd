package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectPing()
	assert.NoError(t, Ping(context.Background(), sqlDB))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = Ping(context.Background(), sqlDB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database: ping")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DB_DRIVER")
}

func TestOpenSQLiteAndInstrument(t *testing.T) {
	db, err := Open("sqlite", "file::memory:", Options{})
	require.NoError(t, err)
	defer Close(db)

	assert.NoError(t, Healthy(context.Background(), db))

	type probe struct {
		ID   uint
		Name string
	}
	require.NoError(t, db.AutoMigrate(&probe{}))
	require.NoError(t, db.Create(&probe{Name: "x"}).Error)

	var got []probe
	require.NoError(t, db.Find(&got).Error)
	assert.Len(t, got, 1)
}
