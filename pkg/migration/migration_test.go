package migration

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/uvci/resto/pkg/database"
)

type widget struct {
	ID   uint
	Name string
}

type createWidgets struct{}

func (createWidgets) Up(db *gorm.DB) error   { return db.AutoMigrate(&widget{}) }
func (createWidgets) Down(db *gorm.DB) error { return db.Migrator().DropTable(&widget{}) }

type broken struct{}

func (broken) Up(*gorm.DB) error   { return errors.New("boom") }
func (broken) Down(*gorm.DB) error { return nil }

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", "file::memory:", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestRunAndRollback(t *testing.T) {
	db := openDB(t)
	var out bytes.Buffer
	r := NewWith(db, &out, []Entry{
		{Name: "20260101000001_create_widgets", Migration: createWidgets{}},
	})

	ran, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260101000001_create_widgets"}, ran)
	assert.True(t, db.Migrator().HasTable(&widget{}))
	assert.Contains(t, out.String(), "Migrated:")

	ran, err = r.Run()
	require.NoError(t, err)
	assert.Empty(t, ran)

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.True(t, st[0].Ran)
	assert.Equal(t, 1, st[0].Batch)

	back, err := r.Rollback()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260101000001_create_widgets"}, back)
	assert.False(t, db.Migrator().HasTable(&widget{}))

	back, err = r.Rollback()
	require.NoError(t, err)
	assert.Empty(t, back)
}

func TestRunStopsOnFailure(t *testing.T) {
	db := openDB(t)
	r := NewWith(db, nil, []Entry{
		{Name: "1_widgets", Migration: createWidgets{}},
		{Name: "2_broken", Migration: broken{}},
	})

	ran, err := r.Run()
	require.Error(t, err)
	assert.Equal(t, []string{"1_widgets"}, ran)

	pending, err := r.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "2_broken", pending[0].Name)
}

func TestRollbackUnknownMigration(t *testing.T) {
	db := openDB(t)
	_, err := NewWith(db, nil, []Entry{{Name: "1_widgets", Migration: createWidgets{}}}).Run()
	require.NoError(t, err)

	_, err = NewWith(db, nil, nil).Rollback()
	assert.ErrorIs(t, err, ErrNotRegistered)
}
