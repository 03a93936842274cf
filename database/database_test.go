package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lochel/genealogy/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRequestLog(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, path := range []string{"/api/relatives", "/api/relatives/anna", "/api/validate"} {
		require.NoError(t, LogRequest(db, RequestLogEntry{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			RemoteAddr: "127.0.0.1:5000",
			Method:     "GET",
			Scheme:     "http",
			FullPath:   path,
			Status:     200,
		}))
	}

	entries, err := RecentRequests(db, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/api/validate", entries[0].FullPath)
	assert.Equal(t, "/api/relatives/anna", entries[1].FullPath)
	assert.True(t, entries[0].Timestamp.Equal(base.Add(2*time.Minute)))
}

func TestContactMessages(t *testing.T) {
	db := newTestDB(t)

	id, err := AddContactMessage(db, ContactMessage{Date: time.Now(), Name: "V", Email: "v@example.org", Message: "Hi"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	messages, err := ListContactMessages(db)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Hi", messages[0].Message)
	assert.Equal(t, id, messages[0].ID)
}

func TestContactMessageLimit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < MaxContactMessages; i++ {
		_, err := AddContactMessage(db, ContactMessage{Date: time.Now(), Name: "V", Email: "v@example.org", Message: "spam"})
		require.NoError(t, err)
	}
	_, err := AddContactMessage(db, ContactMessage{Date: time.Now(), Name: "V", Email: "v@example.org", Message: "one too many"})
	assert.ErrorIs(t, err, ErrContactLimit)
}

func TestGormSharesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	db, err := InitDB(path)
	require.NoError(t, err)
	defer db.Close()

	gormDB, err := InitGormDB(path)
	require.NoError(t, err)
	require.NoError(t, AutoMigrateModels(gormDB))
	require.NoError(t, gormDB.Create(&models.User{Name: "A", Email: "a@example.org", PasswordHash: "x"}).Error)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.Close()
}
