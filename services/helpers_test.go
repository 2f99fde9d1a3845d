package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.AppConfig{DBDriver: "sqlite", DatabaseURI: filepath.Join(t.TempDir(), "diary.db"), LogLevel: "silent"}
	db, err := config.OpenDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db, models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestDiary(t *testing.T, cfg config.AppConfig, now time.Time) *DiaryService {
	t.Helper()
	s := NewDiaryService(newTestDB(t), cfg)
	s.Now = func() time.Time { return now }
	return s
}

func date(s string) time.Time {
	d, err := time.Parse(config.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func addEntry(t *testing.T, s *DiaryService, when string) *models.Entry {
	t.Helper()
	e, err := s.SaveEntry(EntryInput{When: date(when)}, nil)
	require.NoError(t, err)
	return e
}

func assertDate(t *testing.T, want string, got time.Time) {
	t.Helper()
	assert.Equal(t, want, got.UTC().Format(config.DateLayout))
}
