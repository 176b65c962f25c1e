package stores

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nestpost/nestpost/models"
)

// newTestDB opens a fresh in-memory sqlite database named after the test so
// parallel tests never share state.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Post{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustUser(t *testing.T, db *gorm.DB, username string) uint {
	t.Helper()
	id, err := NewUserStore(db).Register(username, "secret")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return id
}

// mustPost inserts a post with an explicit creation time so ordering tests
// are deterministic.
func mustPost(t *testing.T, db *gorm.DB, title string, authorID uint, parentID *uint, created time.Time) uint {
	t.Helper()
	post := models.Post{
		Title:    title,
		Body:     "body of " + title,
		Created:  created,
		AuthorID: authorID,
		ParentID: parentID,
	}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("insert %s: %v", title, err)
	}
	return post.ID
}

func day(n int) time.Time {
	return time.Date(2021, time.March, n, 12, 0, 0, 0, time.UTC)
}
