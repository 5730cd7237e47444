package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moontale/internal/config"
	"moontale/internal/models"
)

// MySQLStore is the durable chapter archive. It is optional at startup: the
// engine runs on Redis alone when MySQL is unreachable.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.ChapterRecord{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// ArchiveEntry upserts the archive row for (storyID, day). Rewrites replace
// the row rather than adding revisions; Redis keeps only the latest revision
// too. Best effort: callers log failures and move on.
func (s *MySQLStore) ArchiveEntry(storyID string, entry *models.StoryEntry) error {
	anchors, err := json.Marshal(entry.Anchors)
	if err != nil {
		return fmt.Errorf("failed to marshal anchors: %w", err)
	}
	suggestions, err := json.Marshal(entry.Suggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}

	record := models.ChapterRecord{
		StoryID:         storyID,
		Day:             entry.Day,
		Revision:        entry.Revision,
		UserEvent:       entry.UserEvent,
		Title:           entry.Title,
		Chapter:         entry.Chapter,
		AnchorsJSON:     string(anchors),
		SuggestionsJSON: string(suggestions),
	}

	var existing models.ChapterRecord
	err = s.db.Where("story_id = ? AND day = ?", storyID, entry.Day).First(&existing).Error
	switch {
	case err == nil:
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		return s.db.Save(&record).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(&record).Error
	default:
		return err
	}
}

// ListEntries returns the archived chapters for a story in day order.
func (s *MySQLStore) ListEntries(storyID string) ([]models.ChapterRecord, error) {
	var records []models.ChapterRecord
	err := s.db.Where("story_id = ?", storyID).Order("day ASC").Find(&records).Error
	return records, err
}

// Archive wraps a nil-able MySQLStore so callers never branch on presence.
type Archive struct {
	store *MySQLStore
}

func NewArchive(store *MySQLStore) *Archive {
	return &Archive{store: store}
}

func (a *Archive) Save(storyID string, entry *models.StoryEntry) {
	if a == nil || a.store == nil {
		return
	}
	if err := a.store.ArchiveEntry(storyID, entry); err != nil {
		log.Printf("[archive] failed to archive story %s day %d: %v", storyID, entry.Day, err)
	}
}
