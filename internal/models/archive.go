package models

import "time"

// ChapterRecord is the durable MySQL copy of a story entry. Redis holds the
// hot state; the archive survives a cache wipe.
type ChapterRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StoryID         string    `gorm:"index:idx_story_day;size:64" json:"story_id"`
	Day             int       `gorm:"index:idx_story_day" json:"day"`
	Revision        int       `json:"revision"`
	UserEvent       string    `gorm:"type:text" json:"user_event"`
	Title           string    `gorm:"size:255" json:"title"`
	Chapter         string    `gorm:"type:text" json:"chapter"`
	Summary         string    `gorm:"type:text" json:"summary"`
	AnchorsJSON     string    `gorm:"type:text" json:"-"`
	SuggestionsJSON string    `gorm:"type:text" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ChapterRecord) TableName() string {
	return "chapter_records"
}
