package models

import "time"

// AnchorKey identifies one of the three per-chapter anchors.
type AnchorKey string

const (
	AnchorA AnchorKey = "A" // concrete place or object
	AnchorB AnchorKey = "B" // unresolved clue or foreshadowing
	AnchorC AnchorKey = "C" // character state or constraint
)

// Anchors are the three short facts extracted from each chapter. They ground
// the next-day suggestions.
type Anchors struct {
	A string `json:"A" validate:"required,min=1"`
	B string `json:"B" validate:"required,min=1"`
	C string `json:"C" validate:"required,min=1"`
}

// Suggestion is a one-sentence candidate event for tomorrow. UsesAnchors must
// be a non-empty subset of {A,B,C}.
type Suggestion struct {
	Text        string      `json:"text" validate:"required,min=1"`
	UsesAnchors []AnchorKey `json:"usesAnchors" validate:"required,min=1,dive,oneof=A B C"`
}

// ChapterBundle is the full structured output of one generation call. The
// JSON field names are the wire contract requested from the generator.
type ChapterBundle struct {
	EventKeywords []string     `json:"event_keywords" validate:"required,min=2,max=4,dive,min=1"`
	Title         string       `json:"title" validate:"required,min=1"`
	Chapter       string       `json:"chapter" validate:"required,min=1"`
	NextSummary   string       `json:"next_story_state_summary" validate:"required,min=1"`
	Anchors       Anchors      `json:"anchors"`
	Suggestions   []Suggestion `json:"tomorrow_suggestions" validate:"required,len=5"`
}

// StoryState is the small persistent state of one story: the day counter and
// the authoritative 2-3 sentence summary that replaces full history.
type StoryState struct {
	Day     int    `json:"day"`
	Summary string `json:"summary"`
	WorldID string `json:"world_id"`
}

// StoryEntry is one day's persisted chapter. Revision starts at 1 and only
// increments when that same day is rewritten.
type StoryEntry struct {
	Day           int          `json:"day"`
	UserEvent     string       `json:"user_event"`
	Chapter       string       `json:"chapter"`
	Title         string       `json:"title"`
	Anchors       Anchors      `json:"anchors"`
	Suggestions   []Suggestion `json:"suggestions"`
	EventKeywords []string     `json:"event_keywords"`
	Revision      int          `json:"revision"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// StoryMeta is the bookkeeping record for one story.
type StoryMeta struct {
	ID        string    `json:"id"`
	WorldID   string    `json:"world_id"`
	CreatedAt time.Time `json:"created_at"`
}
