package interfaces

import (
	"context"
	"errors"

	"moontale/internal/models"
)

// ErrEntryNotFound is returned by entry lookups and updates when no entry
// exists for the requested day.
var ErrEntryNotFound = errors.New("story entry not found")

// ErrStoryNotFound is returned when a story id has no bookkeeping record.
var ErrStoryNotFound = errors.New("story not found")

// ErrLeaseHeld is returned when a TTL lease is already held by another
// operation.
var ErrLeaseHeld = errors.New("lease already held")

// StoryStore persists per-story state, day-indexed entries and multi-story
// bookkeeping. All failures are persistence errors and are propagated to the
// caller as-is.
type StoryStore interface {
	LoadState(ctx context.Context, storyID string) (*models.StoryState, error)
	SaveState(ctx context.Context, storyID string, state *models.StoryState) error

	LoadEntries(ctx context.Context, storyID string) ([]models.StoryEntry, error)
	SaveEntry(ctx context.Context, storyID string, entry *models.StoryEntry) error
	// UpdateEntry overwrites fields of the entry at day in place. Returns
	// ErrEntryNotFound if the day has no entry.
	UpdateEntry(ctx context.Context, storyID string, day int, update func(*models.StoryEntry)) error
	GetEntryByDay(ctx context.Context, storyID string, day int) (*models.StoryEntry, error)

	CreateStory(ctx context.Context, meta *models.StoryMeta, initialSummary string) error
	ListStories(ctx context.Context) ([]models.StoryMeta, error)
	GetStoryMeta(ctx context.Context, storyID string) (*models.StoryMeta, error)
	SetActiveStory(ctx context.Context, storyID string) error
	ActiveStory(ctx context.Context) (string, error)
}
