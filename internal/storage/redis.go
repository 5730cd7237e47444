package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"moontale/internal/config"
	"moontale/internal/interfaces"
	"moontale/internal/models"
)

const (
	storyStateKey   = "story:%s:state"
	storyEntriesKey = "story:%s:entries"
	storyMetaKey    = "story:%s:meta"
	storiesIndexKey = "stories:index"
	activeStoryKey  = "story:active"

	storyLeaseKey = "lock:story:%s"
	wipeLeaseKey  = "lock:danger:clear"

	storyLeaseTTL = 30 * time.Second
	wipeLeaseTTL  = 30 * time.Second
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// --- story state ---

func (s *RedisStore) LoadState(ctx context.Context, storyID string) (*models.StoryState, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(storyStateKey, storyID)).Result()
	if err == redis.Nil {
		return nil, interfaces.ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load story state: %w", err)
	}

	var state models.StoryState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to decode story state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) SaveState(ctx context.Context, storyID string, state *models.StoryState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal story state: %w", err)
	}
	if err := s.client.Set(ctx, fmt.Sprintf(storyStateKey, storyID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save story state: %w", err)
	}
	return nil
}

// --- entries ---

// Entries live in an append-only list, one JSON entry per day. Day n sits at
// index n-1; rewrites overwrite in place, so the invariant holds.
func (s *RedisStore) LoadEntries(ctx context.Context, storyID string) ([]models.StoryEntry, error) {
	results, err := s.client.LRange(ctx, fmt.Sprintf(storyEntriesKey, storyID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load story entries: %w", err)
	}

	entries := make([]models.StoryEntry, 0, len(results))
	for _, result := range results {
		var entry models.StoryEntry
		if err := json.Unmarshal([]byte(result), &entry); err != nil {
			continue // Skip invalid entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) SaveEntry(ctx context.Context, storyID string, entry *models.StoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal story entry: %w", err)
	}
	if err := s.client.RPush(ctx, fmt.Sprintf(storyEntriesKey, storyID), data).Err(); err != nil {
		return fmt.Errorf("failed to append story entry: %w", err)
	}
	return nil
}

func (s *RedisStore) UpdateEntry(ctx context.Context, storyID string, day int, update func(*models.StoryEntry)) error {
	key := fmt.Sprintf(storyEntriesKey, storyID)
	results, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to load story entries: %w", err)
	}

	for i, result := range results {
		var entry models.StoryEntry
		if err := json.Unmarshal([]byte(result), &entry); err != nil {
			continue
		}
		if entry.Day != day {
			continue
		}

		update(&entry)
		entry.Day = day // The day index is immutable under rewrite.

		data, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("failed to marshal story entry: %w", err)
		}
		if err := s.client.LSet(ctx, key, int64(i), data).Err(); err != nil {
			return fmt.Errorf("failed to update story entry: %w", err)
		}
		return nil
	}
	return interfaces.ErrEntryNotFound
}

func (s *RedisStore) GetEntryByDay(ctx context.Context, storyID string, day int) (*models.StoryEntry, error) {
	entries, err := s.LoadEntries(ctx, storyID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Day == day {
			return &entries[i], nil
		}
	}
	return nil, interfaces.ErrEntryNotFound
}

// --- multi-story bookkeeping ---

func (s *RedisStore) CreateStory(ctx context.Context, meta *models.StoryMeta, initialSummary string) error {
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal story meta: %w", err)
	}
	stateData, err := json.Marshal(&models.StoryState{
		Day:     0,
		Summary: initialSummary,
		WorldID: meta.WorldID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal story state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(storyMetaKey, meta.ID), metaData, 0)
	pipe.Set(ctx, fmt.Sprintf(storyStateKey, meta.ID), stateData, 0)
	pipe.ZAdd(ctx, storiesIndexKey, &redis.Z{Score: float64(meta.CreatedAt.UnixMilli()), Member: meta.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

func (s *RedisStore) ListStories(ctx context.Context) ([]models.StoryMeta, error) {
	ids, err := s.client.ZRevRange(ctx, storiesIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	metas := make([]models.StoryMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := s.GetStoryMeta(ctx, id)
		if err != nil {
			continue // Index entry without a meta record; skip
		}
		metas = append(metas, *meta)
	}
	return metas, nil
}

func (s *RedisStore) GetStoryMeta(ctx context.Context, storyID string) (*models.StoryMeta, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(storyMetaKey, storyID)).Result()
	if err == redis.Nil {
		return nil, interfaces.ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load story meta: %w", err)
	}
	var meta models.StoryMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode story meta: %w", err)
	}
	return &meta, nil
}

func (s *RedisStore) SetActiveStory(ctx context.Context, storyID string) error {
	if _, err := s.GetStoryMeta(ctx, storyID); err != nil {
		return err
	}
	if err := s.client.Set(ctx, activeStoryKey, storyID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set active story: %w", err)
	}
	return nil
}

func (s *RedisStore) ActiveStory(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, activeStoryKey).Result()
	if err == redis.Nil {
		return "", interfaces.ErrStoryNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active story: %w", err)
	}
	return id, nil
}

// --- leases ---

// AcquireStoryLease takes the per-story write lease. The TTL bounds how long
// a crashed generation can block the story.
func (s *RedisStore) AcquireStoryLease(ctx context.Context, storyID string) error {
	return s.acquireLease(ctx, fmt.Sprintf(storyLeaseKey, storyID), storyLeaseTTL)
}

func (s *RedisStore) ReleaseStoryLease(ctx context.Context, storyID string) {
	s.client.Del(ctx, fmt.Sprintf(storyLeaseKey, storyID))
}

// AcquireWipeLease guards the destructive clear-all operation.
func (s *RedisStore) AcquireWipeLease(ctx context.Context) error {
	return s.acquireLease(ctx, wipeLeaseKey, wipeLeaseTTL)
}

func (s *RedisStore) ReleaseWipeLease(ctx context.Context) {
	s.client.Del(ctx, wipeLeaseKey)
}

func (s *RedisStore) acquireLease(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return interfaces.ErrLeaseHeld
	}
	return nil
}

// --- bulk wipe ---

// ClearAll removes every story, bookkeeping and generator-log key. Locks are
// left alone so the wipe lease itself survives until released.
func (s *RedisStore) ClearAll(ctx context.Context) (int64, error) {
	var removed int64
	for _, pattern := range []string{"story:*", "stories:*", "llm:*"} {
		n, err := s.unlinkPattern(ctx, pattern)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (s *RedisStore) unlinkPattern(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := s.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to unlink keys: %w", err)
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
