package llmlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	indexKey  = "llm:logs:index"
	recordKey = "llm:log:%s"
)

var ErrRecordNotFound = errors.New("llmlog: record not found")

// Sink persists generator round trips. Implementations must tolerate being
// called on every request; failures are logged by callers, never propagated.
type Sink interface {
	Store(ctx context.Context, rec Record)
	List(ctx context.Context, q Query) ([]Record, string, error)
	Get(ctx context.Context, id string) (*Record, error)
}

// Query selects a page of records, newest first. Cursor is the opaque value
// returned by the previous page; empty means start from the newest.
type Query struct {
	Cursor string
	Limit  int
	Op     string
	Status Status
}

// RedisSink keeps records in per-record keys indexed by a timestamp ZSET.
// Both expire after the retention window so the log browser never grows
// unbounded.
type RedisSink struct {
	client    *redis.Client
	retention time.Duration
	bodyLimit int
}

func NewRedisSink(client *redis.Client, retention time.Duration, bodyLimit int) *RedisSink {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if bodyLimit <= 0 {
		bodyLimit = 8000
	}
	return &RedisSink{client: client, retention: retention, bodyLimit: bodyLimit}
}

func (s *RedisSink) Store(ctx context.Context, rec Record) {
	rec.Prompt = Truncate(Redact(rec.Prompt), s.bodyLimit)
	rec.Response = Truncate(Redact(rec.Response), s.bodyLimit)
	rec.Error = Redact(rec.Error)

	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[llmlog] marshal record %s: %v", rec.ID, err)
		return
	}

	key := fmt.Sprintf(recordKey, rec.ID)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, s.retention)
	pipe.ZAdd(ctx, indexKey, &redis.Z{Score: float64(rec.Timestamp.UnixMilli()), Member: rec.ID})
	// Drop index entries older than the retention window; their record keys
	// have already expired.
	cutoff := time.Now().Add(-s.retention).UnixMilli()
	pipe.ZRemRangeByScore(ctx, indexKey, "-inf", strconv.FormatInt(cutoff, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[llmlog] store record %s: %v", rec.ID, err)
	}
}

func (s *RedisSink) List(ctx context.Context, q Query) ([]Record, string, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	// Cursor is the rank of the first unread entry, newest first. Ranks keep
	// same-millisecond neighbours distinct, which score bounds cannot.
	offset := int64(0)
	if q.Cursor != "" {
		n, err := strconv.ParseInt(q.Cursor, 10, 64)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("invalid log cursor %q", q.Cursor)
		}
		offset = n
	}

	records := make([]Record, 0, q.Limit)
	batch := int64(q.Limit)
	for {
		ids, err := s.client.ZRevRange(ctx, indexKey, offset, offset+batch-1).Result()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read log index: %w", err)
		}
		if len(ids) == 0 {
			return records, "", nil
		}
		for _, id := range ids {
			offset++
			rec, err := s.Get(ctx, id)
			if err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					continue
				}
				return nil, "", err
			}
			if q.Op != "" && rec.Op != q.Op {
				continue
			}
			if q.Status != "" && rec.Status != q.Status {
				continue
			}
			records = append(records, *rec)
			if len(records) == q.Limit {
				total, err := s.client.ZCard(ctx, indexKey).Result()
				if err == nil && offset < total {
					return records, strconv.FormatInt(offset, 10), nil
				}
				return records, "", nil
			}
		}
	}
}

func (s *RedisSink) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(recordKey, id)).Result()
	if err == redis.Nil {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode log record: %w", err)
	}
	return &rec, nil
}

// NopSink discards everything. Used in tests and when logging is disabled.
type NopSink struct{}

func (NopSink) Store(context.Context, Record) {}

func (NopSink) List(context.Context, Query) ([]Record, string, error) { return nil, "", nil }

func (NopSink) Get(context.Context, string) (*Record, error) { return nil, ErrRecordNotFound }
