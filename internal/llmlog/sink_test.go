package llmlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
)

func storedJSON(t *testing.T, rec Record) string {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return string(data)
}

func TestListPagesByRankAcrossEqualTimestamps(t *testing.T) {
	db, mock := redismock.NewClientMock()
	sink := NewRedisSink(db, 0, 0)

	// r2 and r3 landed in the same millisecond, so a score-bounded cursor
	// could not tell them apart.
	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	recs := map[string]Record{
		"r1": {ID: "r1", Timestamp: at.Add(time.Second), Op: "chapter_bundle", Status: StatusOK},
		"r2": {ID: "r2", Timestamp: at, Op: "chapter_bundle", Status: StatusOK},
		"r3": {ID: "r3", Timestamp: at, Op: "chapter_bundle", Status: StatusOK},
	}

	mock.ExpectZRevRange(indexKey, 0, 1).SetVal([]string{"r1", "r2"})
	mock.ExpectGet("llm:log:r1").SetVal(storedJSON(t, recs["r1"]))
	mock.ExpectGet("llm:log:r2").SetVal(storedJSON(t, recs["r2"]))
	mock.ExpectZCard(indexKey).SetVal(3)

	page1, cursor, err := sink.List(context.Background(), Query{Limit: 2})
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != "r1" || page1[1].ID != "r2" {
		t.Fatalf("page 1 = %+v", page1)
	}
	if cursor == "" {
		t.Fatal("expected a cursor, an older record remains")
	}

	mock.ExpectZRevRange(indexKey, 2, 3).SetVal([]string{"r3"})
	mock.ExpectGet("llm:log:r3").SetVal(storedJSON(t, recs["r3"]))
	mock.ExpectZRevRange(indexKey, 3, 4).SetVal([]string{})

	page2, cursor, err := sink.List(context.Background(), Query{Limit: 2, Cursor: cursor})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "r3" {
		t.Fatalf("record sharing the boundary timestamp was skipped: %+v", page2)
	}
	if cursor != "" {
		t.Errorf("cursor after last page = %q, want empty", cursor)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListKeepsFetchingPastFilteredWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	sink := NewRedisSink(db, 0, 0)

	bundle := Record{ID: "r1", Op: "chapter_bundle", Status: StatusOK}
	summary := Record{ID: "r2", Op: "rewrite_summary", Status: StatusOK}

	// The newest window holds no match; List must keep walking the index
	// instead of returning an empty page with no cursor.
	mock.ExpectZRevRange(indexKey, 0, 0).SetVal([]string{"r1"})
	mock.ExpectGet("llm:log:r1").SetVal(storedJSON(t, bundle))
	mock.ExpectZRevRange(indexKey, 1, 1).SetVal([]string{"r2"})
	mock.ExpectGet("llm:log:r2").SetVal(storedJSON(t, summary))
	mock.ExpectZCard(indexKey).SetVal(2)

	page, cursor, err := sink.List(context.Background(), Query{Limit: 1, Op: "rewrite_summary"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 1 || page[0].ID != "r2" {
		t.Fatalf("filtered match beyond first window not found: %+v", page)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty once the index is exhausted", cursor)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListSkipsExpiredRecords(t *testing.T) {
	db, mock := redismock.NewClientMock()
	sink := NewRedisSink(db, 0, 0)

	kept := Record{ID: "r2", Op: "chapter_bundle", Status: StatusOK}

	mock.ExpectZRevRange(indexKey, 0, 1).SetVal([]string{"r1", "r2"})
	mock.ExpectGet("llm:log:r1").RedisNil()
	mock.ExpectGet("llm:log:r2").SetVal(storedJSON(t, kept))
	mock.ExpectZRevRange(indexKey, 2, 3).SetVal([]string{})

	page, cursor, err := sink.List(context.Background(), Query{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 1 || page[0].ID != "r2" {
		t.Fatalf("page = %+v", page)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty", cursor)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListRejectsMalformedCursor(t *testing.T) {
	db, _ := redismock.NewClientMock()
	sink := NewRedisSink(db, 0, 0)

	if _, _, err := sink.List(context.Background(), Query{Limit: 2, Cursor: "not-a-rank"}); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}
