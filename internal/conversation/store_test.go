package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, opts)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func appendN(t *testing.T, store *Store, userID, platform string, n int) []*Message {
	t.Helper()

	var out []*Message
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		m, err := store.Append(context.Background(), userID, platform, role, fmt.Sprintf("message %d", i), TypeConversation, testNow.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		out = append(out, m)
	}
	return out
}

func TestStoreAppendAndRecent(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()

	user, err := store.Append(ctx, "u1", "discord", RoleUser, "hello", "", testNow)
	if err != nil {
		t.Fatalf("failed to add message: %v", err)
	}
	if user.ID == 0 {
		t.Error("expected generated id")
	}
	if user.MessageType != TypeConversation {
		t.Errorf("expected default type conversation, got %s", user.MessageType)
	}

	if _, err := store.Append(ctx, "u1", "discord", RoleAssistant, "hi there", TypeConversation, testNow.Add(time.Second)); err != nil {
		t.Fatalf("failed to add message: %v", err)
	}

	messages, err := store.Recent(ctx, "u1", "discord", 10)
	if err != nil {
		t.Fatalf("failed to get recent: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "hello" || messages[1].Content != "hi there" {
		t.Errorf("unexpected order: %q, %q", messages[0].Content, messages[1].Content)
	}
	if !messages[0].CreatedAt.Equal(testNow) {
		t.Errorf("expected created_at %v, got %v", testNow, messages[0].CreatedAt)
	}
}

func TestRecentIsolatesConversations(t *testing.T) {
	store := newTestStore(t, Options{})

	appendN(t, store, "u1", "discord", 3)
	appendN(t, store, "u1", "telegram", 2)
	appendN(t, store, "u2", "discord", 1)

	messages, err := store.Recent(context.Background(), "u1", "telegram", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(messages))
	}
}

func TestRecentLimitAndCache(t *testing.T) {
	store := newTestStore(t, Options{CacheSize: 5})
	ctx := context.Background()

	appendN(t, store, "u1", "discord", 8)

	messages, err := store.Recent(ctx, "u1", "discord", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(messages) != 3 || messages[2].Content != "message 7" || messages[0].Content != "message 5" {
		t.Fatalf("unexpected window %+v", messages)
	}

	key := Key{"u1", "discord"}
	if got := store.cache.count(key); got != 5 {
		t.Errorf("expected working set capped at 5, got %d", got)
	}

	appendN(t, store, "u1", "discord", 1)
	if got := store.cache.count(key); got != 5 {
		t.Errorf("expected working set to stay at 5, got %d", got)
	}

	// beyond the working set falls through to the store
	all, err := store.Recent(ctx, "u1", "discord", 20)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 9 {
		t.Errorf("expected 9 messages, got %d", len(all))
	}
}

func TestLast(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()

	last, err := store.Last(ctx, "u1", "discord")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil for empty conversation, got %+v", last)
	}

	store.Append(ctx, "u1", "discord", RoleUser, "hey", TypeConversation, testNow)
	store.Append(ctx, "u1", "discord", RoleAssistant, "checking in", TypeScheduled, testNow.Add(time.Minute))

	last, err = store.Last(ctx, "u1", "discord")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last.Role != RoleAssistant || last.MessageType != TypeScheduled {
		t.Errorf("unexpected last message %+v", last)
	}
}

func TestAfterAndCountAfter(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()

	msgs := appendN(t, store, "u1", "discord", 10)

	after, err := store.After(ctx, "u1", "discord", msgs[3].ID, 4)
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(after) != 4 || after[0].ID != msgs[4].ID || after[3].ID != msgs[7].ID {
		t.Errorf("unexpected range %+v", after)
	}

	n, err := store.CountAfter(ctx, "u1", "discord", msgs[3].ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6, got %d", n)
	}
}

func TestCleanupRetention(t *testing.T) {
	store := newTestStore(t, Options{Retention: 5})
	ctx := context.Background()

	msgs := appendN(t, store, "u1", "discord", 8)
	appendN(t, store, "u2", "discord", 3)

	deleted, err := store.CleanupAll(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	remaining, _ := store.Recent(ctx, "u1", "discord", 100)
	if len(remaining) != 5 {
		t.Fatalf("expected 5 remaining, got %d", len(remaining))
	}
	if remaining[0].ID != msgs[3].ID {
		t.Errorf("expected oldest messages removed first, first remaining id %d", remaining[0].ID)
	}

	other, _ := store.Recent(ctx, "u2", "discord", 100)
	if len(other) != 3 {
		t.Errorf("other user should be untouched, got %d", len(other))
	}
}

func TestCompressedTolerantOfMissingParent(t *testing.T) {
	store := newTestStore(t, Options{Retention: 1})
	ctx := context.Background()

	msgs := appendN(t, store, "u1", "discord", 2)
	_, err := store.SaveCompressed(ctx, Compressed{
		MessageID:      msgs[0].ID,
		UserID:         "u1",
		Platform:       "discord",
		Role:           RoleUser,
		OriginalLength: 200,
		Content:        "short",
		Model:          "test-model",
	}, testNow)
	if err != nil {
		t.Fatalf("save compressed: %v", err)
	}

	if _, err := store.Cleanup(ctx, "u1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	found, err := store.CompressedFor(ctx, []int64{msgs[0].ID, msgs[1].ID})
	if err != nil {
		t.Fatalf("compressed for: %v", err)
	}
	c, ok := found[msgs[0].ID]
	if !ok {
		t.Fatal("orphaned compressed row should still load")
	}
	if c.CompressedLength != 5 || c.Ratio != 5.0/200.0 {
		t.Errorf("unexpected lengths %+v", c)
	}
	if _, ok := found[msgs[1].ID]; ok {
		t.Error("no compressed row expected for second message")
	}
}

func TestCompressionStats(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()

	msgs := appendN(t, store, "u1", "discord", 2)
	store.SaveCompressed(ctx, Compressed{MessageID: msgs[0].ID, UserID: "u1", Platform: "discord", Role: RoleUser, OriginalLength: 100, Content: string(make([]byte, 50)), Model: "m"}, testNow)
	store.SaveCompressed(ctx, Compressed{MessageID: msgs[1].ID, UserID: "u1", Platform: "discord", Role: RoleAssistant, OriginalLength: 200, Content: string(make([]byte, 50)), Model: "m"}, testNow)

	stats, err := store.CompressionStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 2 || stats.CharsSaved != 200 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.AverageRatio != 0.375 {
		t.Errorf("expected average ratio 0.375, got %v", stats.AverageRatio)
	}

	empty, err := store.CompressionStats(ctx, "nobody")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if empty.Count != 0 || empty.AverageRatio != 0 {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}

func TestSaveSummaryRejectsOverlap(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()

	first, err := store.SaveSummary(ctx, Summary{UserID: "u1", Platform: "discord", FirstMessageID: 1, LastMessageID: 20, Text: "one", KeyTopics: []string{"topic:work"}, MessageCount: 20, Model: "m"}, testNow)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err = store.SaveSummary(ctx, Summary{UserID: "u1", Platform: "discord", FirstMessageID: 20, LastMessageID: 40, Text: "two", MessageCount: 21, Model: "m"}, testNow)
	if !errors.Is(err, ErrSummaryOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	// other platforms have their own ranges
	if _, err := store.SaveSummary(ctx, Summary{UserID: "u1", Platform: "telegram", FirstMessageID: 5, LastMessageID: 10, Text: "tg", MessageCount: 6, Model: "m"}, testNow); err != nil {
		t.Fatalf("save telegram: %v", err)
	}

	if _, err := store.SaveSummary(ctx, Summary{UserID: "u1", Platform: "discord", FirstMessageID: 21, LastMessageID: 40, Text: "two", MessageCount: 20, Model: "m"}, testNow); err != nil {
		t.Fatalf("save second: %v", err)
	}

	last, err := store.LastSummary(ctx, "u1", "discord")
	if err != nil {
		t.Fatalf("last summary: %v", err)
	}
	if last.LastMessageID != 40 {
		t.Errorf("expected last summary to end at 40, got %d", last.LastMessageID)
	}

	recent, err := store.RecentSummaries(ctx, "u1", "discord", 3)
	if err != nil {
		t.Fatalf("recent summaries: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != first.ID {
		t.Errorf("expected oldest first, got %+v", recent)
	}
	if len(recent[0].KeyTopics) != 1 || recent[0].KeyTopics[0] != "topic:work" {
		t.Errorf("unexpected topics %v", recent[0].KeyTopics)
	}
}
