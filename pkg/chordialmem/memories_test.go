package chordialmem

import (
	"context"
	"errors"
	"testing"
	"time"
)

func weight(w float64) *float64 { return &w }

func ttl(seconds int64) *int64 { return &seconds }

func mustCreate(t *testing.T, store *Store, nm NewMemory, now time.Time) *Memory {
	t.Helper()

	m, err := store.CreateMemory(context.Background(), nm, now)
	if err != nil {
		t.Fatalf("create memory: %v", err)
	}
	return m
}

func TestCreateMemoryRequiresUser(t *testing.T) {
	store := openTestStore(t)

	_, err := store.CreateMemory(context.Background(), NewMemory{UserID: "nobody", Instruction: "x"}, testNow)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateCoreMemoryForcesWeight(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	m := mustCreate(t, store, NewMemory{
		UserID:      user.ID,
		Instruction: "their dog is called biscuit",
		Type:        TypeFact,
		Source:      SourceUserExplicit,
		Weighting:   weight(3),
		Core:        true,
	}, testNow)

	if m.Weighting != CoreWeight {
		t.Errorf("expected %v, got %v", CoreWeight, m.Weighting)
	}

	got, err := store.GetMemory(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if got.Weighting != CoreWeight || !got.Core || !got.Active {
		t.Errorf("unexpected stored memory %+v", got)
	}
}

func TestGetActiveForEmptyUser(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	memories, err := store.GetActive(context.Background(), user.ID, "", false, testNow)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(memories) != 0 {
		t.Errorf("expected no memories, got %d", len(memories))
	}
}

func TestGetActiveFiltersType(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "likes tea", Type: TypePreference}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "lives in leeds", Type: TypeFact}, testNow)

	facts, err := store.GetActive(context.Background(), user.ID, TypeFact, false, testNow)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(facts) != 1 || facts[0].Instruction != "lives in leeds" {
		t.Errorf("unexpected facts %+v", facts)
	}
}

func TestExpiredMemoryNeverReturns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	m := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "has an exam today", Type: TypeEpisodic, TTLSeconds: ttl(3600)}, testNow)

	before, _ := store.GetActive(ctx, user.ID, "", false, testNow.Add(59*time.Minute))
	if len(before) != 1 {
		t.Fatalf("expected memory before ttl, got %d", len(before))
	}

	// exactly at ttl counts as expired
	at, _ := store.GetActive(ctx, user.ID, "", false, testNow.Add(time.Hour))
	if len(at) != 0 {
		t.Fatalf("expected memory expired at ttl, got %d", len(at))
	}

	for i := 0; i < 3; i++ {
		again, _ := store.GetActive(ctx, user.ID, "", false, testNow.Add(2*time.Hour))
		if len(again) != 0 {
			t.Fatalf("expired memory returned on call %d", i)
		}
	}

	got, err := store.GetMemory(ctx, m.ID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if got.Active {
		t.Error("expected expiry to deactivate the memory")
	}
}

func TestIncludeExpiredDoesNotDeactivate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	m := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "short lived", TTLSeconds: ttl(60)}, testNow)

	all, _ := store.GetActive(ctx, user.ID, "", true, testNow.Add(time.Hour))
	if len(all) != 1 {
		t.Fatalf("expected expired memory with includeExpired, got %d", len(all))
	}

	got, _ := store.GetMemory(ctx, m.ID)
	if !got.Active {
		t.Error("includeExpired read must not deactivate")
	}
}

func TestSearchByKeyword(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "training for a marathon", Keywords: []string{"Running", "fitness"}}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "learning spanish", Keywords: []string{"language"}}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "no keywords"}, testNow)

	found, err := store.SearchByKeyword(context.Background(), user.ID, []string{"RUNNING", "cooking"}, testNow)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].Instruction != "training for a marathon" {
		t.Errorf("unexpected results %+v", found)
	}
}

func TestSelectForPromptKeepsAllCore(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	for _, text := range []string{"core one", "core two", "core three"} {
		mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: text, Core: true}, testNow)
	}
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "regular"}, testNow)

	selected, err := store.SelectForPrompt(context.Background(), user.ID, 2, testNow)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	store.Wait()

	if len(selected) != 3 {
		t.Fatalf("expected all 3 core memories, got %d", len(selected))
	}
	for _, m := range selected {
		if !m.Core {
			t.Errorf("regular memory %q should not fit", m.Instruction)
		}
	}
}

func TestSelectForPromptOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "core", Core: true}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "low", Weighting: weight(0.5)}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "old high", Weighting: weight(2)}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "new high", Weighting: weight(2)}, testNow.Add(time.Minute))

	selected, err := store.SelectForPrompt(ctx, user.ID, 3, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	store.Wait()

	want := []string{"core", "new high", "old high"}
	if len(selected) != len(want) {
		t.Fatalf("expected %d memories, got %d", len(want), len(selected))
	}
	for i, w := range want {
		if selected[i].Instruction != w {
			t.Errorf("position %d: expected %q, got %q", i, w, selected[i].Instruction)
		}
	}
}

func TestSelectForPromptTracksAccess(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	m := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "likes rain"}, testNow)
	skipped := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "unused", Weighting: weight(0.1)}, testNow)

	accessAt := testNow.Add(time.Hour)
	if _, err := store.SelectForPrompt(ctx, user.ID, 1, accessAt); err != nil {
		t.Fatalf("select: %v", err)
	}
	store.Wait()

	got, _ := store.GetMemory(ctx, m.ID)
	if got.AccessCount != 1 {
		t.Errorf("expected access count 1, got %d", got.AccessCount)
	}
	if got.LastAccessedAt == nil || !got.LastAccessedAt.Equal(accessAt) {
		t.Errorf("expected last accessed %v, got %v", accessAt, got.LastAccessedAt)
	}

	notSelected, _ := store.GetMemory(ctx, skipped.ID)
	if notSelected.AccessCount != 0 {
		t.Errorf("unselected memory should not be touched, got %d", notSelected.AccessCount)
	}
}

func TestUpdateWeightIgnoresCore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	core := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "core", Core: true}, testNow)
	regular := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "regular"}, testNow)

	if err := store.UpdateWeight(ctx, core.ID, 1); err != nil {
		t.Fatalf("update core: %v", err)
	}
	if err := store.UpdateWeight(ctx, regular.ID, 5); err != nil {
		t.Fatalf("update regular: %v", err)
	}

	gotCore, _ := store.GetMemory(ctx, core.ID)
	if gotCore.Weighting != CoreWeight {
		t.Errorf("core weight changed to %v", gotCore.Weighting)
	}
	gotRegular, _ := store.GetMemory(ctx, regular.ID)
	if gotRegular.Weighting != 5 {
		t.Errorf("expected weight 5, got %v", gotRegular.Weighting)
	}
}

func TestDeactivateIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	m := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "temporary"}, testNow)

	if err := store.Deactivate(ctx, m.ID); err != nil {
		t.Fatalf("first deactivate: %v", err)
	}
	if err := store.Deactivate(ctx, m.ID); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}

	active, _ := store.GetActive(ctx, user.ID, "", false, testNow)
	if len(active) != 0 {
		t.Errorf("expected no active memories, got %d", len(active))
	}

	if err := store.Deactivate(ctx, 9999); !errors.Is(err, ErrMemoryNotFound) {
		t.Errorf("expected ErrMemoryNotFound, got %v", err)
	}
}

func TestMemoryStats(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "a", Type: TypeFact, Core: true}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "b", Type: TypeFact, Source: SourceAIInferred}, testNow)
	mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "c", Type: TypeEpisodic}, testNow)

	stats, err := store.MemoryStats(context.Background(), user.ID, testNow)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.Total != 3 || stats.Core != 1 {
		t.Errorf("unexpected totals %+v", stats)
	}
	if stats.ByType[TypeFact] != 2 || stats.ByType[TypeEpisodic] != 1 {
		t.Errorf("unexpected type counts %v", stats.ByType)
	}
	if stats.BySource[SourceUserExplicit] != 2 || stats.BySource[SourceAIInferred] != 1 {
		t.Errorf("unexpected source counts %v", stats.BySource)
	}
}

type fixedEmbedder struct {
	calls int
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return make([]float32, VectorDimensions), nil
}

func TestCreateMemoryStoresEmbedding(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	emb := &fixedEmbedder{}
	store.SetEmbedder(emb)

	m := mustCreate(t, store, NewMemory{UserID: user.ID, Instruction: "enjoys hiking"}, testNow)

	if emb.calls != 1 {
		t.Errorf("expected one embed call, got %d", emb.calls)
	}
	if !store.HasEmbedding(context.Background(), m.ID) {
		t.Error("expected stored embedding")
	}
}
