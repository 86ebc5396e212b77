package chordialmem

import (
	"context"
	"errors"
	"testing"
)

func TestGetOrCreateUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user, created, err := store.GetOrCreateUser(ctx, "discord", "42", "sam", testNow)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created {
		t.Error("expected created on first contact")
	}
	if user.Timezone != "UTC" || user.Personality != "friendly" || !user.Active {
		t.Errorf("unexpected defaults: %+v", user)
	}
	if user.Onboarded() {
		t.Error("new user should not be onboarded")
	}

	again, created, err := store.GetOrCreateUser(ctx, "discord", "42", "sam", testNow)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if created {
		t.Error("expected existing user on second contact")
	}
	if again.ID != user.ID {
		t.Errorf("expected %s, got %s", user.ID, again.ID)
	}

	other, _, err := store.GetOrCreateUser(ctx, "telegram", "42", "sam", testNow)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if other.ID == user.ID {
		t.Error("same native id on another platform must be a different user")
	}
}

func TestGetUserNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetUser(context.Background(), "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	_, err = store.FindUser(context.Background(), "discord", "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserUpdates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, store)

	if err := store.SetPreferredName(ctx, user.ID, "kay"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	if err := store.SetTimezone(ctx, user.ID, "Europe/London"); err != nil {
		t.Fatalf("set timezone: %v", err)
	}
	if err := store.SetTimezone(ctx, user.ID, "Not/AZone"); err == nil {
		t.Error("expected error for unknown timezone")
	}
	if err := store.SetOnboardingState(ctx, user.ID, OnboardingAwaitingCoreMemory); err != nil {
		t.Fatalf("set state: %v", err)
	}

	start := 22
	prefs := SchedulePreferences{IntervalMinutes: 90, QuietStart: &start}
	if err := store.SetSchedulePreferences(ctx, user.ID, prefs); err != nil {
		t.Fatalf("set prefs: %v", err)
	}

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	if got.PreferredName != "kay" || !got.Onboarded() {
		t.Errorf("expected name kay, got %q", got.PreferredName)
	}
	if got.Location().String() != "Europe/London" {
		t.Errorf("expected Europe/London, got %s", got.Location())
	}
	if got.OnboardingState != OnboardingAwaitingCoreMemory {
		t.Errorf("expected awaiting_core_memory, got %s", got.OnboardingState)
	}
	if got.Schedule.IntervalMinutes != 90 || got.Schedule.QuietStart == nil || *got.Schedule.QuietStart != 22 {
		t.Errorf("unexpected schedule prefs: %+v", got.Schedule)
	}

	if err := store.SetPreferredName(ctx, "missing", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListSchedulable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	named, _, _ := store.GetOrCreateUser(ctx, "discord", "1", "a", testNow)
	store.SetPreferredName(ctx, named.ID, "alpha")

	// not onboarded
	store.GetOrCreateUser(ctx, "discord", "2", "b", testNow)

	optedOut, _, _ := store.GetOrCreateUser(ctx, "discord", "3", "c", testNow)
	store.SetPreferredName(ctx, optedOut.ID, "gamma")
	store.SetSchedulePreferences(ctx, optedOut.ID, SchedulePreferences{Disabled: true})

	inactive, _, _ := store.GetOrCreateUser(ctx, "discord", "4", "d", testNow)
	store.SetPreferredName(ctx, inactive.ID, "delta")
	store.DeactivateUser(ctx, inactive.ID)

	elsewhere, _, _ := store.GetOrCreateUser(ctx, "telegram", "5", "e", testNow)
	store.SetPreferredName(ctx, elsewhere.ID, "epsilon")

	targets, err := store.ListSchedulable(ctx, "discord")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}
	if targets[0].User.ID != named.ID || targets[0].PlatformUserID != "1" {
		t.Errorf("unexpected target %+v", targets[0])
	}
}

func TestIdentities(t *testing.T) {
	store := openTestStore(t)
	user := createTestUser(t, store)

	ids, err := store.Identities(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("identities: %v", err)
	}
	if len(ids) != 1 || ids[0].Platform != "discord" || ids[0].PlatformUserID != "12345" {
		t.Errorf("unexpected identities %+v", ids)
	}
}

func TestCountUsers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _, _ := store.GetOrCreateUser(ctx, "discord", "1", "a", testNow)
	store.GetOrCreateUser(ctx, "discord", "2", "b", testNow)

	if err := store.DeactivateUser(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	n, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountUsers = %d, want 1", n)
	}
}
