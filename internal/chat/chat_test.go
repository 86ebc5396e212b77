package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/internal/history"
	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/prompt"
	"github.com/bowerhall/chordial/internal/scheduler"
	"github.com/bowerhall/chordial/internal/session"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

var testNow = time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)

type fakeLLM struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.reply}, nil
}

func (f *fakeLLM) Available() bool  { return true }
func (f *fakeLLM) Provider() string { return "fake" }
func (f *fakeLLM) Model() string    { return "fake-large" }

func (f *fakeLLM) lastCall(t *testing.T) []llm.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	orch  *Orchestrator
	users *chordialmem.Store
	conv  *conversation.Store
	llm   *fakeLLM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users, err := chordialmem.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { users.Close() })

	conv, err := conversation.NewStore(users.DB(), conversation.Options{})
	require.NoError(t, err)

	fake := &fakeLLM{reply: "hey sam! how's your day going?"}
	engine := history.NewEngine(conv, nil, nil)
	assembler := prompt.NewAssembler(users, nil, 0, nil)

	orch := New(fake, users, engine, assembler, session.NewStore(), Config{Policy: scheduler.DefaultPolicy()})
	orch.now = func() time.Time { return testNow }

	return &fixture{orch: orch, users: users, conv: conv, llm: fake}
}

// onboarded creates a user who has finished onboarding
func (f *fixture) onboarded(t *testing.T, platform, platformUserID, name string) *chordialmem.User {
	t.Helper()
	ctx := context.Background()

	user, _, err := f.users.GetOrCreateUser(ctx, platform, platformUserID, "handle", testNow)
	require.NoError(t, err)
	require.NoError(t, f.users.SetPreferredName(ctx, user.ID, name))
	require.NoError(t, f.users.SetOnboardingState(ctx, user.ID, chordialmem.OnboardingNone))

	user, err = f.users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	return user
}

func TestNewUserGetsWelcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.orch.ProcessIncoming(ctx, "discord", "42", "sam#1", "hi")
	assert.Equal(t, welcomeMessage, reply)
	assert.Zero(t, f.llm.callCount())

	user, err := f.users.FindUser(ctx, "discord", "42")
	require.NoError(t, err)
	assert.Equal(t, chordialmem.OnboardingAwaitingName, user.OnboardingState)

	n, err := f.conv.CountMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "onboarding must not touch history")
}

func TestOnboardingFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.ProcessIncoming(ctx, "telegram", "7", "sam", "hello")

	reply := f.orch.ProcessIncoming(ctx, "telegram", "7", "sam", "  Sam  \nand some more text")
	assert.Contains(t, reply, "nice to meet you, Sam!")

	user, err := f.users.FindUser(ctx, "telegram", "7")
	require.NoError(t, err)
	assert.Equal(t, "Sam", user.PreferredName)
	assert.Equal(t, chordialmem.OnboardingAwaitingCoreMemory, user.OnboardingState)

	reply = f.orch.ProcessIncoming(ctx, "telegram", "7", "sam", "i'm allergic to peanuts")
	assert.Contains(t, reply, "i'll always remember that")

	user, err = f.users.FindUser(ctx, "telegram", "7")
	require.NoError(t, err)
	assert.Equal(t, chordialmem.OnboardingNone, user.OnboardingState)

	core, err := f.users.GetCore(ctx, user.ID, testNow)
	require.NoError(t, err)
	require.Len(t, core, 1)
	assert.Equal(t, "i'm allergic to peanuts", core[0].Instruction)
	assert.Equal(t, chordialmem.TypePreference, core[0].Type)
	assert.Equal(t, chordialmem.SourceUserExplicit, core[0].Source)

	assert.Zero(t, f.llm.callCount())
}

func TestOnboardingSkipCoreMemory(t *testing.T) {
	for _, answer := range []string{"skip", "No", "nothing.", "none"} {
		t.Run(answer, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			f.orch.ProcessIncoming(ctx, "telegram", "7", "sam", "hello")
			f.orch.ProcessIncoming(ctx, "telegram", "7", "sam", "Sam")
			reply := f.orch.ProcessIncoming(ctx, "telegram", "7", "sam", answer)
			assert.True(t, strings.HasPrefix(reply, "no problem!"))

			user, err := f.users.FindUser(ctx, "telegram", "7")
			require.NoError(t, err)
			assert.Equal(t, chordialmem.OnboardingNone, user.OnboardingState)

			core, err := f.users.GetCore(ctx, user.ID, testNow)
			require.NoError(t, err)
			assert.Empty(t, core)
		})
	}
}

func TestOnboardingAsksAgainForBlankName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.ProcessIncoming(ctx, "discord", "1", "x", "hi")
	reply := f.orch.ProcessIncoming(ctx, "discord", "1", "x", "   ")
	assert.Equal(t, askNameAgain, reply)

	user, err := f.users.FindUser(ctx, "discord", "1")
	require.NoError(t, err)
	assert.False(t, user.Onboarded())
}

func TestConversationTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.onboarded(t, "discord", "42", "Sam")

	reply := f.orch.ProcessIncoming(ctx, "discord", "42", "sam#1", "hi")
	assert.Equal(t, "hey sam! how's your day going?", reply)

	messages, err := f.conv.Recent(ctx, user.ID, "discord", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, conversation.RoleUser, messages[0].Role)
	assert.Equal(t, "hi", messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)
	assert.Equal(t, conversation.TypeConversation, messages[1].MessageType)

	entries, err := f.orch.History().Hybrid(ctx, user.ID, "discord", history.HybridOptions{Limit: 15, FullCount: 5}, testNow)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, history.KindRaw, e.Kind)
	}

	// history was read before the append, so the prompt carries the
	// inbound message once, as the trailing turn
	sent := f.llm.lastCall(t)
	require.Len(t, sent, 3)
	assert.Equal(t, "system", sent[0].Role)
	assert.Equal(t, "system", sent[1].Role)
	assert.Equal(t, llm.Message{Role: "user", Content: "Sam (now): hi"}, sent[2])

	sess := f.orch.Sessions().Get(session.Key("discord", user.ID))
	sc, loaded := sess.Scheduled()
	assert.True(t, loaded)
	assert.False(t, sc.LastWasScheduled)
	assert.Equal(t, testNow.Add(time.Hour), sc.NextScheduledTime)
}

func TestConversationIncludesCoreMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.onboarded(t, "discord", "42", "Sam")

	_, err := f.users.CreateMemory(ctx, chordialmem.NewMemory{UserID: user.ID, Instruction: "loves hiking", Core: true}, testNow)
	require.NoError(t, err)

	f.orch.ProcessIncoming(ctx, "discord", "42", "sam", "hi")
	f.users.Wait()

	sent := f.llm.lastCall(t)
	assert.Contains(t, sent[0].Content, "[ALWAYS REMEMBER] loves hiking")
}

func TestGenerationFailureReturnsFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboarded(t, "discord", "42", "Sam")

	f.llm.err = errors.New("provider down")
	assert.Equal(t, FallbackReply, f.orch.ProcessIncoming(ctx, "discord", "42", "sam", "hi"))

	f.llm.err = llm.ErrBudgetExceeded
	assert.Equal(t, FallbackReply, f.orch.ProcessIncoming(ctx, "discord", "42", "sam", "hi again"))
}

func TestEmptyGenerationIsAnError(t *testing.T) {
	f := newFixture(t)
	f.onboarded(t, "discord", "42", "Sam")

	f.llm.reply = ""
	assert.Equal(t, FallbackReply, f.orch.ProcessIncoming(context.Background(), "discord", "42", "sam", "hi"))
}

func TestGenerateScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.onboarded(t, "discord", "42", "Sam")

	_, err := f.conv.Append(ctx, user.ID, "discord", conversation.RoleUser, "off to work", conversation.TypeConversation, testNow.Add(-3*time.Hour))
	require.NoError(t, err)

	f.llm.reply = "hope work is going okay!"
	text, err := f.orch.GenerateScheduled(ctx, "discord", "42")
	require.NoError(t, err)
	assert.Equal(t, "hope work is going okay!", text)

	last, err := f.conv.Last(ctx, user.ID, "discord")
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleAssistant, last.Role)
	assert.Equal(t, conversation.TypeScheduled, last.MessageType)

	sent := f.llm.lastCall(t)
	assert.Contains(t, sent[0].Content, "this is a scheduled message")
	for _, m := range sent {
		assert.NotContains(t, m.Content, "(now):")
	}

	// the persisted tag puts the conversation into backoff
	decision := scheduler.DefaultPolicy().Decide(last, testNow.Add(23*time.Hour))
	assert.False(t, decision.Send)
}

func TestGenerateScheduledSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text, err := f.orch.GenerateScheduled(ctx, "discord", "unknown")
	require.NoError(t, err)
	assert.Empty(t, text)

	f.orch.ProcessIncoming(ctx, "discord", "5", "new", "hi")
	text, err = f.orch.GenerateScheduled(ctx, "discord", "5")
	require.NoError(t, err)
	assert.Empty(t, text, "users in onboarding get no check-ins")

	user := f.onboarded(t, "discord", "6", "Busy")
	sess := f.orch.Sessions().Get(session.Key("discord", user.ID))
	sess.Lock()
	text, err = f.orch.GenerateScheduled(ctx, "discord", "6")
	sess.Release()
	require.NoError(t, err)
	assert.Empty(t, text, "busy sessions are skipped")

	assert.Zero(t, f.llm.callCount())
}

func TestGenerateScheduledFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.onboarded(t, "discord", "42", "Sam")

	f.llm.err = errors.New("timeout")
	_, err := f.orch.GenerateScheduled(ctx, "discord", "42")
	require.Error(t, err)

	last, err := f.conv.Last(ctx, user.ID, "discord")
	require.NoError(t, err)
	assert.Nil(t, last, "nothing is persisted when generation fails")
}
