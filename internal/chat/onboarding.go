package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

const maxNameLength = 50

const welcomeMessage = `hey there! welcome to chordial! 🎵

i'm your new ai companion, here to help with productivity, reminders, and just being a friendly presence.

first things first, what would you like me to call you? just type your preferred name!`

const askNameAgain = "i didn't quite catch that. what would you like me to call you?"

const askCoreMemory = `nice to meet you, %s! 💕

i'll remember that and use it when we chat.

one more thing: is there anything you'd like me to always remember about you? (or just say skip)`

const onboardingDone = `%s

i'm here to help you stay productive and check in on you throughout the day. feel free to message me anytime, whether you need help with something or just want to chat!

ready to get started? just say hi or ask me anything! ✨`

var skipWords = map[string]bool{"skip": true, "no": true, "nothing": true, "none": true}

func (o *Orchestrator) startOnboarding(ctx context.Context, user *chordialmem.User) (string, error) {
	if err := o.users.SetOnboardingState(ctx, user.ID, chordialmem.OnboardingAwaitingName); err != nil {
		return "", fmt.Errorf("start onboarding: %w", err)
	}
	return welcomeMessage, nil
}

// onboard routes a message from a user who has not finished onboarding
func (o *Orchestrator) onboard(ctx context.Context, user *chordialmem.User, content string, now time.Time) (string, error) {
	if user.OnboardingState == chordialmem.OnboardingAwaitingCoreMemory && user.Onboarded() {
		return o.onboardCoreMemory(ctx, user, content, now)
	}
	return o.onboardName(ctx, user, content)
}

func (o *Orchestrator) onboardName(ctx context.Context, user *chordialmem.User, content string) (string, error) {
	name := CleanName(content)
	if name == "" {
		if err := o.users.SetOnboardingState(ctx, user.ID, chordialmem.OnboardingAwaitingName); err != nil {
			return "", err
		}
		return askNameAgain, nil
	}

	if err := o.users.SetPreferredName(ctx, user.ID, name); err != nil {
		return "", fmt.Errorf("set name: %w", err)
	}
	if err := o.users.SetOnboardingState(ctx, user.ID, chordialmem.OnboardingAwaitingCoreMemory); err != nil {
		return "", err
	}

	logger.Info("user named", "user", user.ID)
	return fmt.Sprintf(askCoreMemory, name), nil
}

func (o *Orchestrator) onboardCoreMemory(ctx context.Context, user *chordialmem.User, content string, now time.Time) (string, error) {
	answer := strings.TrimSpace(content)

	opening := "no problem!"
	if answer != "" && !skipWords[strings.ToLower(strings.Trim(answer, ".! "))] {
		_, err := o.users.CreateMemory(ctx, chordialmem.NewMemory{
			UserID:      user.ID,
			Instruction: answer,
			Type:        chordialmem.TypePreference,
			Source:      chordialmem.SourceUserExplicit,
			Core:        true,
		}, now)
		if err != nil {
			return "", fmt.Errorf("store core memory: %w", err)
		}
		opening = "got it, i'll always remember that."
	}

	if err := o.users.SetOnboardingState(ctx, user.ID, chordialmem.OnboardingNone); err != nil {
		return "", err
	}

	logger.Info("user onboarded", "user", user.ID)
	return fmt.Sprintf(onboardingDone, opening), nil
}

// CleanName keeps the first line of a name reply, trimmed to 50 characters
func CleanName(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = strings.TrimSpace(line)

	if r := []rune(line); len(r) > maxNameLength {
		line = strings.TrimSpace(string(r[:maxNameLength]))
	}
	return line
}
