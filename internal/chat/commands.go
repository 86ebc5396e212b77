package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

type commandFunc func(o *Orchestrator, ctx context.Context, user *chordialmem.User, arg string, now time.Time) (string, error)

var commands = map[string]commandFunc{
	"remember":    (*Orchestrator).cmdRemember,
	"memories":    (*Orchestrator).cmdMemories,
	"forget":      (*Orchestrator).cmdForget,
	"name":        (*Orchestrator).cmdName,
	"timezone":    (*Orchestrator).cmdTimezone,
	"checkins":    (*Orchestrator).cmdCheckins,
	"personality": (*Orchestrator).cmdPersonality,
}

// ParseCommand splits "/cmd@bot arg..." into a lowercase name and its argument
func ParseCommand(content string) (name, arg string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "/") {
		return "", "", false
	}

	head, rest, _ := strings.Cut(content[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}

	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// command runs a chat command. handled is false for anything that is not a
// known command, which then goes to generation like any other message.
func (o *Orchestrator) command(ctx context.Context, user *chordialmem.User, content string, now time.Time) (reply string, handled bool, err error) {
	name, arg, ok := ParseCommand(content)
	if !ok {
		return "", false, nil
	}

	fn, ok := commands[name]
	if !ok {
		return "", false, nil
	}

	logger.Debug("command", "user", user.ID, "command", name)
	reply, err = fn(o, ctx, user, arg, now)
	return reply, true, err
}

func (o *Orchestrator) cmdRemember(ctx context.Context, user *chordialmem.User, arg string, now time.Time) (string, error) {
	if arg == "" {
		return "tell me what to remember, like: /remember i'm vegetarian", nil
	}

	m, err := o.users.CreateMemory(ctx, chordialmem.NewMemory{
		UserID:      user.ID,
		Instruction: arg,
		Type:        chordialmem.TypePreference,
		Source:      chordialmem.SourceUserExplicit,
	}, now)
	if err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}

	return fmt.Sprintf("got it! i'll remember that (#%d)", m.ID), nil
}

func (o *Orchestrator) cmdMemories(ctx context.Context, user *chordialmem.User, _ string, now time.Time) (string, error) {
	memories, err := o.users.GetActive(ctx, user.ID, "", false, now)
	if err != nil {
		return "", fmt.Errorf("list memories: %w", err)
	}

	if len(memories) == 0 {
		return "i don't have anything saved about you yet. use /remember to tell me something!", nil
	}

	var sb strings.Builder
	sb.WriteString("here's what i remember about you:\n")
	for _, m := range memories {
		if m.Core {
			fmt.Fprintf(&sb, "\n#%d (always) %s", m.ID, m.Instruction)
		} else {
			fmt.Fprintf(&sb, "\n#%d %s", m.ID, m.Instruction)
		}
	}
	sb.WriteString("\n\nuse /forget <number> to remove one.")

	return sb.String(), nil
}

func (o *Orchestrator) cmdForget(ctx context.Context, user *chordialmem.User, arg string, _ time.Time) (string, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return "which one? use /memories to see the numbers, then /forget <number>", nil
	}

	m, err := o.users.GetMemory(ctx, id)
	if errors.Is(err, chordialmem.ErrMemoryNotFound) || (err == nil && (m.UserID != user.ID || !m.Active)) {
		return fmt.Sprintf("i couldn't find memory #%d", id), nil
	}
	if err != nil {
		return "", fmt.Errorf("forget: %w", err)
	}

	if err := o.users.Deactivate(ctx, id); err != nil {
		return "", fmt.Errorf("forget: %w", err)
	}

	return fmt.Sprintf("okay, i've forgotten #%d", id), nil
}

func (o *Orchestrator) cmdName(ctx context.Context, user *chordialmem.User, arg string, _ time.Time) (string, error) {
	name := CleanName(arg)
	if name == "" {
		return fmt.Sprintf("i call you %s right now. use /name <new name> to change it", user.PreferredName), nil
	}

	if err := o.users.SetPreferredName(ctx, user.ID, name); err != nil {
		return "", fmt.Errorf("set name: %w", err)
	}

	return fmt.Sprintf("okay, i'll call you %s from now on!", name), nil
}

func (o *Orchestrator) cmdTimezone(ctx context.Context, user *chordialmem.User, arg string, _ time.Time) (string, error) {
	if arg == "" {
		return fmt.Sprintf("your timezone is %s. use /timezone <zone>, like /timezone Europe/London", user.Timezone), nil
	}

	if _, err := time.LoadLocation(arg); err != nil {
		return fmt.Sprintf("i don't recognise %q as a timezone. try something like America/New_York", arg), nil
	}

	if err := o.users.SetTimezone(ctx, user.ID, arg); err != nil {
		return "", fmt.Errorf("set timezone: %w", err)
	}

	return fmt.Sprintf("timezone set to %s", arg), nil
}

func (o *Orchestrator) cmdCheckins(ctx context.Context, user *chordialmem.User, arg string, _ time.Time) (string, error) {
	prefs := user.Schedule

	switch strings.ToLower(arg) {
	case "on":
		prefs.Disabled = false
	case "off":
		prefs.Disabled = true
	default:
		state := "on"
		if prefs.Disabled {
			state = "off"
		}
		return fmt.Sprintf("check-ins are %s. use /checkins on or /checkins off", state), nil
	}

	if err := o.users.SetSchedulePreferences(ctx, user.ID, prefs); err != nil {
		return "", fmt.Errorf("set checkins: %w", err)
	}

	if prefs.Disabled {
		return "okay, i won't check in on my own. i'm still here whenever you message me!", nil
	}
	return "yay, check-ins are back on!", nil
}

func (o *Orchestrator) cmdPersonality(ctx context.Context, user *chordialmem.User, arg string, _ time.Time) (string, error) {
	personalities := o.assembler.Personalities()
	tag := strings.ToLower(arg)

	if tag == "" {
		var sb strings.Builder
		sb.WriteString("personalities:")
		for _, name := range personalities.Names() {
			if name == user.Personality {
				fmt.Fprintf(&sb, "\n- %s (current)", name)
			} else {
				fmt.Fprintf(&sb, "\n- %s", name)
			}
		}
		sb.WriteString("\n\nuse /personality <name> to switch")
		return sb.String(), nil
	}

	if _, ok := personalities[tag]; !ok {
		return fmt.Sprintf("i don't have a %q personality. use /personality to see the options", tag), nil
	}

	if err := o.users.SetPersonality(ctx, user.ID, tag); err != nil {
		return "", fmt.Errorf("set personality: %w", err)
	}

	return fmt.Sprintf("switched to %s!", tag), nil
}
