// Package prompt turns personality, memories, history and temporal context
// into the message sequence sent to the generation provider.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bowerhall/chordial/internal/history"
	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/temporal"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

// Prompt types
const (
	TypeConversation = "conversation"
	TypeScheduled    = "scheduled"
)

const DefaultMaxMemories = 10

const scheduledInstructions = `

for this scheduled message:
- be naturally aware of the time without always mentioning it directly
- reference previous conversations if relevant
- ask open-ended questions that invite sharing
- be encouraging but not pushy
- use lowercase only
- keep it brief but warm`

// MemorySource supplies the memories injected into a prompt
type MemorySource interface {
	SelectForPrompt(ctx context.Context, userID string, maxCount int, now time.Time) ([]chordialmem.PromptMemory, error)
}

// Assembler builds prompts. memories and log may be nil.
type Assembler struct {
	memories      MemorySource
	personalities Personalities
	maxMemories   int
	log           *Log
}

func NewAssembler(memories MemorySource, personalities Personalities, maxMemories int, log *Log) *Assembler {
	if personalities == nil {
		personalities = DefaultPersonalities()
	}
	if maxMemories <= 0 {
		maxMemories = DefaultMaxMemories
	}
	return &Assembler{memories: memories, personalities: personalities, maxMemories: maxMemories, log: log}
}

func (a *Assembler) Log() *Log {
	return a.log
}

func (a *Assembler) Personalities() Personalities {
	return a.personalities
}

// Request describes one prompt to assemble
type Request struct {
	Type        string
	UserID      string
	UserName    string
	Personality string
	History     []history.Entry
	// Summaries is the rendered summary-tier block, may be empty
	Summaries string
	// Current is the inbound message; ignored for scheduled prompts
	Current  string
	Now      time.Time
	Location *time.Location
}

// Build assembles the ordered messages for req
func (a *Assembler) Build(ctx context.Context, req Request) []llm.Message {
	if req.Type == "" {
		req.Type = TypeConversation
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	now := req.Now.In(loc)

	system := a.systemPrompt(ctx, req, now)
	if req.Type == TypeScheduled {
		system += scheduledInstructions
	}

	messages := []llm.Message{{Role: "system", Content: system}}
	messages = append(messages, renderHistory(req.History, req.UserName, now)...)

	if req.Type == TypeConversation && req.Current != "" {
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: fmt.Sprintf("%s (now): %s", displayName(req.UserName), req.Current),
		})
	}

	a.log.Write(req.UserName, req.Type, messages, req.Now)
	logger.Debug("built prompt", "type", req.Type, "messages", len(messages))

	return messages
}

func (a *Assembler) systemPrompt(ctx context.Context, req Request, now time.Time) string {
	parts := []string{a.personalities.Preamble(req.Personality)}

	if req.UserID != "" && a.memories != nil {
		memories, err := a.memories.SelectForPrompt(ctx, req.UserID, a.maxMemories, req.Now)
		if err != nil {
			// prompts go out without memories rather than not at all
			logger.Error("failed to fetch memories for prompt", "user", req.UserID, "error", err)
		} else if len(memories) > 0 {
			parts = append(parts, MemoryBlock(memories))
		}
	}

	if req.Summaries != "" {
		parts = append(parts, "\n"+req.Summaries)
	}

	if req.UserName != "" {
		if req.Type == TypeScheduled {
			parts = append(parts, "\nyou are writing a message to someone who goes by "+req.UserName)
			parts = append(parts, "this is a scheduled message, so generate a natural, contextual check-in message.")
		} else {
			parts = append(parts, "\nyou are replying to a message from "+req.UserName)
		}
	}

	if special := temporal.Special(now); special != "" {
		parts = append(parts, "\n"+special)
	}

	parts = append(parts, "\nignore the tone in the messages labeled SUMMARY, these are summarized messages just for context.")
	parts = append(parts, "generate a very lively and caring message")

	return strings.Join(parts, "\n")
}

// MemoryBlock renders memories inside the delimited block the personality
// is told to respect.
func MemoryBlock(memories []chordialmem.PromptMemory) string {
	lines := []string{"\n--- important things to remember about this user ---"}
	for _, m := range memories {
		if m.Core {
			lines = append(lines, "[ALWAYS REMEMBER] "+m.Instruction)
		} else {
			lines = append(lines, fmt.Sprintf("[%s] %s", m.Type, m.Instruction))
		}
	}
	lines = append(lines, "--- end of memories ---\n")
	return strings.Join(lines, "\n")
}

// renderHistory labels each entry with how long ago it was written. The
// temporal entry passes through as is.
func renderHistory(entries []history.Entry, userName string, now time.Time) []llm.Message {
	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		if e.Kind == history.KindTemporal || e.Role == "system" {
			out = append(out, llm.Message{Role: "system", Content: e.Content})
			continue
		}

		content := e.Content
		if e.Kind == history.KindCompressed {
			content = "SUMMARY: " + content
		}

		ago := temporal.Relative(e.CreatedAt.In(now.Location()), now)
		if e.Role == "user" {
			content = fmt.Sprintf("%s (%s): %s", displayName(userName), ago, content)
		} else {
			content = fmt.Sprintf("(%s) %s", ago, content)
		}

		out = append(out, llm.Message{Role: e.Role, Content: content})
	}
	return out
}

func displayName(name string) string {
	if name == "" {
		return "user"
	}
	return name
}
