package bot

import (
	"context"
)

// Handler turns one inbound message into a reply. An empty reply sends nothing.
type Handler interface {
	ProcessIncoming(ctx context.Context, platform, platformUserID, username, content string) string
}

// Bot is one transport. Deliver is what the scheduler and alerts use for
// outbound messages; replies to inbound messages go through the handler.
type Bot interface {
	Start(ctx context.Context) error
	Platform() string
	Deliver(ctx context.Context, platformUserID, text string) error
	SendTyping(platformUserID string) error
}

type Config struct {
	Provider string
	Token    string
}
