package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/bowerhall/chordial/internal/logger"
)

type discord struct {
	session *discordgo.Session
	handler Handler
	ctx     context.Context
}

func newDiscord(token string, handler Handler) (Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentDirectMessages | discordgo.IntentMessageContent

	d := &discord{
		session: session,
		handler: handler,
		ctx:     context.Background(),
	}

	session.AddHandler(d.handleMessage)

	return d, nil
}

func (d *discord) Platform() string {
	return PlatformDiscord
}

func (d *discord) Start(ctx context.Context) error {
	d.ctx = ctx

	if err := d.session.Open(); err != nil {
		return err
	}
	logger.Info("discord connected")

	<-ctx.Done()
	return d.session.Close()
}

// Deliver sends a direct message, opening the DM channel if needed
func (d *discord) Deliver(ctx context.Context, platformUserID, text string) error {
	channel, err := d.session.UserChannelCreate(platformUserID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}

	chunks := SplitMessage(text, MaxMessageLength)
	if err := d.send(ctx, channel.ID, chunks); err != nil {
		logger.Error("discord send failed", "error", err, "user", platformUserID)
		return err
	}

	logger.Info("discord message sent", "user", platformUserID, "chars", len(text), "chunks", len(chunks))
	return nil
}

func (d *discord) SendTyping(platformUserID string) error {
	channel, err := d.session.UserChannelCreate(platformUserID)
	if err != nil {
		return err
	}
	return d.session.ChannelTyping(channel.ID)
}

func (d *discord) send(ctx context.Context, channelID string, chunks []string) error {
	for _, chunk := range chunks {
		if _, err := d.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// handleMessage answers direct messages only
func (d *discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID != "" {
		return
	}

	logger.Info("message received", "platform", PlatformDiscord, "from", m.Author.Username, "text", truncate(m.Content, 50))

	if err := s.ChannelTyping(m.ChannelID); err != nil {
		logger.Debug("typing indicator failed", "error", err)
	}

	response := d.handler.ProcessIncoming(d.ctx, PlatformDiscord, m.Author.ID, m.Author.Username, m.Content)
	if response == "" {
		return
	}

	if err := d.send(d.ctx, m.ChannelID, SplitMessage(response, MaxMessageLength)); err != nil {
		logger.Error("discord reply failed", "error", err)
	} else {
		logger.Info("reply sent", "chars", len(response))
	}
}
