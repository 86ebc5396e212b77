package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bowerhall/chordial/internal/logger"
)

type telegram struct {
	api     *tgbotapi.BotAPI
	handler Handler
}

func newTelegram(token string, handler Handler) (Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	return &telegram{api: api, handler: handler}, nil
}

func (t *telegram) Platform() string {
	return PlatformTelegram
}

func (t *telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	logger.Info("telegram connected", "bot", t.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}

			go t.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage answers private chats only; the sender id doubles as the chat id
func (t *telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot || !msg.Chat.IsPrivate() {
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	logger.Info("message received", "platform", PlatformTelegram, "from", msg.From.UserName, "text", truncate(text, 50))

	if _, err := t.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		logger.Debug("typing indicator failed", "error", err)
	}

	response := t.handler.ProcessIncoming(ctx, PlatformTelegram, userID, msg.From.UserName, text)
	if response == "" {
		return
	}

	for i, chunk := range SplitMessage(response, MaxMessageLength) {
		reply := tgbotapi.NewMessage(msg.Chat.ID, chunk)
		if i == 0 {
			reply.ReplyToMessageID = msg.MessageID
		}
		if _, err := t.api.Send(reply); err != nil {
			logger.Error("send failed", "error", err)
			return
		}
	}
	logger.Info("reply sent", "chars", len(response))
}

func (t *telegram) Deliver(ctx context.Context, platformUserID, text string) error {
	chatID, err := parseChatID(platformUserID)
	if err != nil {
		return err
	}

	chunks := SplitMessage(text, MaxMessageLength)
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := t.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			logger.Error("proactive send failed", "error", err, "chatID", chatID)
			return err
		}
	}

	logger.Info("proactive message sent", "chatID", chatID, "chars", len(text), "chunks", len(chunks))
	return nil
}

func (t *telegram) SendTyping(platformUserID string) error {
	chatID, err := parseChatID(platformUserID)
	if err != nil {
		return err
	}
	_, err = t.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func parseChatID(platformUserID string) (int64, error) {
	id, err := strconv.ParseInt(platformUserID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", platformUserID, err)
	}
	return id, nil
}
