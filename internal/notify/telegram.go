package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/mymmrac/telego"

	"guild-warden/internal/logger"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramSink relays entries to a Telegram chat so staff see them off-platform
type TelegramSink struct {
	bot    messageSender
	chatID int64
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Post(ctx context.Context, e Entry) {
	_, err := s.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: s.chatID},
		Text:      renderHTML(e),
		ParseMode: "HTML",
	})
	if err != nil {
		logger.Warningf("Mod-log: telegram relay failed: %v", err)
	}
}

func renderHTML(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n<i>guild %d</i>", html.EscapeString(e.Title), e.GuildID)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(f.Name), html.EscapeString(f.Value))
	}
	return b.String()
}
