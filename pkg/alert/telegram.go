package alert

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram posts notifications to a chat through a bot.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot and binds it to chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, chatID)
}

// NewTelegramWithEndpoint is NewTelegram against a custom Bot API server.
// endpoint is a format string taking the token and the method name.
func NewTelegramWithEndpoint(token, endpoint string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatTelegram(n))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// FormatTelegram renders n as Telegram HTML.
func FormatTelegram(n *Notification) string {
	var b strings.Builder
	b.WriteString("📈 <b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>\n")
	if n.Body != "" {
		b.WriteString("<i>")
		b.WriteString(html.EscapeString(n.Body))
		b.WriteString("</i>\n")
	}
	b.WriteString("\n")
	for _, p := range topPosts(n) {
		fmt.Fprintf(&b, "#%d <code>%s</code>\n%s\n♥ %d  ↩ %d\n\n",
			p.ID, shortAddress(p.Author), html.EscapeString(snippet(p.Content, 200)), p.Likes, p.Replies)
	}
	if n.URL != "" {
		fmt.Fprintf(&b, "<a href=\"%s\">Open feed</a>", html.EscapeString(n.URL))
	}
	return strings.TrimRight(b.String(), "\n")
}
