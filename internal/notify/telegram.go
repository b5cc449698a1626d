package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSender delivers alerts through the Telegram Bot API.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender. An empty apiBase uses
// DefaultTelegramAPI.
func NewTelegramSender(apiBase, token, chatID string) *TelegramSender {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	return &TelegramSender{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		chatID:  chatID,
		client:  newHTTPClient(),
	}
}

// Send posts msg with sendMessage. The title is bold.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body),
		"parse_mode": "Markdown",
	}
	if err := postJSON(ctx, t.client, url, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
