package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Embed colours by event severity.
const (
	colorInfo  = 0x2ecc71
	colorWarn  = 0xf1c40f
	colorAlert = 0xe74c3c
)

// DiscordSender delivers alerts to a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

// Send posts msg. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{Title: msg.Title, Description: msg.Body, Color: eventColor(msg.Event)}
	embed.Footer.Text = msg.Event
	payload := map[string]any{"embeds": []discordEmbed{embed}}
	if err := postJSON(ctx, d.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }

func eventColor(event string) int {
	switch event {
	case domain.EventConnectionLost, domain.EventOrderRejected, domain.EventSubscribeFailed:
		return colorAlert
	case domain.EventOrderCancelled:
		return colorWarn
	}
	return colorInfo
}
