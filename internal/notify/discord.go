package notify

import (
	"context"
	"fmt"
	"net/http"
)

// discordMaxContent is the webhook message length limit in characters.
const discordMaxContent = 2000

// DiscordSender posts to a channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient}
}

// Send renders the title in bold and truncates to the webhook limit.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := []rune("**" + title + "**\n" + message)
	if len(content) > discordMaxContent {
		content = content[:discordMaxContent]
	}
	err := postJSON(ctx, d.client, d.webhookURL, map[string]string{
		"username": "x-bot",
		"content":  string(content),
	})
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
