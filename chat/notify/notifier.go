package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/6t3media/chatbot-backend/chat/contract"
	slackx "github.com/6t3media/chatbot-backend/pkg/slack"
)

// Webhook announces captured leads on a team channel. Best-effort by
// contract: failures are logged by the caller and never retried.
type Webhook struct {
	client *slackx.Client
}

var _ contractx.Notifier = (*Webhook)(nil)

// NewWebhook accepts a nil client; notification then degrades to a
// logged no-op.
func NewWebhook(client *slackx.Client) *Webhook {
	return &Webhook{client: client}
}

func (w *Webhook) Notify(ctx context.Context, lead contractx.Lead) error {
	if w.client == nil {
		log.Info().Str("email", lead.Email).Msg("lead notification skipped: webhook not configured")
		return nil
	}

	text := fmt.Sprintf(
		":tada: New chatbot lead!\n*Name:* %s\n*Email:* %s\n*Phone:* %s",
		lead.Name, lead.Email, lead.Phone,
	)
	if err := w.client.Post(ctx, text); err != nil {
		return fmt.Errorf("post lead notification: %w", err)
	}
	return nil
}
