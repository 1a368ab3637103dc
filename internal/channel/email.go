package channel

import (
	"context"
	"strings"

	"github.com/sells-group/automation-cli/pkg/mailer"
)

type emailSender struct {
	client mailer.Client
}

// NewEmail returns a Sender backed by the e-mail API client.
func NewEmail(client mailer.Client) Sender {
	return &emailSender{client: client}
}

func (s *emailSender) Send(ctx context.Context, msg Message) (string, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", ErrNoRecipient
	}
	id, err := s.client.Send(ctx, mailer.Message{
		To:      []string{to},
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return "", classify(KindEmail, err, "channel: email send")
	}
	return id, nil
}
