package channel

import (
	"context"

	"github.com/sells-group/automation-cli/pkg/whatsapp"
)

type whatsAppSender struct {
	client whatsapp.Client
}

// NewWhatsApp returns a Sender backed by the WhatsApp API client.
func NewWhatsApp(client whatsapp.Client) Sender {
	return &whatsAppSender{client: client}
}

func (s *whatsAppSender) Send(ctx context.Context, msg Message) (string, error) {
	number := whatsapp.NormalizePhone(msg.To)
	if number == "" {
		return "", ErrNoRecipient
	}
	resp, err := s.client.SendText(ctx, number, msg.Body)
	if err != nil {
		return "", classify(KindWhatsApp, err, "channel: whatsapp send")
	}
	return resp.Key.ID, nil
}
