package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// pushPayload is the body posted to the push gateway webhook.
type pushPayload struct {
	TenantID  int64          `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type pushStatusError struct {
	StatusCode int
}

func (e *pushStatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

func (e *pushStatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// PushSender posts notifications to a push gateway webhook.
type PushSender struct {
	url    string
	client *http.Client
}

// NewPush creates a push webhook sender. A nil client uses a 10s timeout.
func NewPush(url string, client *http.Client) *PushSender {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &PushSender{url: url, client: client}
}

// Send posts one notification. msg.To is the recipient user id.
func (p *PushSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	payload, err := json.Marshal(pushPayload{
		TenantID:  msg.TenantID,
		UserID:    msg.To,
		Title:     msg.Subject,
		Body:      msg.Body,
		Data:      msg.Data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return "", eris.Wrap(err, "channel: marshal push payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "channel: create push request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", classify(KindPush, err, "channel: push request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return "", classify(KindPush, &pushStatusError{StatusCode: resp.StatusCode}, "channel: push webhook")
	}
	return resp.Header.Get("X-Request-Id"), nil
}
