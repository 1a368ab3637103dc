package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/model"
)

// fanOut delivers the committed plan. Message rows move from queued to sent
// or failed; notification sends are best effort. Nothing here rolls back.
func (d *Dispatcher) fanOut(ctx context.Context, scope Scope, p *plan, res *Result, log *zap.Logger) {
	for _, m := range p.messages {
		status, errMsg, sentAt := model.MessageStatusSent, "", (*time.Time)(nil)
		id, err := d.send(ctx, channel.Message{
			TenantID: scope.TenantID,
			Channel:  channel.Kind(m.Channel),
			To:       m.To,
			Subject:  m.Subject,
			Body:     m.Body,
		})
		if err != nil {
			status, errMsg = model.MessageStatusFailed, err.Error()
			res.Failed++
			log.Warn("dispatch: message send failed",
				zap.String("message_id", m.ID),
				zap.String("channel", m.Channel),
				zap.Bool("transient", channel.IsTransient(err)),
				zap.Error(err),
			)
		} else {
			t := time.Now().UTC()
			sentAt = &t
			res.Sent++
			log.Debug("dispatch: message sent", zap.String("message_id", m.ID), zap.String("provider_id", id))
		}
		if err := d.store.UpdateMessageStatus(ctx, scope.TenantID, m.ID, status, errMsg, sentAt); err != nil {
			log.Error("dispatch: update message status", zap.String("message_id", m.ID), zap.Error(err))
		}
	}

	for _, msg := range p.outbound {
		if _, err := d.send(ctx, msg); err != nil {
			res.Failed++
			log.Warn("dispatch: notification send failed",
				zap.String("channel", string(msg.Channel)),
				zap.Bool("transient", channel.IsTransient(err)),
				zap.Error(err),
			)
			continue
		}
		res.Sent++
	}
}

func (d *Dispatcher) send(ctx context.Context, msg channel.Message) (string, error) {
	if d.sender == nil {
		return "", channel.ErrNoSender
	}
	return d.sender.Send(ctx, msg)
}
