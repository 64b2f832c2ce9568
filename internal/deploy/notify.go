package deploy

import (
	"context"
	"impexdeploy/pkg/backoff"
	"impexdeploy/pkg/cloudevent"
	"log/slog"
)

const defaultNotifyRetries = 3

// WebhookNotifier posts outcome events to an HTTP endpoint, retrying
// network and server errors.
type WebhookNotifier struct {
	URL        string
	SigningKey string
	Sender     *cloudevent.Sender
	MaxRetries int             // default: 3
	Backoff    *backoff.Config // nil uses backoff defaults
}

// Notify sends event, giving up early on 4xx responses.
func (n *WebhookNotifier) Notify(ctx context.Context, event *cloudevent.CloudEvent) error {
	retries := n.MaxRetries
	if retries <= 0 {
		retries = defaultNotifyRetries
	}
	opts := cloudevent.SendOptions{SigningKey: n.SigningKey}

	var lastErr error
	for attempt := range retries + 1 {
		if attempt > 0 {
			if err := backoff.Wait(ctx, attempt, n.Backoff); err != nil {
				return err
			}
			slog.Debug("Retrying notification", "attempt", attempt, "type", event.Type)
		}

		lastErr = n.Sender.Send(ctx, n.URL, event, opts)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

var _ Notifier = (*WebhookNotifier)(nil)
