package notification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher fans notifications out to every target over every channel.
// Delivery is best effort: no retries and no queue.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. Each channel call is bounded by timeout.
func NewDispatcher(timeout time.Duration, logger zerolog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   logger.With().Str("component", "notification").Logger(),
	}
}

// Channels returns the names of the registered channels
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// NotifyOffline tells every target that a camera went offline. Every
// channel/target pair is attempted independently and concurrently; the
// call returns once all attempts finished. Failures are logged and
// returned joined as *DeliveryError values.
func (d *Dispatcher) NotifyOffline(ctx context.Context, cameraName string, occurredAt time.Time, targets []Target) error {
	return d.send(ctx, OfflineMessage(cameraName, occurredAt), targets)
}

func (d *Dispatcher) send(ctx context.Context, msg *Message, targets []Target) error {
	type delivery struct {
		channel   Channel
		target    string
		recipient string
	}

	var deliveries []delivery
	for _, target := range targets {
		for _, ch := range d.channels {
			if recipient := ch.Recipient(target); recipient != "" {
				deliveries = append(deliveries, delivery{channel: ch, target: target.Name, recipient: recipient})
			}
		}
	}

	errCh := make(chan error, len(deliveries))
	for _, dl := range deliveries {
		go func(dl delivery) {
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := dl.channel.Send(sendCtx, dl.recipient, msg); err != nil {
				d.logger.Error().
					Err(err).
					Str("channel", dl.channel.Name()).
					Str("target", dl.target).
					Str("recipient", maskRecipient(dl.recipient)).
					Msg("Failed to send notification")
				errCh <- &DeliveryError{Channel: dl.channel.Name(), Recipient: dl.recipient, Err: err}
				return
			}
			d.logger.Info().
				Str("channel", dl.channel.Name()).
				Str("target", dl.target).
				Str("recipient", maskRecipient(dl.recipient)).
				Msg("Notification sent")
			errCh <- nil
		}(dl)
	}

	var failures []error
	for range deliveries {
		if err := <-errCh; err != nil {
			failures = append(failures, err)
		}
	}

	return errors.Join(failures...)
}

// maskRecipient keeps enough of a phone number or address to tell
// recipients apart in logs: "+1******34", "o***@example.com"
func maskRecipient(recipient string) string {
	if at := strings.LastIndex(recipient, "@"); at > 0 {
		return recipient[:1] + "***" + recipient[at:]
	}
	if len(recipient) <= 4 {
		return strings.Repeat("*", len(recipient))
	}
	return recipient[:2] + strings.Repeat("*", len(recipient)-4) + recipient[len(recipient)-2:]
}
