package notification

import (
	"context"
	"fmt"
	"time"
)

// Channel delivers a message to one recipient over one medium
type Channel interface {
	// Name returns the unique identifier for this channel
	Name() string

	// Recipient returns the address this channel would use for target,
	// or "" when the target has no contact info for it
	Recipient(target Target) string

	// Send delivers message to recipient. Implementations must honour ctx.
	Send(ctx context.Context, recipient string, message *Message) error
}

// Target is a snapshot of one operator's contact info taken at dispatch time
type Target struct {
	Name  string
	Phone string
	Email string
}

// Message is a notification to be sent
type Message struct {
	Subject string
	Body    string
}

// DeliveryError records a failed delivery on one channel to one recipient
type DeliveryError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// OfflineMessage builds the camera-offline notification
func OfflineMessage(cameraName string, occurredAt time.Time) *Message {
	return &Message{
		Subject: fmt.Sprintf("Sentinel Alert: %s Offline", cameraName),
		Body: fmt.Sprintf("Sentinel Alert: Camera %q went offline at %s.",
			cameraName, occurredAt.UTC().Format("15:04:05 MST")),
	}
}
