package messaging

import "context"

// Messenger delivers one outbound WhatsApp message.
type Messenger interface {
	Send(ctx context.Context, to, body string) error
}
