package mail

import (
	"context"
)

// Message is a plain-text notice addressed to one recipient
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
	// Reference ties the message to the notification record that produced it
	Reference string
}

// Sender delivers a message or reports why it could not
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
