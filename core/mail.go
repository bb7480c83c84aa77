package core

import "net/mail"

type (
	// EmailMessage is an externally rendered, plain-content message.
	// Template rendering is owned by an upstream collaborator; the core only
	// carries recipients, a subject and a ready-to-send body.
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		Body    string
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently. Delivery is best-effort:
		// failures are logged by the implementation and never returned.
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.Body != "" }
