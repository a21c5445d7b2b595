package email

import "context"

// MemorySender is a Sender that collects emails in memory, for tests and
// local development.
type MemorySender struct {
	Emails []Message
}

// Message is a sent email as recorded by the MemorySender.
type Message struct {
	From      Address
	Recipient Address
	Subject   string
	Body      string
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.Emails = append(s.Emails, Message{
		From:      from,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	return nil
}
