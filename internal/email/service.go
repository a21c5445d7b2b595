package email

import (
	"context"
	"fmt"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(ctx context.Context, name string, element TemplateElement, data any) (string, error)
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, from, recipient Address, subject, body string) error
}

// Service provides the main functionality for sending emails. It renders
// the subject and HTML body of the named template and hands the result to
// the sender. There is no queueing and no retrying, a failing sender
// fails the send.
type Service struct {
	renderer Renderer
	sender   Sender
	from     Address
}

func NewService(renderer Renderer, sender Sender, from Address) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		from:     from,
	}
}

func (s *Service) Send(ctx context.Context, template string, recipient Address, data any) error {
	subject, err := s.renderer.Render(ctx, template, ElementSubject, data)
	if err != nil {
		return fmt.Errorf("failed to render subject of %q: %w", template, err)
	}

	body, err := s.renderer.Render(ctx, template, ElementBody, data)
	if err != nil {
		return fmt.Errorf("failed to render body of %q: %w", template, err)
	}

	err = s.sender.Send(ctx, s.from, recipient, subject, body)
	if err != nil {
		return fmt.Errorf("failed to send %q email: %w", template, err)
	}

	return nil
}
