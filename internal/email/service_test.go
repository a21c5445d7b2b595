package email_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/enrollhq/enroll/internal/email"
)

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Render(_ context.Context, name string, element email.TemplateElement, data any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s/%s", name, element), nil
}

type failingSender struct {
	err error
}

func (f *failingSender) Send(_ context.Context, _, _ email.Address, _, _ string) error {
	return f.err
}

func Test_Service_Send(t *testing.T) {
	t.Run("ok, renders and sends", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(&fakeRenderer{}, sender, "from@example.com")

		err := svc.Send(context.Background(), "confirm-email", "alice@example.com", nil)
		if err != nil {
			t.Fatalf("failed to send: %v", err)
		}

		if len(sender.Emails) != 1 {
			t.Fatalf("expected 1 email, got %d", len(sender.Emails))
		}

		got := sender.Emails[0]
		want := email.Message{
			From:      "from@example.com",
			Recipient: "alice@example.com",
			Subject:   "confirm-email/subject",
			Body:      "confirm-email/body",
		}

		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("fail, renderer error", func(t *testing.T) {
		rendererErr := errors.New("render failed")
		svc := email.NewService(&fakeRenderer{err: rendererErr}, email.NewMemorySender(), "from@example.com")

		err := svc.Send(context.Background(), "confirm-email", "alice@example.com", nil)
		if !errors.Is(err, rendererErr) {
			t.Fatalf("expected renderer error via errors.Is, got %v", err)
		}
	})

	t.Run("fail, sender error propagates", func(t *testing.T) {
		senderErr := errors.New("transport failed")
		svc := email.NewService(&fakeRenderer{}, &failingSender{err: senderErr}, "from@example.com")

		err := svc.Send(context.Background(), "confirm-email", "alice@example.com", nil)
		if !errors.Is(err, senderErr) {
			t.Fatalf("expected sender error via errors.Is, got %v", err)
		}
	})
}
