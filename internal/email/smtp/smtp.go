package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/krypto"
)

// Settings contains the settings for the SMTP server.
type Settings struct {
	Host string
	Port int
	// UseSSL dials a TLS connection directly (implicit TLS, typically port 465).
	UseSSL bool
	// UseTLS upgrades a plaintext connection via STARTTLS (typically port 587).
	UseTLS   bool
	Username string
	Password krypto.Secret
}

// Sender is an email sender that submits messages to an SMTP server.
// Sends are fire-and-forget: there is no retrying and no delivery
// confirmation beyond the server accepting the message.
type Sender struct {
	settings Settings
	dialer   *net.Dialer
}

// NewSender creates a new sender.
func NewSender(s Settings) *Sender {
	return &Sender{
		settings: s,
		dialer:   &net.Dialer{},
	}
}

// Send submits a single HTML email to the SMTP server.
func (s *Sender) Send(ctx context.Context, from, recipient email.Address, subject, body string) error {
	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp server: %w", err)
	}

	if s.settings.UseSSL {
		conn = tls.Client(conn, &tls.Config{ServerName: s.settings.Host})
	}

	client, err := smtp.NewClient(conn, s.settings.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer client.Close()

	if s.settings.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.settings.Host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}

	if s.settings.Username != "" {
		auth := smtp.PlainAuth("", s.settings.Username, string(s.settings.Password.SecretValue()), s.settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(string(from)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	if err := client.Rcpt(string(recipient)); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}

	if _, err := w.Write(buildMessage(from, recipient, subject, body)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles an RFC 5322 message with an HTML body.
func buildMessage(from, recipient email.Address, subject, body string) []byte {
	var b strings.Builder

	b.WriteString("From: " + string(from) + "\r\n")
	b.WriteString("To: " + string(recipient) + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	return []byte(b.String())
}
