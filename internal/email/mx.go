package email

import (
	"context"
	"errors"
	"net"
)

// ErrNoMailbox indicates the domain of an address has no mail exchanger,
// meaning the address can't receive email.
var ErrNoMailbox = errors.New("no mail exchanger for address")

// MXChecker checks if an address can plausibly receive email. It is a
// deliverability heuristic, a passing check is no guarantee the mailbox
// actually exists.
type MXChecker interface {
	CheckMX(ctx context.Context, addr Address) error
}

// DNSChecker is an MXChecker that looks up the MX records of the
// address domain.
type DNSChecker struct {
	resolver *net.Resolver
}

// NewDNSChecker creates a DNSChecker using the default resolver.
func NewDNSChecker() *DNSChecker {
	return &DNSChecker{
		resolver: net.DefaultResolver,
	}
}

func (c *DNSChecker) CheckMX(ctx context.Context, addr Address) error {
	domain := addr.Domain()
	if domain == "" {
		return ErrNoMailbox
	}

	records, err := c.resolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return ErrNoMailbox
	}

	return nil
}

// CheckerFunc adapts a function to the MXChecker interface.
type CheckerFunc func(ctx context.Context, addr Address) error

func (f CheckerFunc) CheckMX(ctx context.Context, addr Address) error {
	return f(ctx, addr)
}
