// Package notify delivers best-effort email notifications. Failures are
// logged by callers and never affect ledger state.
package notify

import "context"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, body string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, body string) error {
	return nil
}
