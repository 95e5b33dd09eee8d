package email

import (
	"context"
	"fmt"
)

// Provider is the delivery backend for outgoing email.
type Provider interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	GetProviderName() string
}

// Service wraps the configured email provider. It satisfies the
// automation engine's EmailSender capability.
type Service struct {
	provider Provider
}

// NewService creates a new email service with the specified provider.
func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

// SendEmail sends an email through the configured provider.
func (s *Service) SendEmail(ctx context.Context, to, subject, body string) error {
	if s.provider == nil {
		return fmt.Errorf("no email provider configured")
	}
	return s.provider.SendEmail(ctx, to, subject, body)
}

// GetProviderName returns the name of the current provider.
func (s *Service) GetProviderName() string {
	if s.provider == nil {
		return "none"
	}
	return s.provider.GetProviderName()
}
