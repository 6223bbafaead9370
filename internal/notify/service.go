package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/messaging"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// Service delivers alerts to the store owner over WhatsApp, with email
// as an optional second channel.
type Service struct {
	messenger  messaging.Messenger
	email      EmailSender
	ownerPhone string
	ownerEmail string
	logger     *logging.Logger
}

// NewService creates an owner notification service. email may be nil.
func NewService(messenger messaging.Messenger, email EmailSender, ownerPhone, ownerEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		messenger:  messenger,
		email:      email,
		ownerPhone: ownerPhone,
		ownerEmail: ownerEmail,
		logger:     logger,
	}
}

// NotifyOwner pushes an alert to the owner's WhatsApp and, when configured,
// their email. It fails only if every configured channel fails.
func (s *Service) NotifyOwner(ctx context.Context, subject, body string) error {
	var errs []error
	delivered := false

	if s.messenger != nil && strings.TrimSpace(s.ownerPhone) != "" {
		if err := s.messenger.Send(ctx, s.ownerPhone, body); err != nil {
			s.logger.Error("owner whatsapp alert failed", "error", err)
			errs = append(errs, err)
		} else {
			delivered = true
		}
	}

	if s.email != nil && strings.TrimSpace(s.ownerEmail) != "" {
		msg := EmailMessage{
			To:      s.ownerEmail,
			Subject: subject,
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("owner email alert failed", "error", err)
			errs = append(errs, err)
		} else {
			delivered = true
		}
	}

	if !delivered && len(errs) > 0 {
		return fmt.Errorf("notify: all %d owner channel(s) failed", len(errs))
	}
	if !delivered {
		s.logger.Warn("owner notification dropped: no channels configured", "subject", subject)
	}
	return nil
}
