// Package notify sends registration status messages over SMS and
// email. Delivery is best-effort: callers log failures and move on, the
// status transition itself has already committed.
package notify

import (
	"context"
	"errors"
	"fmt"

	"gatepass.org/internal/obs"
	"gatepass.org/internal/registry"
)

// Service fans one status change out to every configured channel.
type Service struct {
	sms     *SMSSender
	email   *EmailSender
	baseURL string
}

// NewService wires the channels. Either sender may be unconfigured;
// its channel is then skipped with a log line.
func NewService(sms *SMSSender, email *EmailSender, publicBaseURL string) *Service {
	return &Service{sms: sms, email: email, baseURL: publicBaseURL}
}

func (s *Service) Notify(ctx context.Context, reg *registry.Registration, event *registry.Event, outcome string) error {
	var errs []error

	if reg.PhoneNumber != "" {
		if s.sms != nil && s.sms.Configured() {
			if err := s.sms.Send(ctx, reg.PhoneNumber, s.smsText(reg, event, outcome)); err != nil {
				errs = append(errs, err)
			}
		} else {
			obs.Info("notify: sms gateway not configured, skipping", map[string]any{"registration_id": reg.ID})
		}
	}

	if reg.Email != "" {
		if s.email != nil && s.email.Configured() {
			subject, body := s.emailText(reg, event, outcome)
			if err := s.email.Send(reg.Email, subject, body); err != nil {
				errs = append(errs, err)
			}
		} else {
			obs.Info("notify: smtp not configured, skipping", map[string]any{"registration_id": reg.ID})
		}
	}

	return errors.Join(errs...)
}

func (s *Service) smsText(reg *registry.Registration, event *registry.Event, outcome string) string {
	if outcome == "approved" {
		msg := fmt.Sprintf("Dear %s, your registration for %s has been approved.", reg.FullName, event.Name)
		if s.baseURL != "" {
			msg += fmt.Sprintf(" Your badge is available at: %s/v1/badges/%s", s.baseURL, reg.ID)
		}
		return msg
	}
	return fmt.Sprintf("Dear %s, we regret to inform you that your registration for %s has been rejected.", reg.FullName, event.Name)
}

func (s *Service) emailText(reg *registry.Registration, event *registry.Event, outcome string) (subject, body string) {
	if outcome == "approved" {
		subject = "Registration approved: " + event.Name
		body = fmt.Sprintf("Dear %s,\r\n\r\nYour registration for %s on %s at %s has been approved.",
			reg.FullName, event.Name, event.DateTime.Format("2 Jan 2006 15:04"), event.Location)
		if s.baseURL != "" {
			body += fmt.Sprintf("\r\n\r\nDownload your badge: %s/v1/badges/%s", s.baseURL, reg.ID)
		}
		body += "\r\n\r\nPlease present the badge QR code at the entrance."
		return subject, body
	}
	subject = "Registration update: " + event.Name
	body = fmt.Sprintf("Dear %s,\r\n\r\nWe regret to inform you that your registration for %s has been rejected.",
		reg.FullName, event.Name)
	return subject, body
}
