// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers registration and password reset challenges.
package email

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"github.com/wneessen/go-mail"
)

// Message is a composed e-mail ready for delivery.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// DeliverFunc hands a composed message to the transport.
type DeliverFunc func(ctx context.Context, msg Message) error

// Option configures a Service.
type Option func(*Service)

// WithDeliver replaces SMTP delivery, mostly for tests.
func WithDeliver(fn DeliverFunc) Option {
	return func(s *Service) {
		s.deliver = fn
	}
}

// Service handles email sending via SMTP.
type Service struct {
	cfg     *config.SMTPConfig
	deliver DeliverFunc
	baseURL string
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, baseURL string, opts ...Option) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	s := &Service{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	s.deliver = s.dialAndSend
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConfirmURL returns the link that opens the registration code form.
func ConfirmURL(baseURL, token string) string {
	return fmt.Sprintf("%s/confirm/%s", strings.TrimSuffix(baseURL, "/"), token)
}

// ResetURL returns the link that opens the password reset code form.
func ResetURL(baseURL, token string) string {
	return fmt.Sprintf("%s/reset/%s", strings.TrimSuffix(baseURL, "/"), token)
}

// SendRegistrationChallenge mails the registration code and confirmation link.
func (s *Service) SendRegistrationChallenge(ctx context.Context, toEmail, code, token string) error {
	msg, err := compose(ctx, toEmail, registrationMail(code, ConfirmURL(s.baseURL, token)))
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

// SendResetChallenge mails the password reset code and link.
func (s *Service) SendResetChallenge(ctx context.Context, toEmail, code, token string) error {
	msg, err := compose(ctx, toEmail, resetMail(code, ResetURL(s.baseURL, token)))
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

func compose(ctx context.Context, to string, c challengeMail) (Message, error) {
	var buf bytes.Buffer
	if err := c.html().Render(ctx, &buf); err != nil {
		return Message{}, fmt.Errorf("rendering email: %w", err)
	}
	return Message{
		To:      to,
		Subject: c.subject,
		Text:    c.text(),
		HTML:    buf.String(),
	}, nil
}

// Compose builds the go-mail message for msg using the configured sender.
func (s *Service) Compose(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := m.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	switch strings.ToLower(s.cfg.TLS) {
	case "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Implicit TLS on 465, STARTTLS elsewhere
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func (s *Service) dialAndSend(ctx context.Context, msg Message) error {
	m, err := s.Compose(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
