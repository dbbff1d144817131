// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"
	"strings"
)

// LogNotifier logs challenges instead of mailing them. Used when no SMTP host is configured.
type LogNotifier struct {
	logger  *slog.Logger
	baseURL string
}

// NewLogNotifier creates a LogNotifier writing to logger, or slog.Default when nil.
func NewLogNotifier(logger *slog.Logger, baseURL string) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (n *LogNotifier) SendRegistrationChallenge(ctx context.Context, toEmail, code, token string) error {
	n.logger.InfoContext(ctx, "registration_challenge",
		"email", toEmail,
		"code", code,
		"url", ConfirmURL(n.baseURL, token),
	)
	return nil
}

func (n *LogNotifier) SendResetChallenge(ctx context.Context, toEmail, code, token string) error {
	n.logger.InfoContext(ctx, "reset_challenge",
		"email", toEmail,
		"code", code,
		"url", ResetURL(n.baseURL, token),
	)
	return nil
}
