// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

type challengeMail struct {
	subject string
	intro   string
	code    string
	link    string
}

func registrationMail(code, link string) challengeMail {
	return challengeMail{
		subject: "Confirm your registration",
		intro:   "Use the code below on the confirmation page to activate your account.",
		code:    code,
		link:    link,
	}
}

func resetMail(code, link string) challengeMail {
	return challengeMail{
		subject: "Reset your password",
		intro:   "Use the code below on the reset page to choose a new password.",
		code:    code,
		link:    link,
	}
}

func (c challengeMail) text() string {
	return fmt.Sprintf("%s\n\nCode: %s\n\n%s\n\nThe code expires after a few minutes. "+
		"If you did not ask for this, ignore this message.\n", c.intro, c.code, c.link)
}

func (c challengeMail) html() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html><body><p>%s</p><p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p><p><a href="%s">%s</a></p><p>The code expires after a few minutes. If you did not ask for this, ignore this message.</p></body></html>`,
			templ.EscapeString(c.intro),
			templ.EscapeString(c.code),
			templ.EscapeString(c.link),
			templ.EscapeString(c.link),
		)
		return err
	})
}
