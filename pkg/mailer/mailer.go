package mailer

import "context"

// Mailer delivers one rendered HTML email. Templating and grouping are the
// caller's job; transport only delivers.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
