package out

import (
	"context"

	"mailmind_server/core/domain"
)

// OutgoingMail is a reply handed to the mail provider.
type OutgoingMail struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// MailProvider reads the support inbox and sends replies.
type MailProvider interface {
	FetchRecent(ctx context.Context, limit int) ([]*domain.Email, error)
	Send(ctx context.Context, mail *OutgoingMail) error
}
