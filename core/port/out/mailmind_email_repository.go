package out

import (
	"context"
	"time"

	"mailmind_server/core/domain"
)

// EmailRepository persists inbound emails.
type EmailRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Email, error)
	// List returns emails newest first.
	List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error)
	Create(ctx context.Context, email *domain.Email) error
	// UpsertByExternalID inserts the email unless its external id is known.
	UpsertByExternalID(ctx context.Context, email *domain.Email) (bool, error)
	UpdateClassification(ctx context.Context, id string, c *domain.Classification) error
	MarkProcessed(ctx context.Context, id string) error
}

// ReplyRepository persists drafted replies. The stored ai_draft is never rewritten.
type ReplyRepository interface {
	Create(ctx context.Context, reply *domain.Reply) error
	GetByID(ctx context.Context, id string) (*domain.Reply, error)
	ListByEmail(ctx context.Context, emailID string) ([]*domain.Reply, error)
	SetHumanEdited(ctx context.Context, id, content string) error
	MarkSent(ctx context.Context, id string, sentAt time.Time, humanEdited *string) error
}
