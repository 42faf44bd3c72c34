package in

import (
	"context"

	"mailmind_server/core/domain"
)

// EmailService exposes stored emails and mailbox sync.
type EmailService interface {
	Get(ctx context.Context, id string) (*domain.Email, error)
	List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error)
	Create(ctx context.Context, req *CreateEmailRequest) (*domain.Email, error)
	Classify(ctx context.Context, id string) (*domain.Email, error)
	Sync(ctx context.Context, limit int) (*SyncResult, error)
}

type CreateEmailRequest struct {
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	ToAddress   string `json:"to_address"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

type SyncResult struct {
	Fetched  int `json:"fetched"`
	Imported int `json:"imported"`
}

// ReplyService manages drafted replies.
type ReplyService interface {
	Get(ctx context.Context, id string) (*domain.Reply, error)
	ListByEmail(ctx context.Context, emailID string) ([]*domain.Reply, error)
	SubmitFeedback(ctx context.Context, id, edited string) (*domain.Reply, error)
	Send(ctx context.Context, id, content string) (*domain.Reply, error)
}
