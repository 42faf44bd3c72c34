// Package email manages stored inbound emails and mailbox sync.
package email

import (
	"context"
	"errors"
	"strings"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"
	"mailmind_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	defaultSyncLimit = 50
)

type Service struct {
	emails     out.EmailRepository
	classifier in.Classifier
	mail       out.MailProvider
	log        zerolog.Logger
	now        func() time.Time
}

// NewService creates the email service. mail may be nil when no mailbox is
// configured; Sync then reports the provider as unavailable.
func NewService(emails out.EmailRepository, classifier in.Classifier, mail out.MailProvider, log zerolog.Logger) *Service {
	return &Service{
		emails:     emails,
		classifier: classifier,
		mail:       mail,
		log:        log.With().Str("component", "email_service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ in.EmailService = (*Service)(nil)

func (s *Service) Get(ctx context.Context, id string) (*domain.Email, error) {
	email, err := s.emails.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup(err)
	}
	return email, nil
}

func (s *Service) List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	emails, err := s.emails.List(ctx, filter)
	if err != nil {
		return nil, apperr.DatabaseError("list emails", err)
	}
	if emails == nil {
		emails = []*domain.Email{}
	}
	return emails, nil
}

func (s *Service) Create(ctx context.Context, req *in.CreateEmailRequest) (*domain.Email, error) {
	switch {
	case strings.TrimSpace(req.FromAddress) == "":
		return nil, apperr.MissingField("from_address")
	case strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Body) == "":
		return nil, apperr.MissingField("body")
	}

	now := s.now()
	email := &domain.Email{
		ID:          uuid.New().String(),
		FromAddress: strings.TrimSpace(req.FromAddress),
		FromName:    req.FromName,
		ToAddress:   req.ToAddress,
		Subject:     req.Subject,
		Body:        req.Body,
		ReceivedAt:  now,
		CreatedAt:   now,
	}
	if err := s.emails.Create(ctx, email); err != nil {
		return nil, apperr.DatabaseError("create email", err)
	}
	return email, nil
}

// Classify runs the classifier and stores its verdict on the email.
func (s *Service) Classify(ctx context.Context, id string) (*domain.Email, error) {
	email, err := s.emails.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup(err)
	}

	verdict := s.classifier.Classify(ctx, email)
	if err := s.emails.UpdateClassification(ctx, id, verdict); err != nil {
		return nil, apperr.DatabaseError("update classification", err)
	}
	email.ApplyClassification(verdict)
	return email, nil
}

// Sync imports recent mailbox messages, skipping ones already stored.
func (s *Service) Sync(ctx context.Context, limit int) (*in.SyncResult, error) {
	if s.mail == nil {
		return nil, apperr.Unavailable("mail provider")
	}
	if limit <= 0 {
		limit = defaultSyncLimit
	}

	fetched, err := s.mail.FetchRecent(ctx, limit)
	if err != nil {
		return nil, apperr.ExternalError("mail provider", err)
	}

	result := &in.SyncResult{Fetched: len(fetched)}
	for _, email := range fetched {
		if email.ID == "" {
			email.ID = uuid.New().String()
		}
		if email.CreatedAt.IsZero() {
			email.CreatedAt = s.now()
		}
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = email.CreatedAt
		}

		inserted, err := s.emails.UpsertByExternalID(ctx, email)
		if err != nil {
			return result, apperr.DatabaseError("store synced email", err)
		}
		if inserted {
			result.Imported++
		}
	}

	s.log.Info().Int("fetched", result.Fetched).Int("imported", result.Imported).Msg("mailbox synced")
	return result, nil
}

func wrapLookup(err error) error {
	if errors.Is(err, domain.ErrEmailNotFound) {
		return apperr.NotFound("email").WithError(err)
	}
	return apperr.DatabaseError("load email", err)
}
