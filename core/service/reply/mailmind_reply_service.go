package reply

import (
	"context"
	"errors"
	"strings"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"
	"mailmind_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// Service implements in.ReplyService.
type Service struct {
	replies out.ReplyRepository
	emails  out.EmailRepository
	mail    out.MailProvider
	log     zerolog.Logger
	now     func() time.Time
}

// NewService creates the reply service. mail may be nil; Send then fails
// with an unavailable error.
func NewService(replies out.ReplyRepository, emails out.EmailRepository, mail out.MailProvider, log zerolog.Logger) *Service {
	return &Service{
		replies: replies,
		emails:  emails,
		mail:    mail,
		log:     log.With().Str("component", "reply_service").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ in.ReplyService = (*Service)(nil)

func (s *Service) Get(ctx context.Context, id string) (*domain.Reply, error) {
	reply, err := s.replies.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup(err)
	}
	return reply, nil
}

func (s *Service) ListByEmail(ctx context.Context, emailID string) ([]*domain.Reply, error) {
	replies, err := s.replies.ListByEmail(ctx, emailID)
	if err != nil {
		return nil, apperr.DatabaseError("list replies", err)
	}
	if replies == nil {
		replies = []*domain.Reply{}
	}
	return replies, nil
}

// SubmitFeedback stores a reviewer's edit. The AI draft is kept as is so
// evolution can compare both.
func (s *Service) SubmitFeedback(ctx context.Context, id, edited string) (*domain.Reply, error) {
	if strings.TrimSpace(edited) == "" {
		return nil, apperr.MissingField("edited_content")
	}
	if err := s.replies.SetHumanEdited(ctx, id, edited); err != nil {
		return nil, wrapLookup(err)
	}
	return s.Get(ctx, id)
}

// Send delivers content, or the human edit, or the AI draft, as a reply to
// the original sender. Content that differs from the draft is kept as the
// human edit.
func (s *Service) Send(ctx context.Context, id, content string) (*domain.Reply, error) {
	if s.mail == nil {
		return nil, apperr.Unavailable("mail provider")
	}

	reply, err := s.replies.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup(err)
	}
	if reply.Sent {
		return nil, apperr.Conflict("reply already sent")
	}

	email, err := s.emails.GetByID(ctx, reply.EmailID)
	if err != nil {
		if errors.Is(err, domain.ErrEmailNotFound) {
			return nil, apperr.NotFound("email").WithError(err)
		}
		return nil, apperr.DatabaseError("load email", err)
	}

	body := reply.Outgoing(content)
	err = s.mail.Send(ctx, &out.OutgoingMail{
		To:        email.FromAddress,
		Subject:   "Re: " + email.Subject,
		Body:      body,
		InReplyTo: email.ExternalID,
	})
	if err != nil {
		return nil, apperr.ExternalError("mail provider", err)
	}

	var edited *string
	if content != "" && content != reply.AIDraft {
		edited = &content
	}
	if err := s.replies.MarkSent(ctx, id, s.now(), edited); err != nil {
		return nil, apperr.DatabaseError("mark reply sent", err)
	}

	s.log.Info().Str("reply_id", id).Str("email_id", email.ID).Msg("reply sent")
	return s.Get(ctx, id)
}

func wrapLookup(err error) error {
	if errors.Is(err, domain.ErrReplyNotFound) {
		return apperr.NotFound("reply").WithError(err)
	}
	return apperr.DatabaseError("load reply", err)
}
