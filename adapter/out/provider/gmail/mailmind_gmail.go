// Package gmail reads the support inbox and sends replies through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user           = "me"
	defaultQuery   = "in:inbox"
	maxConcurrency = 5
)

// Config holds the OAuth client and the long-lived refresh token of the
// support mailbox.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Query        string
}

// Provider implements out.MailProvider for Gmail.
type Provider struct {
	service *gmail.Service
	query   string
	cb      *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewProvider creates a Gmail provider. The access token is refreshed on demand.
func NewProvider(ctx context.Context, cfg Config, log zerolog.Logger) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("gmail: client id, client secret and refresh token are required")
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailSendScope,
		},
		Endpoint: google.Endpoint,
	}
	client := config.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	query := cfg.Query
	if query == "" {
		query = defaultQuery
	}

	log = log.With().Str("component", "gmail").Logger()
	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &Provider{
		service: service,
		query:   query,
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
		log:     log,
	}, nil
}

// FetchRecent returns up to limit inbox messages, newest first. Messages that
// fail to load are skipped.
func (p *Provider) FetchRecent(ctx context.Context, limit int) ([]*domain.Email, error) {
	resp, err := p.call(func() (any, error) {
		return p.service.Users.Messages.List(user).
			Q(p.query).
			MaxResults(int64(limit)).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	refs := resp.(*gmail.ListMessagesResponse).Messages

	emails := make([]*domain.Email, len(refs))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			msg, err := p.getMessage(gctx, ref.Id, "full")
			if err != nil {
				p.log.Warn().Err(err).Str("message_id", ref.Id).Msg("message skipped")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			emails[i] = toEmail(msg)
			return nil
		})
	}
	_ = g.Wait()

	result := make([]*domain.Email, 0, len(emails))
	for _, e := range emails {
		if e != nil {
			result = append(result, e)
		}
	}
	if failed > 0 && len(result) == 0 {
		return nil, fmt.Errorf("failed to load %d messages", failed)
	}
	return result, nil
}

// Send delivers a plain-text reply, threading it under InReplyTo when given.
func (p *Provider) Send(ctx context.Context, m *out.OutgoingMail) error {
	var threadID, messageID string
	if m.InReplyTo != "" {
		orig, err := p.getMessage(ctx, m.InReplyTo, "metadata")
		if err != nil {
			return fmt.Errorf("failed to load original message: %w", err)
		}
		threadID = orig.ThreadId
		messageID = header(orig.Payload, "Message-ID")
	}

	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(buildRawMessage(m, messageID))),
		ThreadId: threadID,
	}

	_, err := p.call(func() (any, error) {
		return p.service.Users.Messages.Send(user, msg).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (p *Provider) getMessage(ctx context.Context, id, format string) (*gmail.Message, error) {
	msg, err := p.call(func() (any, error) {
		return p.service.Users.Messages.Get(user, id).Format(format).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return msg.(*gmail.Message), nil
}

func (p *Provider) call(fn func() (any, error)) (any, error) {
	return p.cb.Execute(fn)
}

// toEmail maps a full Gmail message to an inbound email. The plain-text part
// is preferred; the snippet stands in when there is none.
func toEmail(msg *gmail.Message) *domain.Email {
	e := &domain.Email{
		ExternalID: msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		e.Body = msg.Snippet
		return e
	}

	from := header(msg.Payload, "From")
	if addr, err := mail.ParseAddress(from); err == nil {
		e.FromAddress = addr.Address
		e.FromName = addr.Name
	} else {
		e.FromAddress = strings.TrimSpace(from)
	}
	if to := header(msg.Payload, "To"); to != "" {
		if addr, err := mail.ParseAddress(strings.Split(to, ",")[0]); err == nil {
			e.ToAddress = addr.Address
		}
	}
	e.Subject = header(msg.Payload, "Subject")

	e.Body = strings.TrimSpace(plainText(msg.Payload))
	if e.Body == "" {
		e.Body = msg.Snippet
	}
	return e
}

func header(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// plainText returns the first text/plain part, depth first.
func plainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Filename == "" {
		if text, err := decodeBody(part.Body.Data); err == nil {
			return text
		}
	}
	for _, child := range part.Parts {
		if text := plainText(child); text != "" {
			return text
		}
	}
	return ""
}

// decodeBody accepts padded and unpadded URL-safe base64.
func decodeBody(data string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	}
	return string(raw), err
}

func buildRawMessage(m *out.OutgoingMail, inReplyTo string) string {
	var sb strings.Builder

	sb.WriteString("To: " + m.To + "\r\n")
	sb.WriteString("Subject: " + m.Subject + "\r\n")
	if inReplyTo != "" {
		sb.WriteString("In-Reply-To: " + inReplyTo + "\r\n")
		sb.WriteString("References: " + inReplyTo + "\r\n")
	}
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(m.Body)

	return sb.String()
}

var _ out.MailProvider = (*Provider)(nil)
