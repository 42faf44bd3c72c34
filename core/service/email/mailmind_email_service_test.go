package email

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/service/classify"
	"mailmind_server/internal/memstore"
	"mailmind_server/pkg/apperr"

	"github.com/rs/zerolog"
)

func newTestService(mail *memstore.Mailbox, llm *memstore.LLM, emails ...*domain.Email) (*Service, *memstore.Emails) {
	repo := memstore.NewEmails(emails...)
	classifier := classify.NewClassifier(llm, nil, 0, zerolog.Nop())
	if mail == nil {
		return NewService(repo, classifier, nil, zerolog.Nop()), repo
	}
	return NewService(repo, classifier, mail, zerolog.Nop()), repo
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   in.CreateEmailRequest
		field string
	}{
		{name: "no sender", req: in.CreateEmailRequest{Body: "hi"}, field: "from_address"},
		{name: "no content", req: in.CreateEmailRequest{FromAddress: "a@example.com"}, field: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(nil, &memstore.LLM{})
			_, err := svc.Create(context.Background(), &tt.req)

			appErr := apperr.AsAppError(err)
			if appErr == nil || appErr.Code != apperr.CodeMissingField {
				t.Fatalf("expected missing field error, got %v", err)
			}
			if appErr.Details["field"] != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, appErr.Details["field"])
			}
		})
	}
}

func TestCreateAndClassify(t *testing.T) {
	llm := &memstore.LLM{Reply: `{"is_customer_service": true, "category": "price-inquiry", "confidence": 0.8, "reasoning": "asks price"}`}
	svc, repo := newTestService(nil, llm)

	created, err := svc.Create(context.Background(), &in.CreateEmailRequest{
		FromAddress: "bob@example.com",
		Subject:     "Price",
		Body:        "How much is the pro plan?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	classified, err := svc.Classify(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if classified.CategoryValue() != domain.CategoryPriceInquiry || !classified.IsCustomerService {
		t.Errorf("unexpected classification %q cs=%v", classified.CategoryValue(), classified.IsCustomerService)
	}

	stored, _ := repo.GetByID(context.Background(), created.ID)
	if stored.CategoryValue() != domain.CategoryPriceInquiry {
		t.Errorf("expected stored category, got %q", stored.CategoryValue())
	}
}

func TestClassifyUnknownEmail(t *testing.T) {
	svc, _ := newTestService(nil, &memstore.LLM{})
	_, err := svc.Classify(context.Background(), "missing")
	if apperr.GetHTTPStatus(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestSyncSkipsKnownMessages(t *testing.T) {
	known := &domain.Email{ID: "e1", ExternalID: "gm-1", FromAddress: "a@example.com", ReceivedAt: time.Now()}
	mail := &memstore.Mailbox{Inbox: []*domain.Email{
		{ExternalID: "gm-1", FromAddress: "a@example.com", Subject: "again"},
		{ExternalID: "gm-2", FromAddress: "b@example.com", Subject: "new"},
	}}
	svc, repo := newTestService(mail, &memstore.LLM{}, known)

	result, err := svc.Sync(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Fetched != 2 || result.Imported != 1 {
		t.Errorf("expected 2 fetched 1 imported, got %d/%d", result.Fetched, result.Imported)
	}

	all, _ := repo.List(context.Background(), domain.EmailFilter{})
	if len(all) != 2 {
		t.Errorf("expected 2 stored emails, got %d", len(all))
	}
}

func TestSyncFailures(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		svc, _ := newTestService(nil, &memstore.LLM{})
		_, err := svc.Sync(context.Background(), 10)
		if apperr.GetHTTPStatus(err) != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %v", err)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		svc, _ := newTestService(&memstore.Mailbox{FetchErr: errors.New("quota")}, &memstore.LLM{})
		_, err := svc.Sync(context.Background(), 10)
		if apperr.GetHTTPStatus(err) != http.StatusBadGateway {
			t.Errorf("expected 502, got %v", err)
		}
	})
}
