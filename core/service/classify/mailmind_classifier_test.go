package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailmind_server/core/domain"
	"mailmind_server/internal/memstore"

	"github.com/rs/zerolog"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		err       error
		service   bool
		category  string
		reasoning string
	}{
		{
			name:     "customer service",
			reply:    "```json\n{\"is_customer_service\": true, \"category\": \"refund-cancellation\", \"confidence\": 0.9, \"reasoning\": \"asks for money back\"}\n```",
			service:  true,
			category: domain.CategoryRefundCancellation,
		},
		{
			name:     "non customer service label",
			reply:    `{"is_customer_service": true, "category": "non-customer-service", "confidence": 0.8}`,
			service:  false,
			category: "",
		},
		{
			name:     "unknown label becomes other",
			reply:    `{"is_customer_service": true, "category": "warranty", "confidence": 0.5}`,
			service:  true,
			category: domain.CategoryOther,
		},
		{
			name:      "llm failure",
			err:       errors.New("timeout"),
			reasoning: "Error: timeout",
		},
		{
			name:      "not json",
			reply:     "It is a refund request.",
			reasoning: "Error: unparsable classifier answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &memstore.LLM{Reply: tt.reply, Err: tt.err}
			c := NewClassifier(client, nil, 0, zerolog.Nop())

			got := c.Classify(context.Background(), &domain.Email{ID: "e1", Subject: "s", Body: "b"})

			if got.IsCustomerService != tt.service {
				t.Errorf("expected is_customer_service %v, got %v", tt.service, got.IsCustomerService)
			}
			gotCategory := ""
			if got.Category != nil {
				gotCategory = *got.Category
			}
			if gotCategory != tt.category {
				t.Errorf("expected category %q, got %q", tt.category, gotCategory)
			}
			if tt.reasoning != "" && got.Reasoning != tt.reasoning {
				t.Errorf("expected reasoning %q, got %q", tt.reasoning, got.Reasoning)
			}
		})
	}
}

func TestClassifyUsesCache(t *testing.T) {
	client := &memstore.LLM{Reply: `{"is_customer_service": true, "category": "price-inquiry", "confidence": 0.7}`}
	c := NewClassifier(client, memstore.NewCache(), 0, zerolog.Nop())
	email := &domain.Email{ID: "e1", Subject: "How much?"}

	first := c.Classify(context.Background(), email)
	second := c.Classify(context.Background(), email)

	if len(client.Prompts()) != 1 {
		t.Errorf("expected one LLM call, got %d", len(client.Prompts()))
	}
	if second.Category == nil || *second.Category != *first.Category {
		t.Errorf("expected cached verdict, got %+v", second)
	}
}

func TestClassifyDoesNotCacheFailures(t *testing.T) {
	client := &memstore.LLM{Err: errors.New("down")}
	c := NewClassifier(client, memstore.NewCache(), 0, zerolog.Nop())
	email := &domain.Email{ID: "e1"}

	c.Classify(context.Background(), email)
	client.Err = nil
	client.Reply = `{"is_customer_service": true, "category": "other"}`

	got := c.Classify(context.Background(), email)
	if !got.IsCustomerService {
		t.Errorf("expected fresh classification after failure, got %+v", got)
	}
}

func TestPromptTruncatesBody(t *testing.T) {
	p := prompt(&domain.Email{Body: strings.Repeat("a", 3000)})
	if strings.Contains(p, strings.Repeat("a", 2001)) {
		t.Error("expected body truncated to 2000 characters")
	}
	if !strings.Contains(p, "equipment-fault|refund-cancellation") {
		t.Error("expected category list in prompt")
	}
}
