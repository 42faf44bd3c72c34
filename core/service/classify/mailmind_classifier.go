// Package classify labels inbound emails with a support category.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailmind_server/core/agent/llm"
	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"

	"github.com/rs/zerolog"
)

const (
	cacheKeyPrefix  = "mailmind:classify:"
	promptBodyLimit = 2000
	DefaultCacheTTL = 24 * time.Hour
)

// Classifier implements in.Classifier on top of an LLM. A verdict is
// cached per email id when a cache is configured.
type Classifier struct {
	llm   out.LLMClient
	cache out.JSONCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewClassifier creates a classifier. client and cache may be nil.
func NewClassifier(client out.LLMClient, cache out.JSONCache, ttl time.Duration, log zerolog.Logger) *Classifier {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Classifier{
		llm:   client,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "classifier").Logger(),
	}
}

var _ in.Classifier = (*Classifier)(nil)

func (c *Classifier) Classify(ctx context.Context, email *domain.Email) *domain.Classification {
	if cached, ok := c.lookup(ctx, email.ID); ok {
		return cached
	}

	if c.llm == nil {
		return unclassified("No LLM configured")
	}

	text, err := c.llm.Complete(ctx, prompt(email))
	if err != nil {
		c.log.Warn().Err(err).Str("email_id", email.ID).Msg("classification failed")
		return unclassified(fmt.Sprintf("Error: %v", err))
	}

	var verdict domain.Classification
	if !llm.ExtractJSON(text, &verdict) {
		c.log.Warn().Str("email_id", email.ID).Msg("classification answer is not JSON")
		return unclassified("Error: unparsable classifier answer")
	}
	normalize(&verdict)

	c.store(ctx, email.ID, &verdict)
	return &verdict
}

func (c *Classifier) lookup(ctx context.Context, emailID string) (*domain.Classification, bool) {
	if c.cache == nil || emailID == "" {
		return nil, false
	}
	var cached domain.Classification
	found, err := c.cache.GetJSON(ctx, cacheKeyPrefix+emailID, &cached)
	if err != nil {
		c.log.Debug().Err(err).Str("email_id", emailID).Msg("classification cache read failed")
		return nil, false
	}
	return &cached, found
}

func (c *Classifier) store(ctx context.Context, emailID string, verdict *domain.Classification) {
	if c.cache == nil || emailID == "" {
		return
	}
	if err := c.cache.SetJSON(ctx, cacheKeyPrefix+emailID, verdict, c.ttl); err != nil {
		c.log.Debug().Err(err).Str("email_id", emailID).Msg("classification cache write failed")
	}
}

// normalize maps the explicit non-customer-service label to no category
// and any unknown label to other.
func normalize(v *domain.Classification) {
	if v.Category == nil {
		return
	}
	category := strings.ToLower(strings.TrimSpace(*v.Category))
	switch {
	case category == "":
		v.Category = nil
	case category == domain.CategoryNonCustomerService:
		v.IsCustomerService = false
		v.Category = nil
	case !known(category):
		other := domain.CategoryOther
		v.Category = &other
	default:
		v.Category = &category
	}
	v.Confidence = min(max(v.Confidence, 0), 1)
}

func known(category string) bool {
	for _, c := range domain.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func unclassified(reasoning string) *domain.Classification {
	return &domain.Classification{Reasoning: reasoning}
}

func prompt(email *domain.Email) string {
	return fmt.Sprintf(`You are an email classifier. Analyze the following email and determine:
1. Is this a customer service related email? (inquiry, complaint, support request, etc.)
2. What category does it belong to?

Email:
From: %s
Subject: %s
Body: %s

Respond in JSON format:
{
    "is_customer_service": true/false,
    "category": "%s",
    "confidence": 0.0-1.0,
    "reasoning": "Brief explanation"
}

Only return the JSON, nothing else.`,
		email.FromAddress,
		email.Subject,
		llm.Truncate(email.Body, promptBodyLimit),
		strings.Join(domain.Categories, "|"),
	)
}
