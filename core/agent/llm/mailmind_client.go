package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailmind_server/core/port/out"
	"mailmind_server/pkg/metrics"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Profile holds per-agent sampling settings.
type Profile struct {
	Name        string
	MaxTokens   int
	Temperature float32
}

var (
	ProfileClassifier = Profile{Name: "classifier", MaxTokens: 500, Temperature: 0}
	ProfileExecution  = Profile{Name: "execution", MaxTokens: 2048, Temperature: 0.5}
	ProfileLearning   = Profile{Name: "learning", MaxTokens: 4096, Temperature: 0.3}
	ProfileEvolution  = Profile{Name: "evolution", MaxTokens: 4096, Temperature: 0.3}
)

type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client talks to an OpenAI compatible chat completion endpoint. Calls share
// one circuit breaker so a failing endpoint is not hammered by every agent.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log = log.With().Str("component", "llm").Logger()

	cbSettings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &Client{
		client:  openai.NewClientWithConfig(apiCfg),
		model:   model,
		timeout: timeout,
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
		log:     log,
	}
}

// Complete sends prompt as a single user message using profile's settings.
func (c *Client) Complete(ctx context.Context, profile Profile, prompt string) (string, error) {
	start := time.Now()

	result, err := c.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			MaxTokens:   profile.MaxTokens,
			Temperature: profile.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return nil, ErrEmptyCompletion
		}
		return resp.Choices[0].Message.Content, nil
	})

	metrics.LLMLatency.WithLabelValues(profile.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues(profile.Name, outcome(err)).Inc()
		c.log.Warn().Err(err).Str("profile", profile.Name).Msg("completion failed")
		return "", fmt.Errorf("llm %s: %w", profile.Name, err)
	}

	metrics.LLMRequests.WithLabelValues(profile.Name, "ok").Inc()
	return result.(string), nil
}

// For binds a profile, yielding the collaborator the agents depend on.
func (c *Client) For(profile Profile) out.LLMClient {
	return &profiled{client: c, profile: profile}
}

type profiled struct {
	client  *Client
	profile Profile
}

func (p *profiled) Complete(ctx context.Context, prompt string) (string, error) {
	return p.client.Complete(ctx, p.profile, prompt)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty"
	default:
		return "error"
	}
}
