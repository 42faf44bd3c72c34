package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"
)

// LLM answers prompts from Respond, or with Reply when Respond is nil.
type LLM struct {
	mu      sync.Mutex
	prompts []string

	Reply   string
	Err     error
	Respond func(prompt string) (string, error)
}

var _ out.LLMClient = (*LLM)(nil)

func (l *LLM) Complete(_ context.Context, prompt string) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.mu.Unlock()

	if l.Respond != nil {
		return l.Respond(prompt)
	}
	if l.Err != nil {
		return "", l.Err
	}
	if l.Reply == "" {
		return "", errors.New("empty completion")
	}
	return l.Reply, nil
}

// Prompts returns every prompt received so far.
func (l *LLM) Prompts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.prompts...)
}

// Mailbox implements out.MailProvider.
type Mailbox struct {
	mu   sync.Mutex
	sent []*out.OutgoingMail

	Inbox    []*domain.Email
	FetchErr error
	SendErr  error
}

var _ out.MailProvider = (*Mailbox)(nil)

func (m *Mailbox) FetchRecent(_ context.Context, limit int) ([]*domain.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	if limit > 0 && limit < len(m.Inbox) {
		return m.Inbox[:limit], nil
	}
	return m.Inbox, nil
}

func (m *Mailbox) Send(_ context.Context, mail *out.OutgoingMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *Mailbox) Sent() []*out.OutgoingMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*out.OutgoingMail(nil), m.sent...)
}

// Cache implements out.JSONCache without expiry.
type Cache struct {
	mu     sync.Mutex
	values map[string][]byte
}

var _ out.JSONCache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{values: make(map[string][]byte)}
}

func (c *Cache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	data, ok := c.values[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *Cache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.values[key] = data
	c.mu.Unlock()
	return nil
}

// Graph implements out.SkillGraph as edge lists.
type Graph struct {
	mu            sync.Mutex
	contributions []string
	collaborates  map[string][]string

	Err error
}

var _ out.SkillGraph = (*Graph)(nil)

func NewGraph() *Graph {
	return &Graph{collaborates: make(map[string][]string)}
}

func (g *Graph) RecordContribution(_ context.Context, skill *domain.Skill, emailID string, kind domain.ContributionType) error {
	if g.Err != nil {
		return g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contributions = append(g.contributions, emailID+"->"+skill.NameEn+":"+string(kind))
	return nil
}

func (g *Graph) RecordCollaboration(_ context.Context, from, to string) error {
	if g.Err != nil {
		return g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.collaborates[from] {
		if existing == to {
			return nil
		}
	}
	g.collaborates[from] = append(g.collaborates[from], to)
	return nil
}

func (g *Graph) Collaborators(_ context.Context, nameEn string) ([]string, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string{}, g.collaborates[nameEn]...), nil
}

// Contributions lists recorded edges as "email->skill:kind".
func (g *Graph) Contributions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.contributions...)
}
