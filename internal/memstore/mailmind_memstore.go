// Package memstore holds in-memory implementations of the outbound ports.
// Service tests use it in place of a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"
)

// Skills implements out.SkillRepository and out.HistoryRepository.
type Skills struct {
	mu      sync.Mutex
	order   []string
	skills  map[string]*domain.Skill
	changes []*domain.SkillChangeLog
	sources []*domain.SkillSourceEmail

	// BeforeUpdate runs inside Update before the version check, letting
	// tests simulate a concurrent writer.
	BeforeUpdate func(id string)
	// UpdateErr fails every Update when set.
	UpdateErr error
}

func NewSkills(skills ...*domain.Skill) *Skills {
	s := &Skills{skills: make(map[string]*domain.Skill)}
	for _, sk := range skills {
		c := sk.Clone()
		if c.Version == 0 {
			c.Version = 1
		}
		s.skills[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return s
}

var (
	_ out.SkillRepository   = (*Skills)(nil)
	_ out.HistoryRepository = (*Skills)(nil)
)

func (s *Skills) List(_ context.Context, filter domain.SkillFilter) ([]*domain.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Skill, 0, len(s.order))
	for _, id := range s.order {
		sk := s.skills[id]
		if filter.ActiveOnly && !sk.IsActive {
			continue
		}
		if filter.Category != "" && sk.Category != filter.Category {
			continue
		}
		result = append(result, sk.Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UsageCount > result[j].UsageCount
	})
	return result, nil
}

func (s *Skills) GetByID(_ context.Context, id string) (*domain.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk, ok := s.skills[id]
	if !ok {
		return nil, domain.ErrSkillNotFound
	}
	return sk.Clone(), nil
}

func (s *Skills) GetByNameEn(_ context.Context, nameEn string) (*domain.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if s.skills[id].NameEn == nameEn {
			return s.skills[id].Clone(), nil
		}
	}
	return nil, domain.ErrSkillNotFound
}

func (s *Skills) Create(_ context.Context, skill *domain.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.skills {
		if existing.NameEn == skill.NameEn {
			return domain.ErrDuplicateSkill
		}
	}
	skill.Version = 1
	s.skills[skill.ID] = skill.Clone()
	s.order = append(s.order, skill.ID)
	return nil
}

func (s *Skills) Update(_ context.Context, skill *domain.Skill, expectedVersion int, logs ...*domain.SkillChangeLog) error {
	if s.BeforeUpdate != nil {
		s.BeforeUpdate(skill.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	current, ok := s.skills[skill.ID]
	if !ok {
		return domain.ErrSkillNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	// Counters are owned by IncrementUsage.
	skill.Version = expectedVersion + 1
	skill.UsageCount = current.UsageCount
	skill.SuccessCount = current.SuccessCount
	s.skills[skill.ID] = skill.Clone()
	for _, l := range logs {
		c := *l
		s.changes = append(s.changes, &c)
	}
	return nil
}

// Bump simulates an out-of-process write by advancing the stored version.
func (s *Skills) Bump(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sk, ok := s.skills[id]; ok {
		sk.Version++
	}
}

func (s *Skills) IncrementUsage(_ context.Context, id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk, ok := s.skills[id]
	if !ok {
		return domain.ErrSkillNotFound
	}
	sk.UsageCount++
	if success {
		sk.SuccessCount++
	}
	return nil
}

func (s *Skills) Categories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var categories []string
	for _, id := range s.order {
		c := s.skills[id].Category
		if c != "" && !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}
	return categories, nil
}

func (s *Skills) ListChangeLogs(_ context.Context, skillID string, limit int) ([]*domain.SkillChangeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.SkillChangeLog
	for i := len(s.changes) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if skillID == "" || s.changes[i].SkillID == skillID {
			result = append(result, s.changes[i])
		}
	}
	return result, nil
}

func (s *Skills) LinkSourceEmail(_ context.Context, link *domain.SkillSourceEmail) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sources {
		if existing.SkillID == link.SkillID && existing.EmailID == link.EmailID && existing.ContributionType == link.ContributionType {
			return false, nil
		}
	}
	c := *link
	s.sources = append(s.sources, &c)
	return true, nil
}

func (s *Skills) ListSourceEmails(_ context.Context, skillID string, limit int) ([]*domain.SkillSourceEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.SkillSourceEmail
	for _, l := range s.sources {
		if l.SkillID == skillID {
			result = append(result, l)
		}
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Changes returns every stored change log, oldest first.
func (s *Skills) Changes() []*domain.SkillChangeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.SkillChangeLog(nil), s.changes...)
}

// Sources returns every stored source link, oldest first.
func (s *Skills) Sources() []*domain.SkillSourceEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.SkillSourceEmail(nil), s.sources...)
}

// Snapshots implements out.SnapshotStore.
type Snapshots struct {
	mu      sync.Mutex
	current *domain.SkillSnapshot
	Saves   int
	SaveErr error
}

var _ out.SnapshotStore = (*Snapshots)(nil)

func (s *Snapshots) Save(_ context.Context, snapshot *domain.SkillSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.current = snapshot
	s.Saves++
	return nil
}

func (s *Snapshots) Load(_ context.Context) (*domain.SkillSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, out.ErrNoSnapshot
	}
	return s.current, nil
}

// Emails implements out.EmailRepository.
type Emails struct {
	mu     sync.Mutex
	emails map[string]*domain.Email
	order  []string
}

func NewEmails(emails ...*domain.Email) *Emails {
	e := &Emails{emails: make(map[string]*domain.Email)}
	for _, em := range emails {
		c := *em
		e.emails[c.ID] = &c
		e.order = append(e.order, c.ID)
	}
	return e
}

var _ out.EmailRepository = (*Emails)(nil)

func (e *Emails) GetByID(_ context.Context, id string) (*domain.Email, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	em, ok := e.emails[id]
	if !ok {
		return nil, domain.ErrEmailNotFound
	}
	c := *em
	return &c, nil
}

func (e *Emails) List(_ context.Context, filter domain.EmailFilter) ([]*domain.Email, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result []*domain.Email
	for _, id := range e.order {
		em := e.emails[id]
		if filter.CustomerServiceOnly && !em.IsCustomerService {
			continue
		}
		if filter.Category != "" && em.CategoryValue() != filter.Category {
			continue
		}
		if filter.Unprocessed && em.Processed {
			continue
		}
		c := *em
		result = append(result, &c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (e *Emails) Create(_ context.Context, email *domain.Email) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := *email
	e.emails[c.ID] = &c
	e.order = append(e.order, c.ID)
	return nil
}

func (e *Emails) UpsertByExternalID(ctx context.Context, email *domain.Email) (bool, error) {
	e.mu.Lock()
	for _, em := range e.emails {
		if email.ExternalID != "" && em.ExternalID == email.ExternalID {
			e.mu.Unlock()
			return false, nil
		}
	}
	e.mu.Unlock()
	return true, e.Create(ctx, email)
}

func (e *Emails) UpdateClassification(_ context.Context, id string, c *domain.Classification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	em, ok := e.emails[id]
	if !ok {
		return domain.ErrEmailNotFound
	}
	em.ApplyClassification(c)
	return nil
}

func (e *Emails) MarkProcessed(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	em, ok := e.emails[id]
	if !ok {
		return domain.ErrEmailNotFound
	}
	em.Processed = true
	return nil
}

// Replies implements out.ReplyRepository.
type Replies struct {
	mu      sync.Mutex
	replies map[string]*domain.Reply
	order   []string
}

func NewReplies(replies ...*domain.Reply) *Replies {
	r := &Replies{replies: make(map[string]*domain.Reply)}
	for _, rp := range replies {
		c := *rp
		r.replies[c.ID] = &c
		r.order = append(r.order, c.ID)
	}
	return r
}

var _ out.ReplyRepository = (*Replies)(nil)

func (r *Replies) Create(_ context.Context, reply *domain.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *reply
	r.replies[c.ID] = &c
	r.order = append(r.order, c.ID)
	return nil
}

func (r *Replies) GetByID(_ context.Context, id string) (*domain.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.replies[id]
	if !ok {
		return nil, domain.ErrReplyNotFound
	}
	c := *rp
	return &c, nil
}

func (r *Replies) ListByEmail(_ context.Context, emailID string) ([]*domain.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Reply
	for _, id := range r.order {
		if rp := r.replies[id]; rp.EmailID == emailID {
			c := *rp
			result = append(result, &c)
		}
	}
	return result, nil
}

func (r *Replies) SetHumanEdited(_ context.Context, id, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.replies[id]
	if !ok {
		return domain.ErrReplyNotFound
	}
	rp.HumanEdited = &content
	return nil
}

func (r *Replies) MarkSent(_ context.Context, id string, sentAt time.Time, humanEdited *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.replies[id]
	if !ok {
		return domain.ErrReplyNotFound
	}
	rp.Sent = true
	rp.SentAt = &sentAt
	if humanEdited != nil {
		rp.HumanEdited = humanEdited
	}
	return nil
}

// All returns every stored reply in insertion order.
func (r *Replies) All() []*domain.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*domain.Reply, 0, len(r.order))
	for _, id := range r.order {
		c := *r.replies[id]
		result = append(result, &c)
	}
	return result
}

// Jobs implements out.JobRepository.
type Jobs struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	order []string
}

func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*domain.Job)}
}

var _ out.JobRepository = (*Jobs)(nil)

func (j *Jobs) Create(_ context.Context, job *domain.Job) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	c := *job
	j.jobs[c.ID] = &c
	j.order = append(j.order, c.ID)
	return nil
}

func (j *Jobs) Get(_ context.Context, id string) (*domain.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	c := *job
	return &c, nil
}

func (j *Jobs) List(_ context.Context, limit int) ([]*domain.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var result []*domain.Job
	for i := len(j.order) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		c := *j.jobs[j.order[i]]
		result = append(result, &c)
	}
	return result, nil
}

func (j *Jobs) Update(_ context.Context, job *domain.Job, from domain.JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	stored, ok := j.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Status != from || (stored.CancelRequested && job.Status.Finishes()) {
		return domain.ErrJobStateChanged
	}
	c := *job
	c.CancelRequested = c.CancelRequested || stored.CancelRequested
	j.jobs[c.ID] = &c
	return nil
}
