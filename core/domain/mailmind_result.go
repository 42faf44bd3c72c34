package domain

import "time"

// RunStatus is the explicit outcome every agent operation reports.
type RunStatus string

const (
	StatusCompleted    RunStatus = "completed"
	StatusFailed       RunStatus = "failed"
	StatusNoChanges    RunStatus = "no_changes"
	StatusSkillUpdated RunStatus = "skill_updated"
	StatusEscalated    RunStatus = "escalated"
	StatusDraftReady   RunStatus = "draft_ready"
)

// Escalation thresholds on the overall confidence of an email.
const (
	EscalationThreshold     = 0.3
	HighConfidenceThreshold = 0.7
)

// ExecutionResult is the outcome of processing one email.
type ExecutionResult struct {
	RunID              string       `json:"job_id"`
	Success            bool         `json:"success"`
	Status             RunStatus    `json:"status"`
	EmailID            string       `json:"email_id"`
	ReplyID            string       `json:"reply_id,omitempty"`
	AIDraft            string       `json:"ai_draft,omitempty"`
	Matches            []SkillMatch `json:"matched_skills"`
	Confidence         float64      `json:"confidence"`
	RequiresEscalation bool         `json:"requires_escalation"`
	EscalationReason   string       `json:"escalation_reason,omitempty"`
	Errors             []string     `json:"errors,omitempty"`
}

// BatchItem summarizes one email of a batch execution.
type BatchItem struct {
	EmailID string    `json:"email_id"`
	Success bool      `json:"success"`
	Status  RunStatus `json:"status"`
	ReplyID string    `json:"reply_id,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// BatchResult is the outcome of a sequential batch execution.
type BatchResult struct {
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Results   []BatchItem `json:"results"`
}

// AppliedChange describes one improvement that mutated a skill.
type AppliedChange struct {
	ChangeType ChangeType `json:"change_type"`
	SkillID    string     `json:"skill_id"`
	SkillName  string     `json:"skill_name"`
	Detail     string     `json:"detail"`
}

// EvolutionResult is the outcome of learning from one human-edited reply.
type EvolutionResult struct {
	RunID   string          `json:"job_id"`
	Success bool            `json:"success"`
	Status  RunStatus       `json:"status"`
	ReplyID string          `json:"reply_id"`
	Changes []AppliedChange `json:"changes"`
	Message string          `json:"message,omitempty"`
	Summary string          `json:"analysis_summary,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}

// LearningResult is the outcome of extracting skills from historical emails.
type LearningResult struct {
	RunID               string    `json:"job_id"`
	Success             bool      `json:"success"`
	Status              RunStatus `json:"status"`
	EmailsProcessed     int       `json:"emails_processed"`
	CategoriesProcessed int       `json:"categories_processed"`
	SkillsCreated       int       `json:"skills_created"`
	SkillsUpdated       int       `json:"skills_updated"`
	CollaborativeSkills []string  `json:"collaborative_skills"`
	Message             string    `json:"message,omitempty"`
	Errors              []string  `json:"errors,omitempty"`
}

// RunInfo tracks one agent run.
type RunInfo struct {
	RunID       string     `json:"run_id"`
	AgentName   string     `json:"agent_name"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	TotalSteps  int        `json:"total_steps"`
	Message     string     `json:"message,omitempty"`
}

// AgentStatus is the public view of an agent and its runs.
type AgentStatus struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CurrentRuns []RunInfo  `json:"current_runs"`
	TotalRuns   int        `json:"total_runs"`
	LastRun     *time.Time `json:"last_run,omitempty"`
}

// ProgressFunc receives side-channel progress of a run.
type ProgressFunc func(current, total int, message string)
