package in

import (
	"context"

	"mailmind_server/core/domain"
)

// ExecutionAgent drafts replies for incoming emails.
type ExecutionAgent interface {
	Execute(ctx context.Context, req *ExecuteRequest) *domain.ExecutionResult
	ExecuteBatch(ctx context.Context, emailIDs []string, progress domain.ProgressFunc) *domain.BatchResult
	Status() domain.AgentStatus
}

type ExecuteRequest struct {
	EmailID    string
	OnProgress domain.ProgressFunc
}

// EvolutionAgent refines skills from human edits.
type EvolutionAgent interface {
	Evolve(ctx context.Context, req *EvolveRequest) *domain.EvolutionResult
	Status() domain.AgentStatus
}

type EvolveRequest struct {
	ReplyID    string
	OnProgress domain.ProgressFunc
}

// LearningAgent extracts skills from historical emails.
type LearningAgent interface {
	Learn(ctx context.Context, req *LearnRequest) *domain.LearningResult
	Status() domain.AgentStatus
}

type LearnRequest struct {
	EmailCount int
	Force      bool
	Categories []string
	OnProgress domain.ProgressFunc
}

// Classifier labels an email. It never fails; errors degrade to a
// non-customer-service verdict.
type Classifier interface {
	Classify(ctx context.Context, email *domain.Email) *domain.Classification
}
