package http

import (
	"strings"

	"mailmind_server/core/domain"
	in "mailmind_server/core/port/in"
	"mailmind_server/pkg/apperr"
	"mailmind_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AgentHandler exposes the learning, execution and evolution agents.
type AgentHandler struct {
	execution in.ExecutionAgent
	evolution in.EvolutionAgent
	learning  in.LearningAgent
	skills    in.SkillService
	jobs      in.JobService
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(
	execution in.ExecutionAgent,
	evolution in.EvolutionAgent,
	learning in.LearningAgent,
	skills in.SkillService,
	jobs in.JobService,
) *AgentHandler {
	return &AgentHandler{
		execution: execution,
		evolution: evolution,
		learning:  learning,
		skills:    skills,
		jobs:      jobs,
	}
}

// Register registers agent routes
func (h *AgentHandler) Register(router fiber.Router) {
	agents := router.Group("/agents")
	agents.Post("/execute", h.Execute)
	agents.Post("/evolve", h.Evolve)
	agents.Post("/learn", h.Learn)
	agents.Post("/batch-execute", h.BatchExecute)
	agents.Get("/status", h.Status)
}

type executeRequest struct {
	EmailID string `json:"email_id"`
}

// Execute drafts a reply for one email and waits for the result. Run-level
// failures are reported in the result, not as HTTP errors.
// @Summary Execute agent on one email
// @Tags Agents
// @Accept json
// @Router /api/v1/agents/execute [post]
func (h *AgentHandler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	result := h.execution.Execute(c.UserContext(), &in.ExecuteRequest{EmailID: req.EmailID})
	return response.OK(c, result)
}

// Evolve analyzes a human-edited reply and refines the skills it used.
func (h *AgentHandler) Evolve(c *fiber.Ctx) error {
	var req domain.EvolvePayload
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	result := h.evolution.Evolve(c.UserContext(), &in.EvolveRequest{ReplyID: req.ReplyID})
	return response.OK(c, result)
}

// Learn starts a learning job
// @Summary Learn skills from historical emails
// @Tags Agents
// @Accept json
// @Success 202 {object} domain.Job
// @Router /api/v1/agents/learn [post]
func (h *AgentHandler) Learn(c *fiber.Ctx) error {
	var req domain.LearnPayload
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}
	if req.EmailCount < 0 {
		return apperr.InvalidInput("email_count", "must not be negative")
	}

	job, err := h.jobs.Submit(c.UserContext(), domain.JobLearning, req)
	if err != nil {
		return err
	}
	return response.Accepted(c, job)
}

func (h *AgentHandler) BatchExecute(c *fiber.Ctx) error {
	var req domain.BatchExecutePayload
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	ids := make([]string, 0, len(req.EmailIDs))
	for _, id := range req.EmailIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return apperr.MissingField("email_ids")
	}
	req.EmailIDs = ids

	job, err := h.jobs.Submit(c.UserContext(), domain.JobBatchExecution, req)
	if err != nil {
		return err
	}
	return response.Accepted(c, job)
}

type skillLibraryStats struct {
	TotalSkills  int `json:"total_skills"`
	ActiveSkills int `json:"active_skills"`
	Categories   int `json:"categories"`
}

type agentStatusResponse struct {
	SystemStatus string                        `json:"system_status"`
	Agents       map[string]domain.AgentStatus `json:"agents"`
	SkillLibrary skillLibraryStats             `json:"skill_library"`
}

// Status reports every agent and the size of the skill library. The system
// is healthy when no agent is busy.
func (h *AgentHandler) Status(c *fiber.Ctx) error {
	resp := agentStatusResponse{
		SystemStatus: "healthy",
		Agents: map[string]domain.AgentStatus{
			"learning":  h.learning.Status(),
			"execution": h.execution.Status(),
			"evolution": h.evolution.Status(),
		},
	}
	for _, s := range resp.Agents {
		if s.Status != "ready" {
			resp.SystemStatus = "busy"
		}
	}

	ctx := c.UserContext()
	skills, err := h.skills.List(ctx, domain.SkillFilter{})
	if err != nil {
		return err
	}
	categories, err := h.skills.Categories(ctx)
	if err != nil {
		return err
	}

	resp.SkillLibrary.TotalSkills = len(skills)
	resp.SkillLibrary.Categories = len(categories)
	for _, s := range skills {
		if s.IsActive {
			resp.SkillLibrary.ActiveSkills++
		}
	}
	return response.OK(c, resp)
}
