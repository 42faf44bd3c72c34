package http

import (
	"mailmind_server/core/domain"
	in "mailmind_server/core/port/in"
	"mailmind_server/pkg/apperr"
	"mailmind_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// EmailHandler handles HTTP requests for stored emails and their replies
type EmailHandler struct {
	emails  in.EmailService
	replies in.ReplyService
	jobs    in.JobService
}

// NewEmailHandler creates a new EmailHandler. jobs may be nil, which
// disables background sync.
func NewEmailHandler(emails in.EmailService, replies in.ReplyService, jobs in.JobService) *EmailHandler {
	return &EmailHandler{emails: emails, replies: replies, jobs: jobs}
}

// Register registers email and reply routes
func (h *EmailHandler) Register(router fiber.Router) {
	emails := router.Group("/emails")
	emails.Get("/", h.List)
	emails.Post("/", h.Create)
	emails.Post("/sync", h.Sync)
	emails.Get("/:id", h.Get)
	emails.Post("/:id/classify", h.Classify)
	emails.Get("/:id/replies", h.Replies)

	replies := router.Group("/replies")
	replies.Get("/:id", h.GetReply)
	replies.Post("/:id/feedback", h.Feedback)
	replies.Post("/:id/send", h.Send)
}

// List lists emails newest first
// @Summary List emails
// @Tags Emails
// @Param customer_service query bool false "Only customer-service emails"
// @Param category query string false "Filter by category"
// @Param unprocessed query bool false "Only emails without a draft"
// @Param limit query int false "Limit (default 50)"
// @Param offset query int false "Offset"
// @Router /api/v1/emails [get]
func (h *EmailHandler) List(c *fiber.Ctx) error {
	page := response.GetPagination(c, 50, 500)
	filter := domain.EmailFilter{
		CustomerServiceOnly: c.QueryBool("customer_service", false),
		Category:            c.Query("category"),
		Unprocessed:         c.QueryBool("unprocessed", false),
		Limit:               page.Limit,
		Offset:              page.Offset,
	}

	emails, err := h.emails.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return response.List(c, emails, len(emails), page.Limit, page.Offset)
}

func (h *EmailHandler) Get(c *fiber.Ctx) error {
	email, err := h.emails.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, email)
}

// Create stores an inbound email handed over by another system.
func (h *EmailHandler) Create(c *fiber.Ctx) error {
	var req in.CreateEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	email, err := h.emails.Create(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return response.Created(c, email)
}

func (h *EmailHandler) Classify(c *fiber.Ctx) error {
	email, err := h.emails.Classify(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, email)
}

// Sync pulls recent inbox messages in the background.
func (h *EmailHandler) Sync(c *fiber.Ctx) error {
	if h.jobs == nil {
		return apperr.Unavailable("job queue")
	}

	var payload domain.MailSyncPayload
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}
	if payload.Limit < 0 {
		return apperr.InvalidInput("limit", "must not be negative")
	}

	job, err := h.jobs.Submit(c.UserContext(), domain.JobMailSync, payload)
	if err != nil {
		return err
	}
	return response.Accepted(c, job)
}

func (h *EmailHandler) Replies(c *fiber.Ctx) error {
	replies, err := h.replies.ListByEmail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.List(c, replies, len(replies), 0, 0)
}

func (h *EmailHandler) GetReply(c *fiber.Ctx) error {
	reply, err := h.replies.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, reply)
}

type feedbackRequest struct {
	EditedContent string `json:"edited_content"`
}

// Feedback records the human-edited version of a draft. The AI draft is kept.
func (h *EmailHandler) Feedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	reply, err := h.replies.SubmitFeedback(c.UserContext(), c.Params("id"), req.EditedContent)
	if err != nil {
		return err
	}
	return response.OK(c, reply)
}

type sendRequest struct {
	Content string `json:"content"`
}

// Send delivers a reply. Without content the human edit, then the AI draft is sent.
func (h *EmailHandler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}

	reply, err := h.replies.Send(c.UserContext(), c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return response.OK(c, reply)
}
