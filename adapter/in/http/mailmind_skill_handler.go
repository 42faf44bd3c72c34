package http

import (
	"strings"

	"mailmind_server/core/domain"
	in "mailmind_server/core/port/in"
	"mailmind_server/pkg/apperr"
	"mailmind_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// SkillHandler handles HTTP requests for the skill library
type SkillHandler struct {
	service in.SkillService
}

// NewSkillHandler creates a new SkillHandler
func NewSkillHandler(service in.SkillService) *SkillHandler {
	return &SkillHandler{service: service}
}

// Register registers skill routes
func (h *SkillHandler) Register(router fiber.Router) {
	skills := router.Group("/skills")

	// Static paths before /:id
	skills.Get("/categories", h.Categories)
	skills.Post("/match", h.Match)
	skills.Post("/export", h.Export)
	skills.Post("/import", h.Import)

	// CRUD
	skills.Get("/", h.List)
	skills.Post("/", h.Create)
	skills.Get("/:id", h.Get)
	skills.Put("/:id", h.Update)
	skills.Delete("/:id", h.Deactivate)

	// Provenance
	skills.Get("/:id/source-emails", h.SourceEmails)
	skills.Get("/:id/changes", h.Changes)
}

// List lists skills ordered by usage
// @Summary List skills
// @Tags Skills
// @Param active_only query bool false "Only active skills (default true)"
// @Param category query string false "Filter by category"
// @Router /api/v1/skills [get]
func (h *SkillHandler) List(c *fiber.Ctx) error {
	filter := domain.SkillFilter{
		ActiveOnly: c.QueryBool("active_only", true),
		Category:   c.Query("category"),
	}

	skills, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return response.List(c, skills, len(skills), 0, 0)
}

func (h *SkillHandler) Get(c *fiber.Ctx) error {
	skill, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, skill)
}

func (h *SkillHandler) Create(c *fiber.Ctx) error {
	var req in.CreateSkillRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	skill, err := h.service.Create(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return response.Created(c, skill)
}

func (h *SkillHandler) Update(c *fiber.Ctx) error {
	var req in.UpdateSkillRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	skill, err := h.service.Update(c.UserContext(), c.Params("id"), &req)
	if err != nil {
		return err
	}
	return response.OK(c, skill)
}

// Deactivate soft-deletes a skill; it stays in exports and history.
func (h *SkillHandler) Deactivate(c *fiber.Ctx) error {
	if err := h.service.Deactivate(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return response.NoContent(c)
}

func (h *SkillHandler) Categories(c *fiber.Ctx) error {
	categories, err := h.service.Categories(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, categories)
}

type matchRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Match ranks active skills against free text
// @Summary Match skills
// @Tags Skills
// @Accept json
// @Router /api/v1/skills/match [post]
func (h *SkillHandler) Match(c *fiber.Ctx) error {
	var req matchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperr.MissingField("text")
	}

	var category *string
	if req.Category != "" {
		category = &req.Category
	}

	matches, err := h.service.Match(c.UserContext(), req.Text, category)
	if err != nil {
		return err
	}
	return response.OK(c, matches)
}

func (h *SkillHandler) Export(c *fiber.Ctx) error {
	snapshot, err := h.service.ExportSnapshot(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"total":       snapshot.Total,
		"exported_at": snapshot.ExportedAt,
	})
}

func (h *SkillHandler) Import(c *fiber.Ctx) error {
	imported, err := h.service.ImportSnapshot(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"imported": imported})
}

func (h *SkillHandler) SourceEmails(c *fiber.Ctx) error {
	page := response.GetPagination(c, 20, 200)
	links, err := h.service.SourceEmails(c.UserContext(), c.Params("id"), page.Limit)
	if err != nil {
		return err
	}
	return response.List(c, links, len(links), page.Limit, 0)
}

func (h *SkillHandler) Changes(c *fiber.Ctx) error {
	page := response.GetPagination(c, 50, 500)
	logs, err := h.service.ChangeLog(c.UserContext(), c.Params("id"), page.Limit)
	if err != nil {
		return err
	}
	return response.List(c, logs, len(logs), page.Limit, 0)
}
