package http

import (
	in "mailmind_server/core/port/in"
	"mailmind_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// JobHandler exposes background job state.
type JobHandler struct {
	service in.JobService
}

func NewJobHandler(service in.JobService) *JobHandler {
	return &JobHandler{service: service}
}

func (h *JobHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")
	jobs.Get("/", h.List)
	jobs.Get("/:id", h.Get)
	jobs.Post("/:id/cancel", h.Cancel)
}

func (h *JobHandler) List(c *fiber.Ctx) error {
	page := response.GetPagination(c, 50, 200)
	jobs, err := h.service.List(c.UserContext(), page.Limit)
	if err != nil {
		return err
	}
	return response.List(c, jobs, len(jobs), page.Limit, 0)
}

func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, job)
}

// Cancel requests cancellation; a finished job yields 409.
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	job, err := h.service.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Accepted(c, job)
}
