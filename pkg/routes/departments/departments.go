package departments

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/tinusleroux/crowdbiz-graph/pkg/departments"
)

type Handler struct {
	service *departments.Service
}

func NewHandler(service *departments.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/classify", h.Classify)
	g.POST("/classify", h.Ensure)
}

type ClassifyResponse struct {
	JobTitle   string `json:"job_title"`
	Department string `json:"department"`
}

type ClassifyRequest struct {
	JobTitle string `json:"job_title" validate:"required"`
}

// List returns the standardized departments
func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, departments.Departments())
}

// Classify classifies a job title without storing it
func (h *Handler) Classify(c echo.Context) error {
	title := strings.TrimSpace(c.QueryParam("job_title"))
	if title == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "job_title is required")
	}
	return c.JSON(http.StatusOK, ClassifyResponse{JobTitle: title, Department: departments.Classify(title)})
}

// Ensure returns the stored department of a job title, storing a new
// classification the first time the title is seen
func (h *Handler) Ensure(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	title := strings.TrimSpace(req.JobTitle)
	dept, err := h.service.Ensure(c.Request().Context(), title)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ClassifyResponse{JobTitle: title, Department: dept})
}
