package batches

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/tinusleroux/crowdbiz-graph/pkg/context"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importer"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

// Handler serves batch inspection and operator actions
type Handler struct {
	service *importer.Service
	logger  ectologger.Logger
}

func NewHandler(service *importer.Service, logger ectologger.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers batch routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListBatches)
	g.POST("/recover", h.RecoverStale)
	g.GET("/:id", h.GetBatch, withBatchID)
	g.DELETE("/:id", h.DeleteBatch, withBatchID)
	g.GET("/:id/records", h.ListRecords, withBatchID)
	g.PUT("/:id/records/:record_id/decision", h.ResolveReview, withBatchID)
	g.POST("/:id/commit", h.Commit, withBatchID)
	g.POST("/:id/recover", h.Recover, withBatchID)
}

// withBatchID tags the request context with the batch in the path
func withBatchID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		c.SetRequest(req.WithContext(context.SetBatchID(req.Context(), c.Param("id"))))
		return next(c)
	}
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be an integer", name)
	}
	return n, nil
}

func pageParams(c echo.Context) (int, int, error) {
	limit, err := intParam(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// ListBatches lists batches, newest first
func (h *Handler) ListBatches(c echo.Context) error {
	ctx := c.Request().Context()

	limit, offset, err := pageParams(c)
	if err != nil {
		return err
	}
	filter := models.BatchFilter{Limit: limit, Offset: offset}
	if status := c.QueryParam("status"); status != "" {
		filter.Status = models.BatchStatus(status)
		switch filter.Status {
		case models.BatchStatusProcessing, models.BatchStatusReadyToMerge, models.BatchStatusCompleted, models.BatchStatusFailed:
		default:
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown status %q", status)
		}
	}

	batches, err := h.service.ListBatches(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, batches)
}

func (h *Handler) GetBatch(c echo.Context) error {
	batch, err := h.service.GetBatch(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, batch)
}

func (h *Handler) DeleteBatch(c echo.Context) error {
	if err := h.service.DeleteBatch(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListRecords lists the staged records of a batch in file order
func (h *Handler) ListRecords(c echo.Context) error {
	ctx := c.Request().Context()

	limit, offset, err := pageParams(c)
	if err != nil {
		return err
	}
	filter := models.StagingFilter{
		ValidationStatus: models.ValidationStatus(c.QueryParam("validation_status")),
		Limit:            limit,
		Offset:           offset,
	}
	if raw := c.QueryParam("merge_decision"); raw != "" {
		decision, ok := models.ParseMergeDecision(raw)
		if !ok {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown merge_decision %q", raw)
		}
		filter.MergeDecision = decision
	}

	records, err := h.service.ListRecords(ctx, c.Param("id"), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

// ResolveReview records an operator decision on one staged record
func (h *Handler) ResolveReview(c echo.Context) error {
	ctx := c.Request().Context()

	var req importer.ReviewDecision
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	req.BatchID = c.Param("id")
	req.RecordID = c.Param("record_id")
	if operator := context.GetOperator(ctx); operator != "" {
		req.Operator = operator
	}

	rec, err := h.service.ResolveReview(ctx, req)
	if err != nil {
		return err
	}
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   req.BatchID,
		"staging_id": req.RecordID,
		"decision":   req.Decision,
		"operator":   req.Operator,
	}).Info("Recorded review decision")
	return c.JSON(http.StatusOK, rec)
}

// Commit writes the decided records of a batch waiting on review
func (h *Handler) Commit(c echo.Context) error {
	result, err := h.service.Commit(c.Request().Context(), c.Param("id"))
	if err != nil && result == nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Recover fails one batch abandoned in processing
func (h *Handler) Recover(c echo.Context) error {
	ctx := c.Request().Context()
	olderThan, err := durationParam(c)
	if err != nil {
		return err
	}
	recovered, err := h.service.Recover(ctx, importer.RecoverRequest{
		BatchID:   c.Param("id"),
		OlderThan: olderThan,
		Operator:  context.GetOperator(ctx),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recovered[0])
}

// RecoverStale fails every batch abandoned in processing
func (h *Handler) RecoverStale(c echo.Context) error {
	ctx := c.Request().Context()
	olderThan, err := durationParam(c)
	if err != nil {
		return err
	}
	recovered, err := h.service.Recover(ctx, importer.RecoverRequest{
		OlderThan: olderThan,
		Operator:  context.GetOperator(ctx),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recovered)
}

func durationParam(c echo.Context) (time.Duration, error) {
	raw := c.QueryParam("older_than")
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "older_than must be a positive duration, got %q", raw)
	}
	return d, nil
}
