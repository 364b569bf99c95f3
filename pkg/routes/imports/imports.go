package imports

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importer"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

// Handler serves file uploads
type Handler struct {
	service        *importer.Service
	maxUploadBytes int64
}

func NewHandler(service *importer.Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

// Register registers import routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Import)
	g.POST("/preview", h.Preview)
}

type upload struct {
	entityType models.EntityType
	fileName   string
	file       multipart.File
}

func (h *Handler) readUpload(c echo.Context) (*upload, error) {
	entityType, err := models.ParseEntityType(c.QueryParam("entity_type"))
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.maxUploadBytes > 0 {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.maxUploadBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, httperror.NewHTTPErrorf(http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", h.maxUploadBytes)
		}
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	file, err := header.Open()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "could not open uploaded file")
	}
	return &upload{entityType: entityType, fileName: header.Filename, file: file}, nil
}

// Preview reports how an upload's columns would be mapped and filtered
func (h *Handler) Preview(c echo.Context) error {
	ctx := c.Request().Context()

	up, err := h.readUpload(c)
	if err != nil {
		return err
	}
	defer up.file.Close()

	result, err := h.service.Preview(ctx, up.entityType, up.fileName, up.file)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Import stages, validates, resolves and commits an upload. A batch that
// failed part way still answers 200 with its result.
func (h *Handler) Import(c echo.Context) error {
	ctx := c.Request().Context()

	up, err := h.readUpload(c)
	if err != nil {
		return err
	}
	defer up.file.Close()

	source := strings.TrimSpace(c.QueryParam("source"))
	if source == "" {
		source = strings.TrimSpace(c.FormValue("source"))
	}
	if source == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source is required")
	}

	var mapping map[string]string
	if raw := c.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "mapping must be a JSON object of header to field")
		}
	}

	result, err := h.service.Import(ctx, importer.ImportRequest{
		EntityType: up.entityType,
		SourceName: source,
		FileName:   up.fileName,
		Body:       up.file,
		Mapping:    mapping,
	})
	if err != nil && result.BatchID == "" {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
