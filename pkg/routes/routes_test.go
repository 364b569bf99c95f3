package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinusleroux/crowdbiz-graph/internal/memstore"
	"github.com/tinusleroux/crowdbiz-graph/pkg/departments"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importer"
	"github.com/tinusleroux/crowdbiz-graph/pkg/matching"
	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/middleware"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/privacy"
	"github.com/tinusleroux/crowdbiz-graph/pkg/routes"
	"github.com/tinusleroux/crowdbiz-graph/pkg/routes/health"
	"github.com/tinusleroux/crowdbiz-graph/pkg/staging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/validation"
)

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

func strPtr(s string) *string { return &s }

type testAPI struct {
	t     *testing.T
	e     *echo.Echo
	store *memstore.Store
}

func newTestAPI(t *testing.T, checker *health.Checker, maxUpload int64) *testAPI {
	t.Helper()
	store := memstore.New()
	readers := matching.Readers{Persons: store, Organizations: store, Roles: store, News: store}
	resolver := matching.NewResolver(testLogger, readers, store, matching.DefaultConfig())
	stores := merging.Stores{
		Staging:       store,
		Batches:       store,
		Persons:       store,
		Organizations: store,
		Roles:         store,
		News:          store,
		Sources:       store,
	}
	deps := departments.NewService(testLogger, store, nil, 0)
	executor := merging.NewExecutor(testLogger, store, stores, deps, resolver)
	loader := staging.NewLoader(testLogger, store, privacy.Default())
	svc := importer.NewService(testLogger, loader, validation.New(), resolver, executor, store, store, nil, importer.Options{})

	e := routes.New(testLogger, svc, deps, checker, routes.Options{ServiceName: "crowdbiz-graph-test", MaxUploadBytes: maxUpload})
	return &testAPI{t: t, e: e, store: store}
}

func (a *testAPI) upload(path, fileName, content string, fields map[string]string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(a.t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(a.t, err)
		_, err = part.Write([]byte(content))
		require.NoError(a.t, err)
	}
	require.NoError(a.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestImportReviewCommitFlow(t *testing.T) {
	api := newTestAPI(t, nil, 0)
	john := api.store.SeedPerson(models.Person{
		FirstName: strPtr("John"),
		LastName:  strPtr("Smith"),
		FullName:  "John Smith",
	})

	rec := api.upload("/api/v1/imports?entity_type=person&source=league-directory", "people.csv",
		"first_name,last_name,email\nJon,Smith,jon@example.com\n", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.ImportResult](t, rec)
	require.NotEmpty(t, result.BatchID)
	assert.Equal(t, models.BatchStatusReadyToMerge, result.Status)
	assert.Equal(t, 1, result.ManualReview)
	assert.Contains(t, result.RemovedColumns, "email")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	batchPath := "/api/v1/batches/" + result.BatchID

	rec = api.request(http.MethodGet, batchPath, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decode[models.ImportBatch](t, rec)
	assert.Equal(t, models.BatchStatusReadyToMerge, batch.Status)

	rec = api.request(http.MethodGet, batchPath+"/records?merge_decision=manual_review", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]models.StagingRecord](t, rec)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].MergeCandidateID)
	assert.Equal(t, john.ID, *records[0].MergeCandidateID)

	decisionPath := batchPath + "/records/" + records[0].ID + "/decision"

	t.Run("rejects decisions outside update new skip", func(t *testing.T) {
		rec := api.request(http.MethodPut, decisionPath, map[string]any{"decision": "manual_review"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("commit before review leaves the batch waiting", func(t *testing.T) {
		rec := api.request(http.MethodPost, batchPath+"/commit", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, models.BatchStatusReadyToMerge, decode[models.ImportResult](t, rec).Status)
	})

	rec = api.request(http.MethodPut, decisionPath, map[string]any{"decision": "update"},
		map[string]string{middleware.HeaderOperator: "ops@crowdbiz"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reviewed := decode[models.StagingRecord](t, rec)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "ops@crowdbiz", *reviewed.ReviewedBy)

	rec = api.request(http.MethodPost, batchPath+"/commit", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	committed := decode[models.ImportResult](t, rec)
	assert.Equal(t, models.BatchStatusCompleted, committed.Status)
	assert.Equal(t, 1, committed.Merged)

	persons := api.store.Persons()
	require.Len(t, persons, 1)
	assert.Equal(t, "Jon", *persons[0].FirstName)

	t.Run("completed batches are listed by status", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/api/v1/batches?status=completed", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		batches := decode[[]models.ImportBatch](t, rec)
		require.Len(t, batches, 1)
		assert.Equal(t, result.BatchID, batches[0].ID)
	})

	t.Run("delete removes the batch", func(t *testing.T) {
		rec := api.request(http.MethodDelete, batchPath, nil, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = api.request(http.MethodGet, batchPath, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decode[middleware.ErrorResponse](t, rec)
		assert.NotEmpty(t, body.RequestID)
	})
}

func TestImportRejections(t *testing.T) {
	api := newTestAPI(t, nil, 1024)

	tests := []struct {
		name     string
		path     string
		fileName string
		content  string
		fields   map[string]string
		expected int
	}{
		{
			name:     "unknown entity type",
			path:     "/api/v1/imports?entity_type=venue&source=x",
			fileName: "v.csv",
			content:  "name\nAT&T Stadium\n",
			expected: http.StatusBadRequest,
		},
		{
			name:     "missing file",
			path:     "/api/v1/imports?entity_type=organization&source=x",
			expected: http.StatusBadRequest,
		},
		{
			name:     "missing source",
			path:     "/api/v1/imports?entity_type=organization",
			fileName: "orgs.csv",
			content:  "name\nDallas Cowboys\n",
			expected: http.StatusBadRequest,
		},
		{
			name:     "mapping is not json",
			path:     "/api/v1/imports?entity_type=organization&source=x",
			fileName: "orgs.csv",
			content:  "name\nDallas Cowboys\n",
			fields:   map[string]string{"mapping": "name=name"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "upload too large",
			path:     "/api/v1/imports?entity_type=organization&source=x",
			fileName: "orgs.csv",
			content:  "name\n" + strings.Repeat("Dallas Cowboys\n", 200),
			expected: http.StatusRequestEntityTooLarge,
		},
		{
			name:     "malformed csv creates no batch",
			path:     "/api/v1/imports?entity_type=organization&source=x",
			fileName: "orgs.csv",
			content:  "",
			expected: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.upload(tt.path, tt.fileName, tt.content, tt.fields)
			assert.Equal(t, tt.expected, rec.Code, rec.Body.String())
		})
	}

	rec := api.request(http.MethodGet, "/api/v1/batches", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.ImportBatch](t, rec))
}

func TestImportPreview(t *testing.T) {
	api := newTestAPI(t, nil, 0)

	rec := api.upload("/api/v1/imports/preview?entity_type=organization", "orgs.csv",
		"Name,Website,Contact Email\nDallas Cowboys,dallascowboys.com,info@dallascowboys.com\n", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[staging.PreviewResult](t, rec)
	assert.Contains(t, preview.RemovedColumns, "Contact Email")

	rec = api.request(http.MethodGet, "/api/v1/batches", nil, nil)
	assert.Empty(t, decode[[]models.ImportBatch](t, rec))
}

func TestBatchQueryValidation(t *testing.T) {
	api := newTestAPI(t, nil, 0)

	tests := []struct {
		name string
		path string
	}{
		{"unknown status", "/api/v1/batches?status=done"},
		{"bad limit", "/api/v1/batches?limit=ten"},
		{"unknown merge decision", "/api/v1/batches/b1/records?merge_decision=maybe"},
		{"negative recover age", "/api/v1/batches/recover?older_than=-1h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if strings.Contains(tt.path, "recover") {
				method = http.MethodPost
			}
			rec := api.request(method, tt.path, nil, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	t.Run("recovering a missing batch is a 404", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/api/v1/batches/missing/recover", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("recovering with nothing stale returns an empty list", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/api/v1/batches/recover", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]models.ImportBatch](t, rec))
	})
}

func TestDepartmentRoutes(t *testing.T) {
	api := newTestAPI(t, nil, 0)

	rec := api.request(http.MethodGet, "/api/v1/departments", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]string](t, rec), len(departments.Departments()))

	rec = api.request(http.MethodGet, "/api/v1/departments/classify?job_title=Director%20of%20Stadium%20Operations", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]string](t, rec)
	assert.Equal(t, departments.StadiumOperations, got["department"])

	rec = api.request(http.MethodGet, "/api/v1/departments/classify", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.request(http.MethodPost, "/api/v1/departments/classify", map[string]string{"job_title": "VP of Sales"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[map[string]string](t, rec)
	assert.Equal(t, departments.SalesPartnerships, got["department"])

	rec = api.request(http.MethodPost, "/api/v1/departments/classify", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthRoutes(t *testing.T) {
	var dbErr error
	checker := health.NewChecker(health.PingerFunc(func(context.Context) error { return dbErr }), "test")
	api := newTestAPI(t, checker, 0)

	rec := api.request(http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	dbErr = errors.New("connection refused")
	rec = api.request(http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status := decode[health.HealthStatus](t, rec)
	assert.Equal(t, "connection refused", status.Checks["database"].Message)

	rec = api.request(http.MethodGet, "/api/v1/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checker.SetReady(true)
	rec = api.request(http.MethodGet, "/api/v1/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.request(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crowdbiz")
}
