package importerror

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestFromDB(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		fatal    bool
		status   int
		contains string
	}{
		{
			name:     "unique violation is a merge conflict",
			err:      &pq.Error{Code: "23505", Constraint: "person_linkedin_url_key"},
			kind:     KindMergeConflict,
			status:   http.StatusConflict,
			contains: "person_linkedin_url_key",
		},
		{
			name:   "bad connection is fatal",
			err:    fmt.Errorf("query: %w", driver.ErrBadConn),
			kind:   KindConnection,
			fatal:  true,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "admin shutdown is fatal",
			err:    &pq.Error{Code: "57P01"},
			kind:   KindConnection,
			fatal:  true,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "missing row is a 404",
			err:    sql.ErrNoRows,
			kind:   KindInternal,
			status: http.StatusNotFound,
		},
		{
			name:   "anything else is internal",
			err:    errors.New("syntax error at or near"),
			kind:   KindInternal,
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDB("create person", tt.err)
			assert.Equal(t, tt.kind, KindOf(got))
			assert.Equal(t, tt.fatal, IsFatal(got))

			status, ok := StatusCode(got)
			if !ok {
				assert.True(t, httperror.IsHTTPError(got))
				status = httperror.GetStatusCode(got)
			}
			assert.Equal(t, tt.status, status)
			if tt.contains != "" {
				assert.Contains(t, got.Error(), tt.contains)
			}
		})
	}

	assert.NoError(t, FromDB("noop", nil))
}

func TestKinds(t *testing.T) {
	malformed := NewMalformedInput("unterminated quote", 4, nil)
	assert.Equal(t, "malformed input at line 4: unterminated quote", malformed.Error())
	assert.Equal(t, KindMalformedInput, KindOf(fmt.Errorf("load: %w", malformed)))
	assert.True(t, IsFatal(malformed))
	assert.Equal(t, "malformed input: file is empty", NewMalformedInput("file is empty", 0, nil).Error())

	invalid := &ValidationError{RowNumber: 3, Messages: []string{"first_name is required", "last_name is required"}}
	assert.Equal(t, KindValidation, KindOf(invalid))
	assert.False(t, IsFatal(invalid))
	assert.Equal(t, "row 3 failed validation: first_name is required; last_name is required", invalid.Error())

	conflict := &MergeConflictError{Op: "update organization"}
	assert.Equal(t, "merge conflict during update organization: duplicate value", conflict.Error())
	assert.False(t, IsFatal(conflict))

	status, ok := StatusCode(NewMalformedInput("x", 0, nil))
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNotFound(t *testing.T) {
	err := NotFound("import batch", "b1")
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "import batch b1 not found")
}
