package transactor

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
)

type fakeDB struct {
	database.DB
	beginErr  error
	commitErr error
}

func (f *fakeDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return f.commitErr
}

func TestRunInTx(t *testing.T) {
	conflict := &importerror.MergeConflictError{Op: "create person"}

	tests := []struct {
		name     string
		db       *fakeDB
		fnErr    error
		expected importerror.Kind
		same     bool
	}{
		{
			name:     "fn error passes through",
			db:       &fakeDB{},
			fnErr:    conflict,
			expected: importerror.KindMergeConflict,
			same:     true,
		},
		{
			name:     "begin on a dead connection",
			db:       &fakeDB{beginErr: fmt.Errorf("error while beginning transaction: %w", driver.ErrBadConn)},
			expected: importerror.KindConnection,
		},
		{
			name:     "commit on a dead connection",
			db:       &fakeDB{commitErr: fmt.Errorf("error while committing transaction: %w", driver.ErrBadConn)},
			expected: importerror.KindConnection,
		},
		{
			name:     "other commit failure stays internal",
			db:       &fakeDB{commitErr: errors.New("serialization failure")},
			expected: importerror.KindInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.db).RunInTx(context.Background(), func(ctx context.Context) error {
				return tt.fnErr
			})
			assert.Error(t, err)
			assert.Equal(t, tt.expected, importerror.KindOf(err))
			if tt.same {
				assert.Same(t, tt.fnErr, err)
			}
		})
	}

	t.Run("success", func(t *testing.T) {
		called := false
		err := New(&fakeDB{}).RunInTx(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, called)
	})
}
