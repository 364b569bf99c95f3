// Package transactor runs commit work in a postgres transaction and reports
// failures to begin or commit it as import errors.
package transactor

import (
	"context"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

type Transactor struct {
	db database.DB
}

func New(db database.DB) *Transactor {
	return &Transactor{db: db}
}

// RunInTx runs fn in one transaction. Errors returned by fn pass through
// unchanged; a dropped connection while beginning or committing becomes a
// ConnectionError.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "transactor.Transactor.RunInTx")
	defer span.End()

	var fnErr error
	err := t.db.RunInTx(ctx, func(ctx context.Context) error {
		fnErr = fn(ctx)
		return fnErr
	})
	if err == nil || err == fnErr {
		return err
	}
	tracing.RecordError(span, err)
	if importerror.KindOf(err) == importerror.KindInternal && database.IsConnectionError(err) {
		return &importerror.ConnectionError{Op: "transaction", Err: err}
	}
	return err
}
