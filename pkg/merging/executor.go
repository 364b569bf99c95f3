// Package merging applies resolved staging records to the production tables,
// one transaction per record.
package merging

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/matching"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

// Get* lookups return a 404 error when the row does not exist.

type StagingStore interface {
	ListCommittable(ctx context.Context, batchID string, entityType models.EntityType) ([]*models.StagingRecord, error)
	GetRecord(ctx context.Context, entityType models.EntityType, id string) (*models.StagingRecord, error)
	MarkMerged(ctx context.Context, rec *models.StagingRecord, productionID string) error
	SetCommitError(ctx context.Context, rec *models.StagingRecord, message string) error
	CountAwaitingReview(ctx context.Context, batchID string, entityType models.EntityType) (int, error)
}

type BatchWriter interface {
	UpdateProgress(ctx context.Context, batch *models.ImportBatch) error
}

type PersonStore interface {
	GetPerson(ctx context.Context, id string) (*models.Person, error)
	CreatePerson(ctx context.Context, p *models.Person) error
	UpdatePerson(ctx context.Context, p *models.Person) error
}

type OrganizationStore interface {
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error)
	CreateOrganization(ctx context.Context, o *models.Organization) error
	UpdateOrganization(ctx context.Context, o *models.Organization) error
}

type RoleStore interface {
	GetRole(ctx context.Context, id string) (*models.Role, error)
	FindCurrentRoles(ctx context.Context, personID string, organizationID string) ([]*models.Role, error)
	CreateRole(ctx context.Context, r *models.Role) error
	UpdateRole(ctx context.Context, r *models.Role) error
}

type NewsStore interface {
	GetNews(ctx context.Context, id string) (*models.NewsItem, error)
	CreateNews(ctx context.Context, n *models.NewsItem) error
	UpdateNews(ctx context.Context, n *models.NewsItem) error
}

type SourceStore interface {
	EnsureSource(ctx context.Context, name string, sourceType string) (*models.Source, error)
}

// DepartmentEnsurer returns the standardized department of a job title,
// recording the mapping when it is new.
type DepartmentEnsurer interface {
	Ensure(ctx context.Context, jobTitle string) (string, error)
}

// RoleRefResolver resolves the person and organization of a staged role
type RoleRefResolver interface {
	ResolveRoleRefs(ctx context.Context, role *models.RoleFields) (matching.RoleRefs, []string, error)
}

// Transactor runs fn in one database transaction
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CommitHook runs after a record's transaction committed. Errors are logged
// and never undo the commit.
type CommitHook interface {
	AfterCommit(ctx context.Context, c Committed) error
}

// Committed describes one record written to production
type Committed struct {
	BatchID      string               `json:"batch_id"`
	StagingID    string               `json:"staging_id"`
	EntityType   models.EntityType    `json:"entity_type"`
	Decision     models.MergeDecision `json:"decision"`
	ProductionID string               `json:"production_id"`
	Changed      []string             `json:"changed,omitempty"`
	Person       *models.Person       `json:"person,omitempty"`
	Organization *models.Organization `json:"organization,omitempty"`
	Role         *models.Role         `json:"role,omitempty"`
	ClosedRoles  []*models.Role       `json:"closed_roles,omitempty"`
	News         *models.NewsItem     `json:"news,omitempty"`
}

type Stores struct {
	Staging       StagingStore
	Batches       BatchWriter
	Persons       PersonStore
	Organizations OrganizationStore
	Roles         RoleStore
	News          NewsStore
	Sources       SourceStore
}

// CommitSummary is the outcome of one commit run over a batch
type CommitSummary struct {
	Attempted      int
	Merged         int
	Failed         int
	AwaitingReview int
	Errors         []models.RecordError
	Fatal          error
}

type Executor struct {
	logger      ectologger.Logger
	tx          Transactor
	stores      Stores
	departments DepartmentEnsurer
	refs        RoleRefResolver
	hooks       []CommitHook
	now         func() time.Time
}

func NewExecutor(
	logger ectologger.Logger,
	tx Transactor,
	stores Stores,
	departments DepartmentEnsurer,
	refs RoleRefResolver,
	hooks ...CommitHook,
) *Executor {
	return &Executor{
		logger:      logger,
		tx:          tx,
		stores:      stores,
		departments: departments,
		refs:        refs,
		hooks:       hooks,
		now:         time.Now,
	}
}

// Commit applies every committable record of the batch in file order, each in
// its own transaction. A failing record is recorded against itself and the run
// continues; a connection failure stops the run. The batch counters and status
// are written afterwards and the batch is updated in place.
func (e *Executor) Commit(ctx context.Context, batch *models.ImportBatch) (*CommitSummary, error) {
	ctx, span := tracing.StartBatchSpan(ctx, "merging.Executor.Commit", batch.ID, string(batch.EntityType))
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    batch.ID,
		"entity_type": batch.EntityType,
	})

	summary := &CommitSummary{}
	records, err := e.stores.Staging.ListCommittable(ctx, batch.ID, batch.EntityType)
	if err != nil {
		log.WithError(err).Error("Failed to list committable records")
		summary.Fatal = err
		return summary, e.finish(ctx, batch, summary, err)
	}

	written := make(map[string]string, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			summary.Fatal = &importerror.ConnectionError{Op: "commit batch", Err: err}
			break
		}
		summary.Attempted++

		recLog := log.WithFields(map[string]any{
			"row_number": rec.RowNumber,
			"staging_id": rec.ID,
			"decision":   rec.Decision(),
		})

		var committed Committed
		err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
			c, err := e.apply(ctx, batch, rec, written)
			if err != nil {
				return err
			}
			if err := e.stores.Staging.MarkMerged(ctx, rec, c.ProductionID); err != nil {
				return err
			}
			committed = c
			return nil
		})
		if err != nil {
			if importerror.IsFatal(err) {
				recLog.WithError(err).Error("Lost database connection while committing")
				summary.Fatal = err
				break
			}
			recLog.WithError(err).Warn("Failed to commit record")
			summary.Failed++
			summary.Errors = append(summary.Errors, models.RecordError{
				RowNumber: rec.RowNumber,
				StagingID: rec.ID,
				Kind:      string(importerror.KindOf(err)),
				Messages:  []string{err.Error()},
			})
			if serr := e.stores.Staging.SetCommitError(ctx, rec, err.Error()); serr != nil {
				recLog.WithError(serr).Error("Failed to record commit error")
				if importerror.IsFatal(serr) {
					summary.Fatal = serr
					break
				}
			}
			continue
		}

		summary.Merged++
		written[rec.ID] = committed.ProductionID
		rec.ValidationStatus = models.ValidationStatusMerged
		rec.ProductionID = &committed.ProductionID
		rec.CommitError = nil
		recLog.WithField("production_id", committed.ProductionID).Debug("Committed record")

		for _, hook := range e.hooks {
			if herr := hook.AfterCommit(ctx, committed); herr != nil {
				recLog.WithError(herr).Warn("Commit hook failed")
			}
		}
	}

	if summary.Fatal == nil {
		awaiting, err := e.stores.Staging.CountAwaitingReview(ctx, batch.ID, batch.EntityType)
		if err != nil {
			log.WithError(err).Error("Failed to count records awaiting review")
			summary.Fatal = err
		}
		summary.AwaitingReview = awaiting
	}
	if summary.Fatal != nil {
		tracing.RecordError(span, summary.Fatal)
	}

	log.WithFields(map[string]any{
		"attempted":       summary.Attempted,
		"merged":          summary.Merged,
		"failed":          summary.Failed,
		"awaiting_review": summary.AwaitingReview,
	}).Info("Commit run finished")

	return summary, e.finish(ctx, batch, summary, summary.Fatal)
}

// finish sets the batch status from the run and persists the counters.
func (e *Executor) finish(ctx context.Context, batch *models.ImportBatch, summary *CommitSummary, fatal error) error {
	batch.MergedRecords += summary.Merged
	status, message := Outcome(summary)
	if !batch.Status.CanTransitionTo(status) {
		message = fmt.Sprintf("illegal batch transition %s -> %s", batch.Status, status)
		status = models.BatchStatusFailed
	}
	batch.Status = status
	batch.ErrorMessage = nil
	if message != "" {
		batch.ErrorMessage = &message
	}
	if status.IsTerminal() {
		now := e.now().UTC()
		batch.CompletedAt = &now
	}

	if err := e.stores.Batches.UpdateProgress(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("batch_id", batch.ID).Error("Failed to update batch progress")
		if fatal == nil {
			return err
		}
	}
	return fatal
}

// Outcome derives the batch status of a commit run: failed on a fatal error,
// ready_to_merge while records await review, failed when every attempted
// record failed, completed otherwise.
func Outcome(summary *CommitSummary) (models.BatchStatus, string) {
	switch {
	case summary.Fatal != nil:
		return models.BatchStatusFailed, summary.Fatal.Error()
	case summary.AwaitingReview > 0:
		return models.BatchStatusReadyToMerge, ""
	case summary.Attempted > 0 && summary.Merged == 0:
		return models.BatchStatusFailed, fmt.Sprintf("all %d attempted records failed to commit", summary.Attempted)
	default:
		return models.BatchStatusCompleted, ""
	}
}
