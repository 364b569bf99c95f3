// Package staging reads uploaded files into privacy-filtered, typed staging
// record drafts and records the import batch they belong to.
package staging

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/privacy"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

// BatchCreator persists a new import batch
type BatchCreator interface {
	Create(ctx context.Context, batch *models.ImportBatch) error
}

type LoadRequest struct {
	SourceName string
	FileName   string
	EntityType models.EntityType
	Body       io.Reader
	// Mapping overrides suggested header -> field assignments.
	Mapping map[string]string
}

// Report says what happened to the columns of an upload
type Report struct {
	Headers          []string          `json:"headers"`
	RemovedColumns   []string          `json:"removed_columns"`
	SanitizedColumns []string          `json:"sanitized_columns"`
	IgnoredColumns   []string          `json:"ignored_columns"`
	Mapping          map[string]string `json:"mapping"`
}

type LoadResult struct {
	Batch   *models.ImportBatch
	Records []*models.StagingRecord
	Report  Report
}

type Loader struct {
	logger  ectologger.Logger
	batches BatchCreator
	policy  *privacy.Policy
}

func NewLoader(logger ectologger.Logger, batches BatchCreator, policy *privacy.Policy) *Loader {
	if policy == nil {
		policy = privacy.Default()
	}
	return &Loader{
		logger:  logger,
		batches: batches,
		policy:  policy,
	}
}

// columnPlan is how the columns of one upload are treated
type columnPlan struct {
	mapping map[string]string
	removed []string
	ignored []string
	policy  *privacy.Policy
}

func (l *Loader) plan(entityType models.EntityType, headers []string, overrides map[string]string) columnPlan {
	allowed, removed := l.policy.Columns(headers)

	mapping := SuggestColumns(entityType, allowed)
	if len(overrides) > 0 {
		allowedSet := make(map[string]bool, len(allowed))
		for _, h := range allowed {
			allowedSet[h] = true
		}
		for header, field := range overrides {
			if !allowedSet[header] {
				continue
			}
			if field == "" {
				delete(mapping, header)
				continue
			}
			if _, ok := lookupField(entityType, field); !ok {
				continue
			}
			for h, f := range mapping {
				if f == field && h != header {
					delete(mapping, h)
				}
			}
			mapping[header] = field
		}
	}

	var ignored, verbatim []string
	for _, h := range allowed {
		field, ok := mapping[h]
		if !ok {
			ignored = append(ignored, h)
			continue
		}
		if f, _ := lookupField(entityType, field); f.verbatim() {
			verbatim = append(verbatim, h)
		}
	}

	return columnPlan{
		mapping: mapping,
		removed: removed,
		ignored: ignored,
		policy:  l.policy.With(privacy.WithVerbatim(verbatim...)),
	}
}

// Load parses the upload, filters every row and decodes the drafts, then
// persists the batch header. Nothing is persisted when the file is malformed.
func (l *Loader) Load(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Loader.Load")
	defer span.End()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"file_name":   req.FileName,
		"entity_type": req.EntityType,
	})

	if req.EntityType.StagingTable() == "" {
		return nil, importerror.NewMalformedInput("unknown entity type "+string(req.EntityType), 0, nil)
	}

	table, err := ReadTable(req.FileName, req.Body)
	if err != nil {
		log.WithError(err).Warn("Rejected malformed upload")
		tracing.RecordError(span, err)
		return nil, err
	}

	plan := l.plan(req.EntityType, table.Headers, req.Mapping)
	if len(plan.removed) > 0 {
		log.Warnf("Filtered sensitive columns: %s", strings.Join(plan.removed, ", "))
	}

	sanitized := map[string]bool{}
	records := make([]*models.StagingRecord, 0, len(table.Rows))
	for i, row := range table.Rows {
		raw, empty := rowMap(table, row)
		if empty {
			continue
		}
		filtered := plan.policy.Apply(raw)
		for _, c := range filtered.SanitizedColumns {
			sanitized[c] = true
		}
		records = append(records, Decode(req.EntityType, i+1, filtered.Record, plan.mapping))
	}

	report := Report{
		Headers:          table.Headers,
		RemovedColumns:   nonNil(plan.removed),
		SanitizedColumns: sortedKeys(sanitized),
		IgnoredColumns:   nonNil(plan.ignored),
		Mapping:          plan.mapping,
	}
	if len(report.SanitizedColumns) > 0 {
		log.Warnf("Sanitized contact details in columns: %s", strings.Join(report.SanitizedColumns, ", "))
	}

	sourceName := strings.TrimSpace(req.SourceName)
	if sourceName == "" {
		sourceName = strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	}

	batch := &models.ImportBatch{
		ID:           uuid.NewString(),
		SourceName:   sourceName,
		SourceType:   table.Format,
		EntityType:   req.EntityType,
		FileName:     filepath.Base(req.FileName),
		TotalRecords: len(records),
		Status:       models.BatchStatusProcessing,
		Metadata: database.NewJSONB(models.BatchMetadata{
			RemovedColumns:   report.RemovedColumns,
			SanitizedColumns: report.SanitizedColumns,
			IgnoredColumns:   report.IgnoredColumns,
			ColumnMapping:    report.Mapping,
		}),
	}
	if err := l.batches.Create(ctx, batch); err != nil {
		log.WithError(err).Error("Failed to create import batch")
		tracing.RecordError(span, err)
		return nil, err
	}
	for _, rec := range records {
		rec.ID = uuid.NewString()
		rec.BatchID = batch.ID
	}

	log.WithFields(map[string]any{
		"batch_id":        batch.ID,
		"total_records":   batch.TotalRecords,
		"removed_columns": len(report.RemovedColumns),
		"ignored_columns": len(report.IgnoredColumns),
	}).Info("Loaded upload into new import batch")

	return &LoadResult{Batch: batch, Records: records, Report: report}, nil
}

// rowMap keys a data row by header. empty is true when every cell is blank.
func rowMap(table *Table, row []string) (map[string]string, bool) {
	m := make(map[string]string, len(table.Headers))
	empty := true
	for i, h := range table.Headers {
		v := table.Cell(row, i)
		if strings.TrimSpace(v) != "" {
			empty = false
		}
		m[h] = v
	}
	return m, empty
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
