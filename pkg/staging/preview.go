package staging

import (
	"context"
	"io"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const previewSampleRows = 5

// PreviewResult describes an upload without staging it
type PreviewResult struct {
	EntityType       models.EntityType   `json:"entity_type"`
	Headers          []string            `json:"headers"`
	RemovedColumns   []string            `json:"removed_columns"`
	IgnoredColumns   []string            `json:"ignored_columns"`
	SuggestedMapping map[string]string   `json:"suggested_mapping"`
	AvailableFields  []string            `json:"available_fields"`
	TotalRows        int                 `json:"total_rows"`
	SampleRows       []map[string]string `json:"sample_rows"`
}

// Preview reads the upload and reports how its columns would be treated,
// with a few privacy-filtered sample rows. Nothing is persisted.
func (l *Loader) Preview(ctx context.Context, entityType models.EntityType, fileName string, body io.Reader) (*PreviewResult, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Loader.Preview")
	defer span.End()

	if entityType.StagingTable() == "" {
		return nil, importerror.NewMalformedInput("unknown entity type "+string(entityType), 0, nil)
	}

	table, err := ReadTable(fileName, body)
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).Debug("Preview rejected malformed upload")
		return nil, err
	}

	plan := l.plan(entityType, table.Headers, nil)
	result := &PreviewResult{
		EntityType:       entityType,
		Headers:          table.Headers,
		RemovedColumns:   nonNil(plan.removed),
		IgnoredColumns:   nonNil(plan.ignored),
		SuggestedMapping: plan.mapping,
		AvailableFields:  FieldNames(entityType),
		SampleRows:       []map[string]string{},
	}
	for _, row := range table.Rows {
		raw, empty := rowMap(table, row)
		if empty {
			continue
		}
		result.TotalRows++
		if len(result.SampleRows) < previewSampleRows {
			result.SampleRows = append(result.SampleRows, plan.policy.Apply(raw).Record)
		}
	}
	return result, nil
}
