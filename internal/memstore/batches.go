package memstore

import (
	"context"
	"sort"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

func (s *Store) Create(_ context.Context, batch *models.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Create"); err != nil {
		return err
	}
	if batch.ID == "" {
		batch.ID = s.nextID("batch")
	}
	batch.CreatedAt, batch.UpdatedAt = s.now(), s.now()
	s.data.batches[batch.ID] = *batch
	return nil
}

// SeedBatch stores batch as is, keeping its timestamps.
func (s *Store) SeedBatch(batch models.ImportBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.batches[batch.ID] = batch
}

func (s *Store) UpdateProgress(_ context.Context, batch *models.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateProgress"); err != nil {
		return err
	}
	stored, ok := s.data.batches[batch.ID]
	if !ok {
		return notFound("import batch", batch.ID)
	}
	if !stored.Status.CanTransitionTo(batch.Status) {
		return &importerror.TransitionError{BatchID: batch.ID, From: string(stored.Status), To: string(batch.Status)}
	}
	stored.ProcessedRecords = batch.ProcessedRecords
	stored.ValidRecords = batch.ValidRecords
	stored.InvalidRecords = batch.InvalidRecords
	stored.MergedRecords = batch.MergedRecords
	stored.Status = batch.Status
	stored.ErrorMessage = batch.ErrorMessage
	stored.CompletedAt = batch.CompletedAt
	stored.Metadata = batch.Metadata
	stored.UpdatedAt = s.now()
	batch.UpdatedAt = stored.UpdatedAt
	s.data.batches[batch.ID] = stored
	return nil
}

func (s *Store) GetBatch(_ context.Context, id string) (*models.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetBatch"); err != nil {
		return nil, err
	}
	b, ok := s.data.batches[id]
	if !ok {
		return nil, notFound("import batch", id)
	}
	return &b, nil
}

// ListBatches returns the newest batches first.
func (s *Store) ListBatches(_ context.Context, filter models.BatchFilter) ([]*models.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListBatches"); err != nil {
		return nil, err
	}
	var out []*models.ImportBatch
	for _, b := range s.data.batches {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.UpdatedBefore != nil && !b.UpdatedAt.Before(*filter.UpdatedBefore) {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteBatch removes the batch and its staging records.
func (s *Store) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteBatch"); err != nil {
		return err
	}
	if _, ok := s.data.batches[id]; !ok {
		return notFound("import batch", id)
	}
	delete(s.data.batches, id)
	for k, r := range s.data.records {
		if r.BatchID == id {
			delete(s.data.records, k)
		}
	}
	return nil
}
