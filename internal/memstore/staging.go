package memstore

import (
	"context"
	"sort"

	"github.com/lib/pq"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

func cloneRecord(r models.StagingRecord) models.StagingRecord {
	if r.Person != nil {
		p := *r.Person
		p.Tags = append(pq.StringArray(nil), p.Tags...)
		r.Person = &p
	}
	if r.Organization != nil {
		o := *r.Organization
		r.Organization = &o
	}
	if r.Role != nil {
		x := *r.Role
		r.Role = &x
	}
	if r.News != nil {
		n := *r.News
		r.News = &n
	}
	r.ValidationErrors = append(pq.StringArray(nil), r.ValidationErrors...)
	r.ParseErrors = nil
	return r
}

func (s *Store) InsertRecords(_ context.Context, records []*models.StagingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertRecords"); err != nil {
		return err
	}
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = s.nextID("staging")
		}
		rec.CreatedAt, rec.UpdatedAt = s.now(), s.now()
		s.data.records[rec.ID] = cloneRecord(*rec)
	}
	return nil
}

// saveRecord replaces the stored copy of rec, which must exist.
func (s *Store) saveRecord(method string, rec *models.StagingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(method); err != nil {
		return err
	}
	if _, ok := s.data.records[rec.ID]; !ok {
		return notFound("staging record", rec.ID)
	}
	rec.UpdatedAt = s.now()
	s.data.records[rec.ID] = cloneRecord(*rec)
	return nil
}

func (s *Store) SaveResolution(_ context.Context, rec *models.StagingRecord) error {
	return s.saveRecord("SaveResolution", rec)
}

func (s *Store) MarkMerged(_ context.Context, rec *models.StagingRecord, productionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkMerged"); err != nil {
		return err
	}
	stored, ok := s.data.records[rec.ID]
	if !ok {
		return notFound("staging record", rec.ID)
	}
	stored.ValidationStatus = models.ValidationStatusMerged
	stored.ProductionID = &productionID
	stored.CommitError = nil
	if rec.Role != nil && stored.Role != nil {
		stored.Role.PersonID = rec.Role.PersonID
		stored.Role.OrganizationID = rec.Role.OrganizationID
	}
	stored.UpdatedAt = s.now()
	s.data.records[rec.ID] = stored
	return nil
}

func (s *Store) SetCommitError(_ context.Context, rec *models.StagingRecord, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetCommitError"); err != nil {
		return err
	}
	stored, ok := s.data.records[rec.ID]
	if !ok {
		return notFound("staging record", rec.ID)
	}
	stored.CommitError = &message
	stored.UpdatedAt = s.now()
	s.data.records[rec.ID] = stored
	rec.CommitError = &message
	return nil
}

func (s *Store) GetRecord(_ context.Context, entityType models.EntityType, id string) (*models.StagingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRecord"); err != nil {
		return nil, err
	}
	r, ok := s.data.records[id]
	if !ok || r.EntityType != entityType {
		return nil, notFound("staging record", id)
	}
	r = cloneRecord(r)
	return &r, nil
}

func (s *Store) list(batchID string, entityType models.EntityType, keep func(r models.StagingRecord) bool) []*models.StagingRecord {
	var out []*models.StagingRecord
	for _, r := range s.data.records {
		if r.BatchID != batchID || r.EntityType != entityType || !keep(r) {
			continue
		}
		c := cloneRecord(r)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

func (s *Store) ListRecords(_ context.Context, batchID string, entityType models.EntityType, filter models.StagingFilter) ([]*models.StagingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListRecords"); err != nil {
		return nil, err
	}
	out := s.list(batchID, entityType, func(r models.StagingRecord) bool {
		if filter.ValidationStatus != "" && r.ValidationStatus != filter.ValidationStatus {
			return false
		}
		if filter.MergeDecision != "" && r.Decision() != filter.MergeDecision {
			return false
		}
		if filter.Committable && !(r.ValidationStatus == models.ValidationStatusValid && r.Decision().IsCommittable()) {
			return false
		}
		return true
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

func (s *Store) ListCommittable(ctx context.Context, batchID string, entityType models.EntityType) ([]*models.StagingRecord, error) {
	if err := s.failOnly("ListCommittable"); err != nil {
		return nil, err
	}
	return s.ListRecords(ctx, batchID, entityType, models.StagingFilter{Committable: true})
}

func (s *Store) CountAwaitingReview(_ context.Context, batchID string, entityType models.EntityType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CountAwaitingReview"); err != nil {
		return 0, err
	}
	return len(s.list(batchID, entityType, func(r models.StagingRecord) bool {
		d := r.Decision()
		return r.ValidationStatus == models.ValidationStatusValid && (d == "" || d == models.MergeDecisionManualReview)
	})), nil
}

func (s *Store) failOnly(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail(method)
}
