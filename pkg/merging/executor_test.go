package merging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinusleroux/crowdbiz-graph/internal/memstore"
	"github.com/tinusleroux/crowdbiz-graph/pkg/departments"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/matching"
	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func date(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

type recordingHook struct {
	committed []merging.Committed
	err       error
}

func (h *recordingHook) AfterCommit(_ context.Context, c merging.Committed) error {
	h.committed = append(h.committed, c)
	return h.err
}

type fixture struct {
	store    *memstore.Store
	executor *merging.Executor
	hook     *recordingHook
	batch    *models.ImportBatch
}

func newFixture(t *testing.T, entityType models.EntityType) *fixture {
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
	hook := &recordingHook{}
	deps := departments.NewService(testLogger, store, nil, 0)
	executor := merging.NewExecutor(testLogger, store, stores, deps, resolver, hook)

	batch := &models.ImportBatch{
		ID:         "batch-1",
		SourceName: "league-directory",
		SourceType: "csv",
		EntityType: entityType,
		Status:     models.BatchStatusProcessing,
	}
	require.NoError(t, store.Create(context.Background(), batch))
	return &fixture{store: store, executor: executor, hook: hook, batch: batch}
}

func (f *fixture) stage(t *testing.T, records ...*models.StagingRecord) {
	t.Helper()
	require.NoError(t, f.store.InsertRecords(context.Background(), records))
}

func (f *fixture) commit(t *testing.T) *merging.CommitSummary {
	t.Helper()
	summary, err := f.executor.Commit(context.Background(), f.batch)
	require.NoError(t, err)
	return summary
}

func (f *fixture) record(t *testing.T, entityType models.EntityType, id string) *models.StagingRecord {
	t.Helper()
	rec, err := f.store.GetRecord(context.Background(), entityType, id)
	require.NoError(t, err)
	return rec
}

func decided(id string, row int, entityType models.EntityType, decision models.MergeDecision) *models.StagingRecord {
	d := decision
	return &models.StagingRecord{
		StagingMeta: models.StagingMeta{
			ID:               id,
			BatchID:          "batch-1",
			RowNumber:        row,
			ValidationStatus: models.ValidationStatusValid,
			MergeDecision:    &d,
		},
		EntityType: entityType,
	}
}

func org(id string, row int, decision models.MergeDecision, name string) *models.StagingRecord {
	rec := decided(id, row, models.EntityTypeOrganization, decision)
	rec.Organization = &models.OrganizationFields{Name: strPtr(name)}
	return rec
}

func TestExecutor_Organizations(t *testing.T) {
	t.Run("in-batch duplicate updates the row written for the first record", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		first := org("s1", 1, models.MergeDecisionNew, "Dallas Cowboys")
		first.Organization.OrgType = strPtr("Team")
		second := org("s2", 2, models.MergeDecisionUpdate, "dallas cowboys")
		second.DuplicateOfID = strPtr("s1")
		second.Organization.Website = strPtr("https://www.dallascowboys.com")
		f.stage(t, first, second)

		summary := f.commit(t)
		assert.Equal(t, 2, summary.Merged)
		assert.Zero(t, summary.Failed)

		orgs := f.store.Organizations()
		require.Len(t, orgs, 1)
		// last writer wins, including the name casing
		assert.Equal(t, "dallas cowboys", orgs[0].Name)
		assert.Equal(t, "Team", *orgs[0].OrgType)
		assert.Equal(t, "https://www.dallascowboys.com", *orgs[0].Website)

		for _, id := range []string{"s1", "s2"} {
			rec := f.record(t, models.EntityTypeOrganization, id)
			assert.Equal(t, models.ValidationStatusMerged, rec.ValidationStatus)
			assert.Equal(t, orgs[0].ID, *rec.ProductionID)
		}

		assert.Equal(t, models.BatchStatusCompleted, f.batch.Status)
		assert.Equal(t, 2, f.batch.MergedRecords)
		assert.NotNil(t, f.batch.CompletedAt)
		require.Len(t, f.hook.committed, 2)
		assert.Equal(t, []string{"name", "website"}, f.hook.committed[1].Changed)
	})

	t.Run("only valid records decided new or update are committed", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		invalid := org("s1", 1, models.MergeDecisionNew, "Bad Row FC")
		invalid.ValidationStatus = models.ValidationStatusInvalid
		skipped := org("s2", 2, models.MergeDecisionSkip, "Skipped FC")
		review := org("s3", 3, models.MergeDecisionManualReview, "Review FC")
		ok := org("s4", 4, models.MergeDecisionNew, "Frisco RoughRiders")
		f.stage(t, invalid, skipped, review, ok)

		summary := f.commit(t)
		assert.Equal(t, 1, summary.Attempted)
		assert.Equal(t, 1, summary.Merged)
		assert.Equal(t, 1, summary.AwaitingReview)

		orgs := f.store.Organizations()
		require.Len(t, orgs, 1)
		assert.Equal(t, "Frisco RoughRiders", orgs[0].Name)
		assert.Equal(t, models.ValidationStatusInvalid, f.record(t, models.EntityTypeOrganization, "s1").ValidationStatus)
		assert.Equal(t, models.BatchStatusReadyToMerge, f.batch.Status)
		assert.Nil(t, f.batch.CompletedAt)
	})

	t.Run("parent organization is linked by name", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		nfl := f.store.SeedOrganization(models.Organization{Name: "NFL"})
		rec := org("s1", 1, models.MergeDecisionNew, "Dallas Cowboys")
		rec.Organization.ParentName = strPtr("nfl")
		missing := org("s2", 2, models.MergeDecisionNew, "London Monarchs")
		missing.Organization.ParentName = strPtr("World League")
		f.stage(t, rec, missing)

		summary := f.commit(t)
		assert.Equal(t, 1, summary.Merged)
		require.Len(t, summary.Errors, 1)
		assert.Equal(t, 2, summary.Errors[0].RowNumber)
		assert.Equal(t, []string{`parent organization "World League" not found`}, summary.Errors[0].Messages)

		created, err := f.store.FindOrganizationByName(context.Background(), "Dallas Cowboys")
		require.NoError(t, err)
		assert.Equal(t, nfl.ID, *created.ParentID)
	})
}

func TestExecutor_Failures(t *testing.T) {
	t.Run("a uniqueness conflict fails only its record", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		f.store.SeedOrganization(models.Organization{Name: "Dallas Cowboys"})
		f.stage(t,
			org("s1", 1, models.MergeDecisionNew, "DALLAS COWBOYS"),
			org("s2", 2, models.MergeDecisionNew, "Texas Rangers"),
		)

		summary := f.commit(t)
		assert.Equal(t, 2, summary.Attempted)
		assert.Equal(t, 1, summary.Merged)
		assert.Equal(t, 1, summary.Failed)
		require.Len(t, summary.Errors, 1)
		assert.Equal(t, string(importerror.KindMergeConflict), summary.Errors[0].Kind)
		assert.Equal(t, "s1", summary.Errors[0].StagingID)

		failed := f.record(t, models.EntityTypeOrganization, "s1")
		assert.Equal(t, models.ValidationStatusValid, failed.ValidationStatus)
		require.NotNil(t, failed.CommitError)
		assert.Contains(t, *failed.CommitError, "merge conflict")
		assert.Nil(t, failed.ProductionID)

		assert.Len(t, f.store.Organizations(), 2)
		assert.Equal(t, models.BatchStatusCompleted, f.batch.Status)
	})

	t.Run("batch fails when every attempted record fails", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		f.store.SeedOrganization(models.Organization{Name: "Dallas Cowboys"})
		f.stage(t, org("s1", 1, models.MergeDecisionNew, "Dallas Cowboys"))

		summary := f.commit(t)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, models.BatchStatusFailed, f.batch.Status)
		assert.Equal(t, "all 1 attempted records failed to commit", *f.batch.ErrorMessage)
	})

	t.Run("connection loss stops the run", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		f.stage(t,
			org("s1", 1, models.MergeDecisionNew, "Dallas Cowboys"),
			org("s2", 2, models.MergeDecisionNew, "Texas Rangers"),
		)
		f.store.FailOn("CreateOrganization", &importerror.ConnectionError{Op: "create organization", Err: errors.New("connection reset by peer")})

		summary, err := f.executor.Commit(context.Background(), f.batch)
		require.Error(t, err)
		assert.Equal(t, importerror.KindConnection, importerror.KindOf(err))
		assert.Equal(t, 1, summary.Attempted)
		assert.Zero(t, summary.Merged)

		assert.Equal(t, models.BatchStatusFailed, f.batch.Status)
		require.NotNil(t, f.batch.ErrorMessage)
		assert.Contains(t, *f.batch.ErrorMessage, "database unavailable during create organization")

		stored, err := f.store.GetBatch(context.Background(), "batch-1")
		require.NoError(t, err)
		assert.Equal(t, models.BatchStatusFailed, stored.Status)
	})

	t.Run("a failed record rolls back its partial writes", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		f.stage(t, org("s1", 1, models.MergeDecisionNew, "Dallas Cowboys"))
		f.store.FailOn("MarkMerged", errors.New("staging row locked"))

		summary := f.commit(t)
		assert.Equal(t, 1, summary.Failed)
		assert.Empty(t, f.store.Organizations())
		assert.Empty(t, f.hook.committed)
	})

	t.Run("a batch failed by another run keeps its status", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		recovered := *f.batch
		recovered.Status = models.BatchStatusFailed
		f.store.SeedBatch(recovered)
		f.stage(t, org("s1", 1, models.MergeDecisionNew, "Dallas Cowboys"))

		_, err := f.executor.Commit(context.Background(), f.batch)
		var transition *importerror.TransitionError
		require.ErrorAs(t, err, &transition)
		assert.Equal(t, "failed", transition.From)
		assert.Equal(t, "completed", transition.To)
		status, ok := importerror.StatusCode(err)
		assert.True(t, ok)
		assert.Equal(t, 409, status)

		stored, err := f.store.GetBatch(context.Background(), "batch-1")
		require.NoError(t, err)
		assert.Equal(t, models.BatchStatusFailed, stored.Status)
	})

	t.Run("hook errors never fail the record", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeOrganization)
		f.hook.err = errors.New("kafka unavailable")
		f.stage(t, org("s1", 1, models.MergeDecisionNew, "Dallas Cowboys"))

		summary := f.commit(t)
		assert.Equal(t, 1, summary.Merged)
		assert.Len(t, f.hook.committed, 1)
	})
}

func TestExecutor_Roles(t *testing.T) {
	type seeded struct {
		person *models.Person
		org    *models.Organization
	}
	seed := func(f *fixture) seeded {
		return seeded{
			person: f.store.SeedPerson(models.Person{FirstName: strPtr("Stephen"), LastName: strPtr("Jones"), FullName: "Stephen Jones"}),
			org:    f.store.SeedOrganization(models.Organization{Name: "Dallas Cowboys"}),
		}
	}
	role := func(id string, row int, s seeded, title string, start string) *models.StagingRecord {
		rec := decided(id, row, models.EntityTypeRole, models.MergeDecisionNew)
		rec.Role = &models.RoleFields{
			PersonFullName:   strPtr("Stephen Jones"),
			OrganizationName: strPtr("Dallas Cowboys"),
			JobTitle:         strPtr(title),
			StartDate:        date(start),
			PersonID:         &s.person.ID,
			OrganizationID:   &s.org.ID,
		}
		return rec
	}
	current := func(roles []models.Role) []models.Role {
		var out []models.Role
		for _, r := range roles {
			if r.IsCurrent {
				out = append(out, r)
			}
		}
		return out
	}

	t.Run("a new current role closes the previous one", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeRole)
		s := seed(f)
		old := f.store.SeedRole(models.Role{PersonID: s.person.ID, OrganizationID: s.org.ID, JobTitle: "Executive Vice President", StartDate: date("2005-01-01"), IsCurrent: true})
		f.stage(t, role("s1", 1, s, "Chief Operating Officer", "2019-06-01"))

		summary := f.commit(t)
		require.Equal(t, 1, summary.Merged)

		roles := f.store.Roles()
		require.Len(t, roles, 2)
		open := current(roles)
		require.Len(t, open, 1)
		assert.Equal(t, "Chief Operating Officer", open[0].JobTitle)
		assert.True(t, open[0].IsExecutive)
		assert.Nil(t, open[0].EndDate)
		require.NotNil(t, open[0].SourceID)

		closed, err := f.store.GetRole(context.Background(), old.ID)
		require.NoError(t, err)
		assert.False(t, closed.IsCurrent)
		assert.Equal(t, "2019-06-01", closed.EndDate.Format(time.DateOnly))

		assert.Equal(t, departments.ExecutiveLeadership, f.store.Departments()["chief operating officer"])
		sources := f.store.Sources()
		require.Len(t, sources, 1)
		assert.Equal(t, "league-directory", sources[0].Name)
		assert.Equal(t, *open[0].SourceID, sources[0].ID)

		require.Len(t, f.hook.committed, 1)
		assert.Len(t, f.hook.committed[0].ClosedRoles, 1)
	})

	t.Run("closes on today when the new start is not later", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeRole)
		s := seed(f)
		f.store.SeedRole(models.Role{PersonID: s.person.ID, OrganizationID: s.org.ID, JobTitle: "President", StartDate: date("2021-01-01"), IsCurrent: true})
		f.stage(t, role("s1", 1, s, "Chief Executive Officer", "2020-01-01"))

		f.commit(t)
		today := time.Now().UTC().Format(time.DateOnly)
		for _, r := range f.store.Roles() {
			if r.JobTitle == "President" {
				assert.False(t, r.IsCurrent)
				assert.Equal(t, today, r.EndDate.Format(time.DateOnly))
			}
		}
		assert.Len(t, current(f.store.Roles()), 1)
	})

	t.Run("a role starting after today closes on its own start", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeRole)
		s := seed(f)
		start := time.Now().UTC().AddDate(1, 0, 0).Format(time.DateOnly)
		f.store.SeedRole(models.Role{PersonID: s.person.ID, OrganizationID: s.org.ID, JobTitle: "President", StartDate: date(start), IsCurrent: true})
		f.stage(t, role("s1", 1, s, "Chief Executive Officer", "2020-01-01"))

		f.commit(t)
		for _, r := range f.store.Roles() {
			if r.JobTitle == "President" {
				assert.False(t, r.IsCurrent)
				require.NotNil(t, r.EndDate)
				assert.Equal(t, start, r.EndDate.Format(time.DateOnly))
				assert.False(t, r.EndDate.Before(*r.StartDate))
			}
		}
		assert.Len(t, current(f.store.Roles()), 1)
	})

	t.Run("a historical role leaves the current role alone", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeRole)
		s := seed(f)
		f.store.SeedRole(models.Role{PersonID: s.person.ID, OrganizationID: s.org.ID, JobTitle: "Chief Operating Officer", StartDate: date("2019-01-01"), IsCurrent: true})
		rec := role("s1", 1, s, "Vice President of Sales", "2008-01-01")
		rec.Role.EndDate = date("2012-12-31")
		f.stage(t, rec)

		f.commit(t)
		open := current(f.store.Roles())
		require.Len(t, open, 1)
		assert.Equal(t, "Chief Operating Officer", open[0].JobTitle)
		assert.Len(t, f.store.Roles(), 2)
	})

	t.Run("explicit executive flag wins over the department", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeRole)
		s := seed(f)
		rec := role("s1", 1, s, "Director of Ticketing", "2020-01-01")
		rec.Role.IsExecutive = boolPtr(true)
		rec.Role.SourceName = strPtr("press-release")
		f.stage(t, rec)

		f.commit(t)
		roles := f.store.Roles()
		require.Len(t, roles, 1)
		assert.True(t, roles[0].IsExecutive)
		assert.Equal(t, departments.TicketingOperations, f.store.Departments()["director of ticketing"])
		assert.Equal(t, "press-release", f.store.Sources()[0].Name)
	})

	t.Run("update merges onto the matched role", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeRole)
		s := seed(f)
		existing := f.store.SeedRole(models.Role{PersonID: s.person.ID, OrganizationID: s.org.ID, JobTitle: "COO", StartDate: date("2019-06-01"), IsCurrent: true, IsExecutive: true})
		rec := role("s1", 1, s, "Chief Operating Officer", "2019-06-01")
		rec.MergeDecision = ptrDecision(models.MergeDecisionUpdate)
		rec.MergeCandidateID = &existing.ID
		rec.Role.EndDate = date("2024-02-01")
		f.stage(t, rec)

		f.commit(t)
		updated, err := f.store.GetRole(context.Background(), existing.ID)
		require.NoError(t, err)
		assert.Equal(t, "Chief Operating Officer", updated.JobTitle)
		assert.False(t, updated.IsCurrent)
		assert.True(t, updated.IsExecutive)
		assert.Equal(t, "2024-02-01", updated.EndDate.Format(time.DateOnly))
	})

	t.Run("unresolved references are resolved again at commit", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeRole)
		s := seed(f)
		rec := role("s1", 1, s, "General Counsel", "2020-01-01")
		rec.Role.PersonID, rec.Role.OrganizationID = nil, nil
		missing := role("s2", 2, s, "General Counsel", "2021-01-01")
		missing.Role.PersonID, missing.Role.OrganizationID = nil, nil
		missing.Role.PersonFullName = strPtr("Nobody Known")
		f.stage(t, rec, missing)

		summary := f.commit(t)
		assert.Equal(t, 1, summary.Merged)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0].Messages[0], `person "Nobody Known" not found`)

		merged := f.record(t, models.EntityTypeRole, "s1")
		assert.Equal(t, s.person.ID, *merged.Role.PersonID)
	})
}

func ptrDecision(d models.MergeDecision) *models.MergeDecision { return &d }

func TestExecutor_PersonsAndNews(t *testing.T) {
	t.Run("person update keeps values the row does not carry", func(t *testing.T) {
		f := newFixture(t, models.EntityTypePerson)
		existing := f.store.SeedPerson(models.Person{
			FirstName:   strPtr("Jerry"),
			LastName:    strPtr("Jones"),
			FullName:    "Jerry Jones",
			TwitterURL:  strPtr("https://x.com/jerryjones"),
			LinkedInURL: strPtr("https://www.linkedin.com/in/jerryjones"),
		})
		rec := decided("s1", 1, models.EntityTypePerson, models.MergeDecisionUpdate)
		rec.MergeCandidateID = &existing.ID
		rec.Person = &models.PersonFields{
			FirstName:     strPtr("Jerral"),
			LastName:      strPtr("Jones"),
			CompanyDomain: strPtr("dallascowboys.com"),
		}
		f.stage(t, rec)

		f.commit(t)
		got, err := f.store.GetPerson(context.Background(), existing.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jerral", *got.FirstName)
		assert.Equal(t, "Jerry Jones", got.FullName)
		assert.Equal(t, "https://x.com/jerryjones", *got.TwitterURL)
		assert.Equal(t, "dallascowboys.com", *got.CompanyDomain)
		assert.Equal(t, []string{"first_name", "company_domain"}, f.hook.committed[0].Changed)
	})

	t.Run("new person gets a full name from its parts", func(t *testing.T) {
		f := newFixture(t, models.EntityTypePerson)
		rec := decided("s1", 1, models.EntityTypePerson, models.MergeDecisionNew)
		rec.Person = &models.PersonFields{FirstName: strPtr("Dak"), LastName: strPtr("Prescott")}
		f.stage(t, rec)

		f.commit(t)
		persons := f.store.Persons()
		require.Len(t, persons, 1)
		assert.Equal(t, "Dak Prescott", persons[0].FullName)
	})

	t.Run("update of a missing candidate fails the record", func(t *testing.T) {
		f := newFixture(t, models.EntityTypePerson)
		rec := decided("s1", 1, models.EntityTypePerson, models.MergeDecisionUpdate)
		rec.MergeCandidateID = strPtr("gone")
		rec.Person = &models.PersonFields{FullName: strPtr("Someone")}
		f.stage(t, rec)

		summary := f.commit(t)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, models.BatchStatusFailed, f.batch.Status)
	})

	t.Run("news links to a known organization", func(t *testing.T) {
		f := newFixture(t, models.EntityTypeNews)
		o := f.store.SeedOrganization(models.Organization{Name: "Dallas Cowboys"})
		rec := decided("s1", 1, models.EntityTypeNews, models.MergeDecisionNew)
		rec.News = &models.NewsFields{
			Title:            strPtr("Cowboys extend Prescott"),
			URL:              strPtr("https://news.example.com/a"),
			OrganizationName: strPtr("dallas cowboys"),
		}
		unknown := decided("s2", 2, models.EntityTypeNews, models.MergeDecisionNew)
		unknown.News = &models.NewsFields{
			Title:            strPtr("Expansion rumors"),
			URL:              strPtr("https://news.example.com/b"),
			OrganizationName: strPtr("Some Future Team"),
		}
		f.stage(t, rec, unknown)

		summary := f.commit(t)
		assert.Equal(t, 2, summary.Merged)
		items := f.store.NewsItems()
		require.Len(t, items, 2)
		linked := 0
		for _, n := range items {
			if n.OrganizationID != nil {
				assert.Equal(t, o.ID, *n.OrganizationID)
				linked++
			}
		}
		assert.Equal(t, 1, linked)
	})
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name     string
		summary  merging.CommitSummary
		expected models.BatchStatus
	}{
		{"fatal", merging.CommitSummary{Attempted: 3, Merged: 2, Fatal: errors.New("down")}, models.BatchStatusFailed},
		{"awaiting review", merging.CommitSummary{Attempted: 2, Merged: 2, AwaitingReview: 1}, models.BatchStatusReadyToMerge},
		{"all failed", merging.CommitSummary{Attempted: 2, Failed: 2}, models.BatchStatusFailed},
		{"partial", merging.CommitSummary{Attempted: 2, Merged: 1, Failed: 1}, models.BatchStatusCompleted},
		{"nothing to do", merging.CommitSummary{}, models.BatchStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := merging.Outcome(&tt.summary)
			assert.Equal(t, tt.expected, status)
		})
	}
}
