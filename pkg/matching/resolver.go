// Package matching finds merge candidates for staged records and decides
// whether each one is new, updates an existing record, or needs review.
// It reads production data but never writes it.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

// Lookups return (nil, nil) when nothing matches.

type PersonReader interface {
	FindPersonByLinkedIn(ctx context.Context, linkedInURL string) (*models.Person, error)
	FindPersonCandidates(ctx context.Context, fullName string, lastName string, floor float64, limit int) ([]*models.Person, error)
}

type OrganizationReader interface {
	FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error)
	FindOrganizationCandidates(ctx context.Context, name string, floor float64, limit int) ([]*models.Organization, error)
}

type RoleReader interface {
	FindRole(ctx context.Context, personID string, organizationID string, startDate time.Time) (*models.Role, error)
	FindCurrentRoles(ctx context.Context, personID string, organizationID string) ([]*models.Role, error)
}

type NewsReader interface {
	FindNewsByURL(ctx context.Context, url string) (*models.NewsItem, error)
	FindNewsCandidates(ctx context.Context, title string, floor float64, limit int) ([]*models.NewsItem, error)
}

// Readers is read access to the production tables
type Readers struct {
	Persons       PersonReader
	Organizations OrganizationReader
	Roles         RoleReader
	News          NewsReader
}

// ResolutionWriter stores the decision fields of a staging record
type ResolutionWriter interface {
	SaveResolution(ctx context.Context, rec *models.StagingRecord) error
}

// Resolution is the outcome for one staged record
type Resolution struct {
	RecordID      string               `json:"record_id"`
	RowNumber     int                  `json:"row_number"`
	Decision      models.MergeDecision `json:"decision"`
	Score         float64              `json:"score"`
	CandidateID   *string              `json:"candidate_id,omitempty"`
	DuplicateOfID *string              `json:"duplicate_of_id,omitempty"`
	Note          string               `json:"note,omitempty"`
}

type Resolver struct {
	logger  ectologger.Logger
	readers Readers
	writer  ResolutionWriter
	cfg     Config
}

func NewResolver(logger ectologger.Logger, readers Readers, writer ResolutionWriter, cfg Config) *Resolver {
	return &Resolver{
		logger:  logger,
		readers: readers,
		writer:  writer,
		cfg:     cfg,
	}
}

func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve decides every valid record of the batch in file order and persists
// the decision onto the record. A connection failure stops the stage; any
// other lookup failure parks that record in manual_review.
func (r *Resolver) Resolve(ctx context.Context, batch *models.ImportBatch, records []*models.StagingRecord) ([]Resolution, error) {
	ctx, span := tracing.StartBatchSpan(ctx, "matching.Resolver.Resolve", batch.ID, string(batch.EntityType))
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    batch.ID,
		"entity_type": batch.EntityType,
	})

	ordered := make([]*models.StagingRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].RowNumber < ordered[j].RowNumber })

	idx := newBatchIndex()
	out := make([]Resolution, 0, len(ordered))
	counts := map[models.MergeDecision]int{}
	for _, rec := range ordered {
		if rec.ValidationStatus != models.ValidationStatusValid {
			continue
		}

		res, err := r.resolveRecord(ctx, rec, idx)
		if err != nil {
			if importerror.IsFatal(err) {
				log.WithError(err).Error("Lost database connection while matching")
				tracing.RecordError(span, err)
				return out, err
			}
			log.WithError(err).WithField("row_number", rec.RowNumber).Warn("Matching failed for record, parking it for review")
			res = Resolution{Decision: models.MergeDecisionManualReview, Note: "matching failed: " + err.Error()}
		}
		res.RecordID = rec.ID
		res.RowNumber = rec.RowNumber
		rec.SetResolution(res.Decision, res.Score, res.CandidateID, res.DuplicateOfID, res.Note)
		if res.Decision == models.MergeDecisionNew {
			idx.add(rec)
		}

		if r.writer != nil {
			if err := r.writer.SaveResolution(ctx, rec); err != nil {
				log.WithError(err).WithField("row_number", rec.RowNumber).Error("Failed to save resolution")
				if importerror.IsFatal(err) {
					tracing.RecordError(span, err)
					return out, err
				}
			}
		}
		counts[res.Decision]++
		out = append(out, res)
	}

	log.WithFields(map[string]any{
		"new":           counts[models.MergeDecisionNew],
		"update":        counts[models.MergeDecisionUpdate],
		"manual_review": counts[models.MergeDecisionManualReview],
	}).Info("Resolved merge candidates")

	return out, nil
}

func (r *Resolver) resolveRecord(ctx context.Context, rec *models.StagingRecord, idx *batchIndex) (Resolution, error) {
	switch rec.EntityType {
	case models.EntityTypePerson:
		return r.resolvePerson(ctx, rec, idx)
	case models.EntityTypeOrganization:
		return r.resolveOrganization(ctx, rec, idx)
	case models.EntityTypeRole:
		return r.resolveRole(ctx, rec, idx)
	case models.EntityTypeNews:
		return r.resolveNews(ctx, rec, idx)
	}
	return Resolution{}, fmt.Errorf("unknown entity type %q", rec.EntityType)
}

func (r *Resolver) resolvePerson(ctx context.Context, rec *models.StagingRecord, idx *batchIndex) (Resolution, error) {
	p := rec.Person
	linkedIn := strings.ToLower(deref(p.LinkedInURL))
	if linkedIn != "" {
		existing, err := r.readers.Persons.FindPersonByLinkedIn(ctx, deref(p.LinkedInURL))
		if err != nil {
			return Resolution{}, err
		}
		if existing != nil {
			return exact(existing.ID), nil
		}
		if dup := idx.get(personKey(linkedIn)); dup != nil {
			return duplicate(dup), nil
		}
	}

	parts := PersonNameParts(p.FirstName, p.LastName, p.FullName)
	found, err := r.readers.Persons.FindPersonCandidates(ctx, deref(p.FullName), deref(p.LastName), r.cfg.CandidateFloor, r.cfg.CandidateLimit)
	if err != nil {
		return Resolution{}, err
	}

	var cands []candidate
	for _, c := range found {
		if conflictingKeys(linkedIn, c.LinkedInURL) {
			continue
		}
		cands = append(cands, candidate{
			id:    c.ID,
			label: c.FullName,
			score: PersonScore(parts, PersonNameParts(c.FirstName, c.LastName, &c.FullName), r.cfg.ReviewThreshold),
		})
	}
	for _, prev := range idx.pending(models.EntityTypePerson) {
		if conflictingKeys(linkedIn, prev.Person.LinkedInURL) {
			continue
		}
		cands = append(cands, candidate{
			staged: prev,
			score:  PersonScore(parts, PersonNameParts(prev.Person.FirstName, prev.Person.LastName, prev.Person.FullName), r.cfg.ReviewThreshold),
		})
	}
	return r.decide("person", cands), nil
}

func (r *Resolver) resolveOrganization(ctx context.Context, rec *models.StagingRecord, idx *batchIndex) (Resolution, error) {
	name := deref(rec.Organization.Name)

	existing, err := r.readers.Organizations.FindOrganizationByName(ctx, name)
	if err != nil {
		return Resolution{}, err
	}
	if existing != nil {
		return exact(existing.ID), nil
	}
	if dup := idx.get(organizationKey(name)); dup != nil {
		return duplicate(dup), nil
	}

	found, err := r.readers.Organizations.FindOrganizationCandidates(ctx, name, r.cfg.CandidateFloor, r.cfg.CandidateLimit)
	if err != nil {
		return Resolution{}, err
	}
	var cands []candidate
	for _, c := range found {
		cands = append(cands, candidate{id: c.ID, label: c.Name, score: OrganizationScore(name, c.Name)})
	}
	for _, prev := range idx.pending(models.EntityTypeOrganization) {
		cands = append(cands, candidate{staged: prev, score: OrganizationScore(name, deref(prev.Organization.Name))})
	}
	return r.decide("organization", cands), nil
}

func (r *Resolver) resolveNews(ctx context.Context, rec *models.StagingRecord, idx *batchIndex) (Resolution, error) {
	n := rec.News
	url := deref(n.URL)

	existing, err := r.readers.News.FindNewsByURL(ctx, url)
	if err != nil {
		return Resolution{}, err
	}
	if existing != nil {
		return exact(existing.ID), nil
	}
	if dup := idx.get(newsKey(url)); dup != nil {
		return duplicate(dup), nil
	}

	title := deref(n.Title)
	found, err := r.readers.News.FindNewsCandidates(ctx, title, r.cfg.CandidateFloor, r.cfg.CandidateLimit)
	if err != nil {
		return Resolution{}, err
	}
	var cands []candidate
	for _, c := range found {
		cands = append(cands, candidate{id: c.ID, label: c.Title, score: TitleScore(title, c.Title)})
	}
	for _, prev := range idx.pending(models.EntityTypeNews) {
		cands = append(cands, candidate{staged: prev, score: TitleScore(title, deref(prev.News.Title))})
	}
	return r.decide("news item", cands), nil
}

func (r *Resolver) resolveRole(ctx context.Context, rec *models.StagingRecord, idx *batchIndex) (Resolution, error) {
	role := rec.Role

	refs, problems, err := r.ResolveRoleRefs(ctx, role)
	if err != nil {
		return Resolution{}, err
	}
	if len(problems) > 0 {
		role.PersonID, role.OrganizationID = nil, nil
		return Resolution{Decision: models.MergeDecisionManualReview, Note: strings.Join(problems, "; ")}, nil
	}
	role.PersonID = &refs.PersonID
	role.OrganizationID = &refs.OrganizationID

	if role.StartDate != nil {
		existing, err := r.readers.Roles.FindRole(ctx, refs.PersonID, refs.OrganizationID, *role.StartDate)
		if err != nil {
			return Resolution{}, err
		}
		if existing != nil {
			return exact(existing.ID), nil
		}
		if dup := idx.get(roleKey(refs, *role.StartDate)); dup != nil {
			return duplicate(dup), nil
		}
	}

	current, err := r.readers.Roles.FindCurrentRoles(ctx, refs.PersonID, refs.OrganizationID)
	if err != nil {
		return Resolution{}, err
	}
	title := deref(role.JobTitle)
	var cands []candidate
	for _, c := range current {
		cands = append(cands, candidate{id: c.ID, label: c.JobTitle, score: TitleScore(title, c.JobTitle)})
	}
	return r.decide("current role", cands), nil
}

// RoleRefs are the production rows a staged role points at
type RoleRefs struct {
	PersonID       string
	OrganizationID string
}

// ResolveRoleRefs finds the person (by LinkedIn URL, then by exact normalized
// full name) and the organization (by case-insensitive name) of a role.
// Unresolvable or ambiguous references come back as problems, not errors.
func (r *Resolver) ResolveRoleRefs(ctx context.Context, role *models.RoleFields) (RoleRefs, []string, error) {
	var refs RoleRefs
	var problems []string

	if url := deref(role.PersonLinkedInURL); url != "" {
		p, err := r.readers.Persons.FindPersonByLinkedIn(ctx, url)
		if err != nil {
			return refs, nil, err
		}
		if p != nil {
			refs.PersonID = p.ID
		}
	}
	if refs.PersonID == "" {
		name := deref(role.PersonFullName)
		if name == "" {
			problems = append(problems, fmt.Sprintf("person %q not found", deref(role.PersonLinkedInURL)))
		} else {
			found, err := r.readers.Persons.FindPersonCandidates(ctx, name, "", r.cfg.CandidateFloor, r.cfg.CandidateLimit)
			if err != nil {
				return refs, nil, err
			}
			want := normalizers.NormalizeName(name)
			var ids []string
			for _, p := range found {
				if normalizers.NormalizeName(p.FullName) == want {
					ids = append(ids, p.ID)
				}
			}
			switch len(ids) {
			case 0:
				problems = append(problems, fmt.Sprintf("person %q not found", name))
			case 1:
				refs.PersonID = ids[0]
			default:
				problems = append(problems, fmt.Sprintf("person %q is ambiguous (%d matches)", name, len(ids)))
			}
		}
	}

	orgName := deref(role.OrganizationName)
	org, err := r.readers.Organizations.FindOrganizationByName(ctx, orgName)
	if err != nil {
		return refs, nil, err
	}
	if org == nil {
		problems = append(problems, fmt.Sprintf("organization %q not found", orgName))
	} else {
		refs.OrganizationID = org.ID
	}
	return refs, problems, nil
}

// candidate is a production row (id set) or an earlier record of the same batch (staged set)
type candidate struct {
	id     string
	label  string
	score  float64
	staged *models.StagingRecord
}

// decide picks the best candidate: highest score, then production rows before
// batch records, then lowest id or row number.
func (r *Resolver) decide(kind string, cands []candidate) Resolution {
	if len(cands) == 0 {
		return Resolution{Decision: models.MergeDecisionNew}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if (a.staged == nil) != (b.staged == nil) {
			return a.staged == nil
		}
		if a.staged != nil {
			return a.staged.RowNumber < b.staged.RowNumber
		}
		return a.id < b.id
	})
	best := cands[0]

	res := Resolution{Decision: r.cfg.Decide(best.score), Score: best.score}
	if res.Decision == models.MergeDecisionNew {
		return res
	}
	if best.staged != nil {
		id := best.staged.ID
		res.DuplicateOfID = &id
	} else {
		id := best.id
		res.CandidateID = &id
	}
	if res.Decision == models.MergeDecisionManualReview {
		if best.staged != nil {
			res.Note = fmt.Sprintf("similar to row %d of this batch (score %.2f)", best.staged.RowNumber, best.score)
		} else {
			res.Note = fmt.Sprintf("similar to existing %s %q (score %.2f)", kind, best.label, best.score)
		}
	}
	return res
}

func exact(productionID string) Resolution {
	return Resolution{Decision: models.MergeDecisionUpdate, Score: 1.0, CandidateID: &productionID}
}

func duplicate(prev *models.StagingRecord) Resolution {
	id := prev.ID
	return Resolution{Decision: models.MergeDecisionUpdate, Score: 1.0, DuplicateOfID: &id}
}

// conflictingKeys reports whether both sides carry a LinkedIn URL and they differ.
func conflictingKeys(staged string, other *string) bool {
	if staged == "" || other == nil || *other == "" {
		return false
	}
	return !strings.EqualFold(staged, *other)
}
