package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/tinusleroux/crowdbiz-graph/pkg/matching"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
)

type scored[T any] struct {
	id    string
	score float64
	row   T
}

// topCandidates orders by similarity desc then id, like the SQL candidate queries.
func topCandidates[T any](rows []scored[T], limit int) []*T {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].id < rows[j].id
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]*T, 0, len(rows))
	for i := range rows {
		row := rows[i].row
		out = append(out, &row)
	}
	return out
}

// Persons

func (s *Store) SeedPerson(p models.Person) *models.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.nextID("person")
	}
	if p.FullName == "" {
		p.FullName = normalizers.JoinName(deref(p.FirstName), deref(p.LastName))
	}
	p.CreatedAt, p.UpdatedAt = s.now(), s.now()
	s.data.persons[p.ID] = p
	return &p
}

func (s *Store) Persons() []models.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Person, 0, len(s.data.persons))
	for _, k := range sortedKeys(s.data.persons) {
		out = append(out, s.data.persons[k])
	}
	return out
}

func (s *Store) FindPersonByLinkedIn(_ context.Context, linkedInURL string) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindPersonByLinkedIn"); err != nil {
		return nil, err
	}
	want := lower(linkedInURL)
	if want == "" {
		return nil, nil
	}
	for _, k := range sortedKeys(s.data.persons) {
		p := s.data.persons[k]
		if lowerPtr(p.LinkedInURL) == want {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Store) FindPersonCandidates(_ context.Context, fullName string, lastName string, floor float64, limit int) ([]*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindPersonCandidates"); err != nil {
		return nil, err
	}
	want := normalizers.NormalizeName(fullName)
	var rows []scored[models.Person]
	for _, p := range s.data.persons {
		sim := matching.Similarity(want, normalizers.NormalizeName(p.FullName))
		sameLast := lastName != "" && lower(lastName) == lowerPtr(p.LastName)
		if sim >= floor || sameLast {
			rows = append(rows, scored[models.Person]{id: p.ID, score: sim, row: p})
		}
	}
	return topCandidates(rows, limit), nil
}

func (s *Store) GetPerson(_ context.Context, id string) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPerson"); err != nil {
		return nil, err
	}
	p, ok := s.data.persons[id]
	if !ok {
		return nil, notFound("person", id)
	}
	return &p, nil
}

func (s *Store) checkPerson(op string, p *models.Person) error {
	want := lowerPtr(p.LinkedInURL)
	if want == "" {
		return nil
	}
	for _, other := range s.data.persons {
		if other.ID != p.ID && lowerPtr(other.LinkedInURL) == want {
			return conflict(op, "person_linkedin_url_key")
		}
	}
	return nil
}

func (s *Store) CreatePerson(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreatePerson"); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = s.nextID("person")
	}
	if err := s.checkPerson("create person", p); err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = s.now(), s.now()
	s.data.persons[p.ID] = *p
	return nil
}

func (s *Store) UpdatePerson(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdatePerson"); err != nil {
		return err
	}
	if _, ok := s.data.persons[p.ID]; !ok {
		return notFound("person", p.ID)
	}
	if err := s.checkPerson("update person", p); err != nil {
		return err
	}
	p.UpdatedAt = s.now()
	s.data.persons[p.ID] = *p
	return nil
}

// Organizations

func (s *Store) SeedOrganization(o models.Organization) *models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = s.nextID("org")
	}
	o.CreatedAt, o.UpdatedAt = s.now(), s.now()
	s.data.orgs[o.ID] = o
	return &o
}

func (s *Store) Organizations() []models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Organization, 0, len(s.data.orgs))
	for _, k := range sortedKeys(s.data.orgs) {
		out = append(out, s.data.orgs[k])
	}
	return out
}

func (s *Store) FindOrganizationByName(_ context.Context, name string) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindOrganizationByName"); err != nil {
		return nil, err
	}
	want := lower(name)
	for _, k := range sortedKeys(s.data.orgs) {
		o := s.data.orgs[k]
		if lower(o.Name) == want {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *Store) FindOrganizationCandidates(_ context.Context, name string, floor float64, limit int) ([]*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindOrganizationCandidates"); err != nil {
		return nil, err
	}
	want := normalizers.NormalizeOrganizationName(name)
	var rows []scored[models.Organization]
	for _, o := range s.data.orgs {
		sim := matching.Similarity(want, normalizers.NormalizeOrganizationName(o.Name))
		if sim >= floor {
			rows = append(rows, scored[models.Organization]{id: o.ID, score: sim, row: o})
		}
	}
	return topCandidates(rows, limit), nil
}

func (s *Store) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetOrganization"); err != nil {
		return nil, err
	}
	o, ok := s.data.orgs[id]
	if !ok {
		return nil, notFound("organization", id)
	}
	return &o, nil
}

func (s *Store) checkOrganization(op string, o *models.Organization) error {
	for _, other := range s.data.orgs {
		if other.ID != o.ID && lower(other.Name) == lower(o.Name) {
			return conflict(op, "organization_name_lower_key")
		}
	}
	return nil
}

func (s *Store) CreateOrganization(_ context.Context, o *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateOrganization"); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = s.nextID("org")
	}
	if err := s.checkOrganization("create organization", o); err != nil {
		return err
	}
	o.CreatedAt, o.UpdatedAt = s.now(), s.now()
	s.data.orgs[o.ID] = *o
	return nil
}

func (s *Store) UpdateOrganization(_ context.Context, o *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateOrganization"); err != nil {
		return err
	}
	if _, ok := s.data.orgs[o.ID]; !ok {
		return notFound("organization", o.ID)
	}
	if err := s.checkOrganization("update organization", o); err != nil {
		return err
	}
	o.UpdatedAt = s.now()
	s.data.orgs[o.ID] = *o
	return nil
}

// Roles

func (s *Store) SeedRole(r models.Role) *models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = s.nextID("role")
	}
	r.CreatedAt, r.UpdatedAt = s.now(), s.now()
	s.data.roles[r.ID] = r
	return &r
}

func (s *Store) Roles() []models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Role, 0, len(s.data.roles))
	for _, k := range sortedKeys(s.data.roles) {
		out = append(out, s.data.roles[k])
	}
	return out
}

func sameDay(a *time.Time, b time.Time) bool {
	return a != nil && a.UTC().Format(time.DateOnly) == b.UTC().Format(time.DateOnly)
}

func (s *Store) FindRole(_ context.Context, personID string, organizationID string, startDate time.Time) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindRole"); err != nil {
		return nil, err
	}
	for _, k := range sortedKeys(s.data.roles) {
		r := s.data.roles[k]
		if r.PersonID == personID && r.OrganizationID == organizationID && sameDay(r.StartDate, startDate) {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Store) FindCurrentRoles(_ context.Context, personID string, organizationID string) ([]*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindCurrentRoles"); err != nil {
		return nil, err
	}
	var out []*models.Role
	for _, k := range sortedKeys(s.data.roles) {
		r := s.data.roles[k]
		if r.PersonID == personID && r.OrganizationID == organizationID && r.IsCurrent {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *Store) GetRole(_ context.Context, id string) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRole"); err != nil {
		return nil, err
	}
	r, ok := s.data.roles[id]
	if !ok {
		return nil, notFound("role", id)
	}
	return &r, nil
}

func (s *Store) checkRole(op string, r *models.Role) error {
	if _, ok := s.data.persons[r.PersonID]; !ok {
		return notFound("person", r.PersonID)
	}
	if _, ok := s.data.orgs[r.OrganizationID]; !ok {
		return notFound("organization", r.OrganizationID)
	}
	for _, other := range s.data.roles {
		if other.ID == r.ID || other.PersonID != r.PersonID || other.OrganizationID != r.OrganizationID {
			continue
		}
		if r.StartDate != nil && sameDay(other.StartDate, *r.StartDate) {
			return conflict(op, "role_person_org_start_key")
		}
		if r.IsCurrent && other.IsCurrent {
			return conflict(op, "role_one_current_idx")
		}
	}
	return nil
}

func (s *Store) CreateRole(_ context.Context, r *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRole"); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = s.nextID("role")
	}
	if err := s.checkRole("create role", r); err != nil {
		return err
	}
	r.CreatedAt, r.UpdatedAt = s.now(), s.now()
	s.data.roles[r.ID] = *r
	return nil
}

func (s *Store) UpdateRole(_ context.Context, r *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateRole"); err != nil {
		return err
	}
	if _, ok := s.data.roles[r.ID]; !ok {
		return notFound("role", r.ID)
	}
	if err := s.checkRole("update role", r); err != nil {
		return err
	}
	r.UpdatedAt = s.now()
	s.data.roles[r.ID] = *r
	return nil
}

// News

func (s *Store) SeedNews(n models.NewsItem) *models.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = s.nextID("news")
	}
	n.CreatedAt, n.UpdatedAt = s.now(), s.now()
	s.data.news[n.ID] = n
	return &n
}

func (s *Store) NewsItems() []models.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NewsItem, 0, len(s.data.news))
	for _, k := range sortedKeys(s.data.news) {
		out = append(out, s.data.news[k])
	}
	return out
}

func (s *Store) FindNewsByURL(_ context.Context, url string) (*models.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindNewsByURL"); err != nil {
		return nil, err
	}
	want := lower(url)
	for _, k := range sortedKeys(s.data.news) {
		n := s.data.news[k]
		if lower(n.URL) == want {
			return &n, nil
		}
	}
	return nil, nil
}

func (s *Store) FindNewsCandidates(_ context.Context, title string, floor float64, limit int) ([]*models.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindNewsCandidates"); err != nil {
		return nil, err
	}
	want := normalizers.NormalizeJobTitle(title)
	var rows []scored[models.NewsItem]
	for _, n := range s.data.news {
		sim := matching.Similarity(want, normalizers.NormalizeJobTitle(n.Title))
		if sim >= floor {
			rows = append(rows, scored[models.NewsItem]{id: n.ID, score: sim, row: n})
		}
	}
	return topCandidates(rows, limit), nil
}

func (s *Store) GetNews(_ context.Context, id string) (*models.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetNews"); err != nil {
		return nil, err
	}
	n, ok := s.data.news[id]
	if !ok {
		return nil, notFound("news item", id)
	}
	return &n, nil
}

func (s *Store) checkNews(op string, n *models.NewsItem) error {
	for _, other := range s.data.news {
		if other.ID != n.ID && lower(other.URL) == lower(n.URL) {
			return conflict(op, "news_item_url_key")
		}
	}
	return nil
}

func (s *Store) CreateNews(_ context.Context, n *models.NewsItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateNews"); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = s.nextID("news")
	}
	if err := s.checkNews("create news item", n); err != nil {
		return err
	}
	n.CreatedAt, n.UpdatedAt = s.now(), s.now()
	s.data.news[n.ID] = *n
	return nil
}

func (s *Store) UpdateNews(_ context.Context, n *models.NewsItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateNews"); err != nil {
		return err
	}
	if _, ok := s.data.news[n.ID]; !ok {
		return notFound("news item", n.ID)
	}
	if err := s.checkNews("update news item", n); err != nil {
		return err
	}
	n.UpdatedAt = s.now()
	s.data.news[n.ID] = *n
	return nil
}

// Sources and departments

func (s *Store) EnsureSource(_ context.Context, name string, sourceType string) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("EnsureSource"); err != nil {
		return nil, err
	}
	key := lower(name)
	if src, ok := s.data.sources[key]; ok {
		return &src, nil
	}
	src := models.Source{ID: s.nextID("source"), Name: name, SourceType: sourceType, CreatedAt: s.now()}
	s.data.sources[key] = src
	return &src, nil
}

func (s *Store) Sources() []models.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Source, 0, len(s.data.sources))
	for _, k := range sortedKeys(s.data.sources) {
		out = append(out, s.data.sources[k])
	}
	return out
}

func (s *Store) FindDepartment(_ context.Context, jobTitle string) (*models.JobTitleDepartment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindDepartment"); err != nil {
		return nil, err
	}
	d, ok := s.data.departments[jobTitle]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) InsertDepartment(_ context.Context, d *models.JobTitleDepartment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertDepartment"); err != nil {
		return err
	}
	if _, ok := s.data.departments[d.JobTitle]; ok {
		return nil
	}
	d.CreatedAt = s.now()
	s.data.departments[d.JobTitle] = *d
	return nil
}

func (s *Store) Departments() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data.departments))
	for k, d := range s.data.departments {
		out[k] = d.StandardizedDepartment
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
