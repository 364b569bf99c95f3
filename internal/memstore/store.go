// Package memstore is an in-memory implementation of the repository
// interfaces, used by tests of the pipeline stages. It enforces the same
// unique constraints as the Postgres schema and rolls back on failed
// transactions.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

type data struct {
	batches     map[string]models.ImportBatch
	records     map[string]models.StagingRecord
	persons     map[string]models.Person
	orgs        map[string]models.Organization
	roles       map[string]models.Role
	news        map[string]models.NewsItem
	sources     map[string]models.Source
	departments map[string]models.JobTitleDepartment
}

func newData() data {
	return data{
		batches:     map[string]models.ImportBatch{},
		records:     map[string]models.StagingRecord{},
		persons:     map[string]models.Person{},
		orgs:        map[string]models.Organization{},
		roles:       map[string]models.Role{},
		news:        map[string]models.NewsItem{},
		sources:     map[string]models.Source{},
		departments: map[string]models.JobTitleDepartment{},
	}
}

func (d data) clone() data {
	c := newData()
	for k, v := range d.batches {
		c.batches[k] = v
	}
	for k, v := range d.records {
		c.records[k] = v
	}
	for k, v := range d.persons {
		c.persons[k] = v
	}
	for k, v := range d.orgs {
		c.orgs[k] = v
	}
	for k, v := range d.roles {
		c.roles[k] = v
	}
	for k, v := range d.news {
		c.news[k] = v
	}
	for k, v := range d.sources {
		c.sources[k] = v
	}
	for k, v := range d.departments {
		c.departments[k] = v
	}
	return c
}

type Store struct {
	mu       sync.Mutex
	data     data
	failures map[string]error
	seq      int
	Now      func() time.Time
}

func New() *Store {
	return &Store{
		data:     newData(),
		failures: map[string]error{},
		Now:      time.Now,
	}
}

// FailOn makes every call of the named method return err until cleared
// with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

// RunInTx restores every table to its state before fn when fn fails.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if err := s.fail("RunInTx"); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) now() time.Time {
	return s.Now().UTC()
}

// nextID returns ids that sort in creation order.
func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func notFound(kind, id string) error {
	return importerror.NotFound(kind, id)
}

func conflict(op, constraint string) error {
	return &importerror.MergeConflictError{Op: op, Constraint: constraint}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lowerPtr(s *string) string {
	if s == nil {
		return ""
	}
	return lower(*s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
