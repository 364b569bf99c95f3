package database

import (
	"github.com/huandu/go-sqlbuilder"
)

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder(table string) *InsertBuilder {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	return &InsertBuilder{ib}
}

func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.SQL("ON CONFLICT DO NOTHING")
	return b
}

// Columns pairs column names with values so inserts stay aligned.
type Columns struct {
	names  []string
	values []any
}

func (c *Columns) Add(name string, value any) *Columns {
	c.names = append(c.names, name)
	c.values = append(c.values, value)
	return c
}

func (c *Columns) Names() []string {
	return c.names
}

func (c *Columns) Values() []any {
	return c.values
}

// Insert builds an INSERT for the given columns.
func (c *Columns) Insert(table string) *InsertBuilder {
	ib := NewInsertBuilder(table)
	ib.Cols(c.names...)
	ib.Values(c.values...)
	return ib
}

// Update builds an UPDATE assigning every column.
func (c *Columns) Update(table string) *sqlbuilder.UpdateBuilder {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	assignments := make([]string, 0, len(c.names))
	for i, name := range c.names {
		assignments = append(assignments, ub.Assign(name, c.values[i]))
	}
	ub.Set(assignments...)
	return ub
}
