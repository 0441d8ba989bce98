package rest

import (
	"github.com/edgeflare/pgrest/pkg/pgx/schema"
	"github.com/edgeflare/pgrest/pkg/postgrest/selectexpr"
)

// relationship links a parent relation to an embedded one through a foreign
// key. With forward set the key lives on the parent (many-to-one or
// one-to-one); otherwise it lives on the target (one-to-many, or one-to-one
// when the key column is unique).
type relationship struct {
	parent  *relation
	target  *relation
	fk      schema.ForeignKey
	forward bool
}

func (r relationship) toOne() bool {
	return r.forward || r.target.IsUnique(r.fk.Column)
}

func (r relationship) cardinality() string {
	switch {
	case r.forward && r.parent.IsUnique(r.fk.Column):
		return "one-to-one"
	case r.forward:
		return "many-to-one"
	case r.toOne():
		return "one-to-one"
	}
	return "one-to-many"
}

// fkTable is the relation the foreign key is declared on.
func (r relationship) fkTable() string {
	if r.forward {
		return r.parent.Name
	}
	return r.target.Name
}

// related returns the target rows linked to parent row p.
func (r relationship) related(p Row) []Row {
	var local, remote string
	if r.forward {
		local, remote = r.fk.Column, r.fk.ReferencedColumn
	} else {
		local, remote = r.fk.ReferencedColumn, r.fk.Column
	}
	v := p[local]
	if v == nil {
		return nil
	}
	var out []Row
	for _, row := range r.target.rows {
		if equalValues(row[remote], v) {
			out = append(out, row)
		}
	}
	return out
}

// candidates lists every relationship of parent within its schema.
func (s *Store) candidates(parent *relation) []relationship {
	var out []relationship
	for _, fk := range parent.ForeignKeys {
		if target, err := s.relation(parent.Schema, fk.ReferencedTable); err == nil {
			out = append(out, relationship{parent: parent, target: target, fk: fk, forward: true})
		}
	}
	for _, rel := range s.relationsIn(parent.Schema) {
		for _, fk := range rel.ForeignKeys {
			if fk.ReferencedTable == parent.Name {
				out = append(out, relationship{parent: parent, target: rel, fk: fk})
			}
		}
	}
	return out
}

// resolve finds the single relationship an embed refers to. The target may
// name the related relation, the constraint, or (for a key on the parent)
// the key column; the hint may name the constraint or a key column.
func (s *Store) resolve(parent *relation, e *selectexpr.Embed) (relationship, *apiError) {
	var matches []relationship
	for _, c := range s.candidates(parent) {
		if !c.matchesTarget(e.Target) {
			continue
		}
		if e.Hint != "" && c.fk.Name != e.Hint && c.fk.Column != e.Hint {
			continue
		}
		matches = append(matches, c)
	}
	switch len(matches) {
	case 0:
		return relationship{}, errNoRelationship(parent.Schema, parent.Name, e.Target)
	case 1:
		return matches[0], nil
	}
	return relationship{}, errAmbiguous(parent.Name, e.Target, matches)
}

func (r relationship) matchesTarget(target string) bool {
	return r.target.Name == target ||
		r.fk.Name == target ||
		(r.forward && r.fk.Column == target)
}
