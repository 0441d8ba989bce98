package rest

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/edgeflare/pgrest/pkg/pgx/schema"
)

const defaultSchema = "public"

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
)

// Row is one record, keyed by column name. Numbers are float64, like json.
type Row map[string]any

// Function is a database function callable at /rpc/<name>. Params names the
// arguments; with GET, query parameters named like a param are arguments and
// the rest filter the returned rows.
type Function struct {
	Params []string
	Call   func(args map[string]any) (any, error)
}

type relation struct {
	schema.Table
	rows []Row
}

// Store holds relations and their rows in memory. It is safe for concurrent
// use; handlers lock it for the duration of a request.
type Store struct {
	mu        sync.RWMutex
	relations map[string]*relation // key: schema.name
	functions map[string]Function  // key: schema.name
}

func NewStore() *Store {
	return &Store{
		relations: make(map[string]*relation),
		functions: make(map[string]Function),
	}
}

// AddTable registers a relation and its rows. Schema defaults to public and
// Type to TABLE.
func (s *Store) AddTable(t schema.Table, rows ...Row) error {
	if t.Schema == "" {
		t.Schema = defaultSchema
	}
	if t.Type == "" {
		t.Type = schema.TypeTable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.FullName()
	if _, ok := s.relations[key]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, key)
	}
	rel := &relation{Table: t}
	for _, r := range rows {
		rel.rows = append(rel.rows, normalizeRow(r))
	}
	s.relations[key] = rel
	return nil
}

// AddFunction registers an rpc function in schemaName (default public).
func (s *Store) AddFunction(schemaName, name string, fn Function) {
	if schemaName == "" {
		schemaName = defaultSchema
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[schemaName+"."+name] = fn
}

// Rows returns a copy of the rows of schemaName.name.
func (s *Store) Rows(schemaName, name string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, err := s.relation(schemaName, name)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rel.rows))
	for i, r := range rel.rows {
		out[i] = maps.Clone(r)
	}
	return out, nil
}

// Tables lists the registered relations.
func (s *Store) Tables() []schema.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(s.relations))
	out := make([]schema.Table, len(keys))
	for i, k := range keys {
		out[i] = s.relations[k].Table
	}
	return out
}

// relation looks up a relation; callers hold s.mu.
func (s *Store) relation(schemaName, name string) (*relation, error) {
	if schemaName == "" {
		schemaName = defaultSchema
	}
	rel, ok := s.relations[schemaName+"."+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, schemaName, name)
	}
	return rel, nil
}

// relationsIn lists the relations of a schema in name order; callers hold s.mu.
func (s *Store) relationsIn(schemaName string) []*relation {
	var out []*relation
	for _, k := range slices.Sorted(maps.Keys(s.relations)) {
		if rel := s.relations[k]; rel.Schema == schemaName {
			out = append(out, rel)
		}
	}
	return out
}

func (s *Store) hasSchema(schemaName string) bool {
	for _, rel := range s.relations {
		if rel.Schema == schemaName {
			return true
		}
	}
	return false
}

// normalizeRow converts integer types to float64 so that values loaded from
// yaml, json and the database compare alike.
func normalizeRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch v := v.(type) {
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case map[string]any:
		return normalizeMap(v)
	case Row:
		// yaml decodes nested mappings of a Row into Row
		return normalizeMap(v)
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = normalizeValue(x)
		}
		return out
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, x := range m {
		out[k] = normalizeValue(x)
	}
	return out
}
