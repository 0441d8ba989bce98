package rest

import (
	"context"
	"fmt"
	"maps"
	"slices"

	pg "github.com/edgeflare/pgrest/pkg/pgx"
	"github.com/edgeflare/pgrest/pkg/pgx/schema"
	"go.uber.org/zap"
)

// DBOptions controls how a Store is seeded from PostgreSQL.
type DBOptions struct {
	Schemas  []string // all non system schemas when empty
	RowLimit int      // rows copied per relation; 0 copies all
}

// LoadFromDB builds a Store from the catalog and rows of a live database.
func LoadFromDB(ctx context.Context, conn pg.Conn, opts DBOptions) (*Store, error) {
	tables, err := schema.Load(ctx, conn, opts.Schemas...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	s := NewStore()
	if err := s.loadTables(ctx, conn, tables, opts.RowLimit); err != nil {
		return nil, err
	}
	return s, nil
}

// loadTables replaces every relation of s with tables and their rows.
func (s *Store) loadTables(ctx context.Context, conn pg.Conn, tables map[string]schema.Table, limit int) error {
	relations := make(map[string]*relation, len(tables))
	for _, key := range slices.Sorted(maps.Keys(tables)) {
		t := tables[key]
		rows, err := pg.SelectRows(ctx, conn, t.Schema, t.Name, limit)
		if err != nil {
			return err
		}
		rel := &relation{Table: t, rows: make([]Row, len(rows))}
		for i, r := range rows {
			rel.rows[i] = normalizeRow(r)
		}
		relations[t.FullName()] = rel
	}

	s.mu.Lock()
	s.relations = relations
	s.mu.Unlock()
	return nil
}

// Follow reloads the store whenever the schema cache reloads, until ctx is
// done or the cache stops.
func (s *Store) Follow(ctx context.Context, cache *schema.Cache, limit int, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case tables := <-cache.Watch():
			if err := s.loadTables(ctx, cache.Pool(), tables, limit); err != nil {
				logger.Error("reload store", zap.Error(err))
				continue
			}
			logger.Info("store reloaded", zap.Int("relations", len(tables)))
		}
	}
}
