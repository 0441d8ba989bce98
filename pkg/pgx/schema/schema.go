// Package schema describes relations (tables and views), their columns and
// foreign keys, and loads that description from a live PostgreSQL catalog.
// The in-memory backend resolves embedded resources against it.
package schema

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	pg "github.com/edgeflare/pgrest/pkg/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	// Following PostgREST's notification convention
	// https://docs.postgrest.org/en/stable/references/schema_cache.html
	reloadChannel = "pgrst"
	reloadPayload = "reload schema"
)

type TableType string

const (
	TypeTable            TableType = "TABLE"
	TypeView             TableType = "VIEW"
	TypeMaterializedView TableType = "MATERIALIZED VIEW"
)

type Table struct {
	Schema      string       `json:"schema" yaml:"schema"`
	Name        string       `json:"name" yaml:"name"`
	Type        TableType    `json:"type" yaml:"type"`
	Columns     []Column     `json:"columns" yaml:"columns"`
	PrimaryKeys []string     `json:"primary_keys" yaml:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys" yaml:"foreign_keys"`
}

type Column struct {
	Name         string `json:"name" yaml:"name"`
	DataType     string `json:"data_type" yaml:"data_type"`
	IsNullable   bool   `json:"is_nullable" yaml:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key" yaml:"is_primary_key"`
	IsUnique     bool   `json:"is_unique" yaml:"is_unique"`
}

// ForeignKey is a single column foreign key constraint.
type ForeignKey struct {
	Name             string `json:"name" yaml:"name"` // constraint name, e.g. messages_channel_id_fkey
	Column           string `json:"column" yaml:"column"`
	ReferencedTable  string `json:"referenced_table" yaml:"referenced_table"`
	ReferencedColumn string `json:"referenced_column" yaml:"referenced_column"`
}

// FullName returns schema.name.
func (t *Table) FullName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// IsUnique reports whether col alone identifies a row: it is the single
// primary key column or carries a single column unique constraint.
func (t *Table) IsUnique(col string) bool {
	if len(t.PrimaryKeys) == 1 && t.PrimaryKeys[0] == col {
		return true
	}
	c, ok := t.Column(col)
	return ok && c.IsUnique
}

// Load reads every relation of the given schemas, or of all non system
// schemas when none is given. The map is keyed by Table.FullName.
func Load(ctx context.Context, conn pg.Conn, schemas ...string) (map[string]Table, error) {
	if len(schemas) == 0 {
		all, err := querySchemas(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("query schemas: %w", err)
		}
		schemas = slices.DeleteFunc(all, isSystem)
	}

	tables := make(map[string]Table)
	for _, schema := range schemas {
		schemaTables, err := loadSchema(ctx, conn, schema)
		if err != nil {
			return nil, fmt.Errorf("load schema %s: %w", schema, err)
		}
		maps.Copy(tables, schemaTables)
	}
	return tables, nil
}

func loadSchema(ctx context.Context, conn pg.Conn, schema string) (map[string]Table, error) {
	tableRows, err := conn.Query(ctx, `
		SELECT table_schema, table_name, 'TABLE'::text AS table_type
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		UNION ALL
		SELECT table_schema, table_name, 'VIEW'::text AS table_type
		FROM information_schema.views
		WHERE table_schema = $1
		UNION ALL
		SELECT schemaname, matviewname, 'MATERIALIZED VIEW'::text AS table_type
		FROM pg_matviews
		WHERE schemaname = $1
		ORDER BY table_schema, table_name`, schema)
	if err != nil {
		return nil, err
	}
	// collect first: conn may be a single connection that cannot run nested queries
	var tables []Table
	for tableRows.Next() {
		var t Table
		var tableType string
		if err := tableRows.Scan(&t.Schema, &t.Name, &tableType); err != nil {
			tableRows.Close()
			return nil, err
		}
		t.Type = TableType(tableType)
		tables = append(tables, t)
	}
	tableRows.Close()
	if err := tableRows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]Table, len(tables))
	for _, t := range tables {
		cols, pkeys, err := queryColumns(ctx, conn, t.Schema, t.Name)
		if err != nil {
			return nil, fmt.Errorf("query columns %s: %w", t.FullName(), err)
		}
		t.Columns = cols
		t.PrimaryKeys = pkeys

		// views expose no constraints of their own
		if t.Type == TypeTable {
			fkeys, err := queryForeignKeys(ctx, conn, t.Schema, t.Name)
			if err != nil {
				return nil, fmt.Errorf("query foreign keys %s: %w", t.FullName(), err)
			}
			t.ForeignKeys = fkeys
		}
		out[t.FullName()] = t
	}
	return out, nil
}

func queryColumns(ctx context.Context, conn pg.Conn, schema, table string) ([]Column, []string, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = $1
					AND tc.table_name = $2
					AND kcu.column_name = c.column_name
			) AS is_primary_key,
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'UNIQUE'
					AND tc.table_schema = $1
					AND tc.table_name = $2
					AND kcu.column_name = c.column_name
					AND (
						SELECT count(*) FROM information_schema.key_column_usage k
						WHERE k.constraint_name = tc.constraint_name
							AND k.table_schema = tc.table_schema
					) = 1
			) AS is_unique
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []Column
	var pkeys []string
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.IsPrimaryKey, &col.IsUnique); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		if col.IsPrimaryKey {
			pkeys = append(pkeys, col.Name)
		}
	}
	return cols, pkeys, rows.Err()
}

func queryForeignKeys(ctx context.Context, conn pg.Conn, schema, table string) ([]ForeignKey, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY tc.constraint_name`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		fkeys = append(fkeys, fk)
	}
	return fkeys, rows.Err()
}

func querySchemas(ctx context.Context, conn pg.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func isSystem(schema string) bool {
	switch schema {
	case "information_schema", "pg_catalog", "pg_toast", "pg_temp_1", "pg_toast_temp_1":
		return true
	default:
		return false
	}
}

// Cache keeps the loaded relations current: it reloads them whenever
// "reload schema" is notified on the pgrst channel, like PostgREST does.
type Cache struct {
	pool    *pgxpool.Pool
	conn    *pgx.Conn
	schemas []string
	tables  map[string]Table
	watch   chan map[string]Table
	cancel  context.CancelFunc
	logger  *zap.Logger
	mu      sync.RWMutex
}

func NewCache(ctx context.Context, connString string, logger *zap.Logger, schemas ...string) (*Cache, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Acquire: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{
		pool:    pool,
		conn:    conn.Hijack(),
		schemas: schemas,
		tables:  make(map[string]Table),
		watch:   make(chan map[string]Table, 1),
		logger:  logger,
	}, nil
}

// Pool returns the pool the cache loads through.
func (c *Cache) Pool() *pgxpool.Pool {
	return c.pool
}

func (c *Cache) Init(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.reload(ctx); err != nil {
		cancel()
		return fmt.Errorf("initial load: %w", err)
	}

	if _, err := c.conn.Exec(ctx, "LISTEN "+reloadChannel); err != nil {
		cancel()
		return fmt.Errorf("listen: %w", err)
	}

	go c.handleUpdates(ctx)
	return nil
}

func (c *Cache) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close(context.Background())
	}
	if c.pool != nil {
		c.pool.Close()
	}
}

// Watch delivers a snapshot after every reload. Only the latest snapshot is
// kept when the reader falls behind.
func (c *Cache) Watch() <-chan map[string]Table {
	return c.watch
}

func (c *Cache) handleUpdates(ctx context.Context) {
	for {
		notification, err := c.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("schema notification", zap.Error(err))
			return
		}
		if notification.Payload == reloadPayload {
			if err := c.reload(ctx); err != nil {
				c.logger.Error("schema reload", zap.Error(err))
			}
		}
	}
}

func (c *Cache) reload(ctx context.Context) error {
	tables, err := Load(ctx, c.pool, c.schemas...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()
	c.logger.Info("schema loaded", zap.Int("relations", len(tables)))

	snap := c.Snapshot()
	select {
	case c.watch <- snap:
	default:
		select {
		case <-c.watch:
		default:
		}
		c.watch <- snap
	}
	return nil
}

func (c *Cache) Snapshot() map[string]Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]Table, len(c.tables))
	maps.Copy(snap, c.tables)
	return snap
}
