package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jcognard-actinvision/askdb/internal/db"
)

type Config struct {
	DSN             string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	sqlDB, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return sqlDB, nil
}

// Conn exposes a Postgres database to the ask pipeline: table listing comes
// from information_schema, execution is a plain read path.
type Conn struct {
	db     *sql.DB
	schema string
}

func NewConn(sqlDB *sql.DB, schema string) *Conn {
	if schema == "" {
		schema = "public"
	}
	return &Conn{db: sqlDB, schema: schema}
}

func (c *Conn) Dialect() db.Dialect {
	return db.DialectPostgres
}

func (c *Conn) ListTables(ctx context.Context) ([]db.TableDescriptor, error) {
	query := `
SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

	rows, err := c.db.QueryContext(ctx, query, c.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]db.TableDescriptor, 0)
	index := map[string]int{}
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan table column: %w", err)
		}
		position, ok := index[tableName]
		if !ok {
			position = len(tables)
			index[tableName] = position
			tables = append(tables, db.TableDescriptor{Name: tableName})
		}
		tables[position].Columns = append(tables[position].Columns, columnName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table columns: %w", err)
	}
	return tables, nil
}

func (c *Conn) Execute(ctx context.Context, sqlText string) (db.Rows, error) {
	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return db.Rows{}, &db.ExecutionError{Query: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return db.Rows{}, &db.ExecutionError{Query: sqlText, Err: fmt.Errorf("query columns: %w", err)}
	}

	values := make([][]any, 0)
	for rows.Next() {
		row := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range row {
			scanTargets[i] = &row[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return db.Rows{}, &db.ExecutionError{Query: sqlText, Err: fmt.Errorf("scan row: %w", err)}
		}
		values = append(values, normalizeValues(row))
	}
	if err := rows.Err(); err != nil {
		return db.Rows{}, &db.ExecutionError{Query: sqlText, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return db.Rows{Columns: columns, Values: values}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
