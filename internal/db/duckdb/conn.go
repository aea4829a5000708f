package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/jcognard-actinvision/askdb/internal/db"
	"github.com/jcognard-actinvision/askdb/internal/storage"
)

// Conn exposes a set of parquet objects in an object store as queryable
// tables. Each object `<prefix>/<name>.parquet` becomes a table `<name>`:
// listing reads column names from the parquet footer, execution materializes
// the objects into an in-memory DuckDB with one view per table.
type Conn struct {
	store  storage.ObjectStore
	prefix string
}

func NewConn(store storage.ObjectStore, prefix string) (*Conn, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Conn{store: store, prefix: strings.Trim(strings.TrimSpace(prefix), "/")}, nil
}

func (c *Conn) Dialect() db.Dialect {
	return db.DialectDuckDB
}

func (c *Conn) ListTables(ctx context.Context) ([]db.TableDescriptor, error) {
	objects, err := c.listParquetObjects(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]db.TableDescriptor, 0, len(objects))
	for _, object := range objects {
		columns, err := c.readParquetColumns(ctx, object.Key)
		if err != nil {
			return nil, fmt.Errorf("read schema of %q: %w", object.Key, err)
		}
		tables = append(tables, db.TableDescriptor{
			Name:    tableNameForObject(object.Key),
			Columns: columns,
		})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

func (c *Conn) Execute(ctx context.Context, sqlText string) (db.Rows, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return db.Rows{}, fmt.Errorf("sql is required")
	}

	objects, err := c.listParquetObjects(ctx)
	if err != nil {
		return db.Rows{}, err
	}
	if len(objects) == 0 {
		return db.Rows{}, fmt.Errorf("no parquet objects under prefix %q", c.prefix)
	}

	workDir, err := os.MkdirTemp("", "askdb-query-")
	if err != nil {
		return db.Rows{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := map[string]string{}
	for index, object := range objects {
		localPath, err := c.materialize(ctx, object.Key, workDir, index)
		if err != nil {
			return db.Rows{}, err
		}
		localPaths[tableNameForObject(object.Key)] = localPath
	}

	conn, err := sql.Open("duckdb", "")
	if err != nil {
		return db.Rows{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for tableName, localPath := range localPaths {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteString(localPath))
		if _, err := conn.ExecContext(ctx, viewSQL); err != nil {
			return db.Rows{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
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

func (c *Conn) listParquetObjects(ctx context.Context) ([]storage.ObjectInfo, error) {
	objects, err := c.store.List(ctx, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("list table objects: %w", err)
	}
	parquetObjects := make([]storage.ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if strings.HasSuffix(object.Key, ".parquet") {
			parquetObjects = append(parquetObjects, object)
		}
	}
	return parquetObjects, nil
}

func (c *Conn) readParquetColumns(ctx context.Context, key string) ([]string, error) {
	workDir, err := os.MkdirTemp("", "askdb-schema-")
	if err != nil {
		return nil, fmt.Errorf("create schema temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath, err := c.materialize(ctx, key, workDir, 0)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open local parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat local parquet file: %w", err)
	}
	parquetFile, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet footer: %w", err)
	}

	fields := parquetFile.Schema().Fields()
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Name())
	}
	return columns, nil
}

func (c *Conn) materialize(ctx context.Context, key, workDir string, index int) (string, error) {
	reader, err := c.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get object %q: %w", key, err)
	}
	localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(tableNameForObject(key)), index))
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return "", fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return "", fmt.Errorf("close object %q: %w", key, err)
	}
	return localPath, nil
}

func tableNameForObject(key string) string {
	return strings.TrimSuffix(path.Base(key), ".parquet")
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

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
