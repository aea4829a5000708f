package duckdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/jcognard-actinvision/askdb/internal/db"
	"github.com/jcognard-actinvision/askdb/internal/storage"
)

type userRow struct {
	ID    int64  `parquet:"id"`
	Email string `parquet:"email"`
}

func buildParquet(t *testing.T, rows []userRow) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[userRow](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet rows: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) List(_ context.Context, _ string) ([]storage.ObjectInfo, error) {
	infos := make([]storage.ObjectInfo, 0, len(m.objects))
	for key, data := range m.objects {
		infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(data))})
	}
	return infos, nil
}

func TestListTablesReadsParquetFooters(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{
		"tables/users.parquet": buildParquet(t, []userRow{{ID: 1, Email: "a@example.com"}}),
	}}
	conn, err := NewConn(store, "tables")
	if err != nil {
		t.Fatalf("NewConn() error = %v", err)
	}

	tables, err := conn.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("table count = %d", len(tables))
	}
	if tables[0].Name != "users" {
		t.Fatalf("table name = %q", tables[0].Name)
	}
	if len(tables[0].Columns) != 2 || tables[0].Columns[0] != "id" || tables[0].Columns[1] != "email" {
		t.Fatalf("columns = %v", tables[0].Columns)
	}
}

func TestExecuteQueriesParquetBackedView(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{
		"tables/users.parquet": buildParquet(t, []userRow{
			{ID: 1, Email: "a@example.com"},
			{ID: 2, Email: "b@example.com"},
		}),
	}}
	conn, err := NewConn(store, "tables")
	if err != nil {
		t.Fatalf("NewConn() error = %v", err)
	}

	result, err := conn.Execute(context.Background(), "SELECT COUNT(*) AS count FROM users;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Values) != 1 {
		t.Fatalf("row count = %d", len(result.Values))
	}
	if result.Values[0][0] != int64(2) {
		t.Fatalf("count = %#v", result.Values[0][0])
	}
}

func TestExecuteWrapsBadSQLAsExecutionError(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{
		"tables/users.parquet": buildParquet(t, []userRow{{ID: 1, Email: "a@example.com"}}),
	}}
	conn, err := NewConn(store, "tables")
	if err != nil {
		t.Fatalf("NewConn() error = %v", err)
	}

	_, err = conn.Execute(context.Background(), "SELECT nope FROM users")
	var execErr *db.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ExecutionError", err)
	}
}

func TestTableNameForObject(t *testing.T) {
	if got := tableNameForObject("tables/users.parquet"); got != "users" {
		t.Fatalf("tableNameForObject() = %q", got)
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := stripTrailingSemicolons("SELECT 1; ; "); got != "SELECT 1" {
		t.Fatalf("stripTrailingSemicolons() = %q", got)
	}
}
