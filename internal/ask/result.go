package ask

import (
	"encoding/json"

	"github.com/jcognard-actinvision/askdb/internal/db"
)

type Record map[string]any

// QueryResult is the executed query's row set. A result with zero rows is an
// explicit empty marker: it JSON-encodes as an empty object, not an empty
// array, so downstream consumers can distinguish "no rows" from a list.
type QueryResult struct {
	Columns []string
	Records []Record
}

func newQueryResult(rows db.Rows) QueryResult {
	records := make([]Record, 0, len(rows.Values))
	for _, row := range rows.Values {
		record := make(Record, len(rows.Columns))
		for i, column := range rows.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return QueryResult{Columns: rows.Columns, Records: records}
}

func (r QueryResult) Empty() bool {
	return len(r.Records) == 0
}

func (r QueryResult) MarshalJSON() ([]byte, error) {
	if len(r.Records) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Records)
}
