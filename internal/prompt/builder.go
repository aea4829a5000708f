package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/jcognard-actinvision/askdb/internal/db"
)

// The query prompt doubles as the answer prompt: rendered without Query and
// Result it ends at "SQLQuery:" and asks the model for SQL, rendered with
// them it ends at "Answer:" and asks for the final natural-language answer.
const queryPromptText = `You are a {{.Dialect}} expert. Given an input question, first create a syntactically correct {{.Dialect}} query to run, then look at the results of the query and return the answer to the input question.
Unless the user specifies in the question a specific number of examples to obtain, query for at most 10 results.
Never query for all columns from a table. You must query only the columns that are needed to answer the question.
Pay attention to use only the column names you can see in the tables below. Be careful to not query for columns that do not exist. Also, pay attention to which column is in which table.

Use the following format:

Question: "Question here"
SQLQuery: "SQL Query to run"
SQLResult: "Result of the SQLQuery"
Answer: "Final answer here"

Only use the following tables:

{{.Tables}}

Question: {{.Question}}
SQLQuery:{{if .Query}} {{.Query}}
SQLResult: {{.Result}}
Answer:{{end}}
`

const tableFilterPromptText = `Given the input question and a list of available database tables, return a comma separated list of the table names that are required to answer this question.

Question: {{.Question}}
Available tables: {{.Tables}}

Required tables:`

// Builder renders the prompts sent to the language model. It is pure: the
// same inputs always produce the same text.
type Builder struct {
	dialect    db.Dialect
	queryTmpl  *template.Template
	filterTmpl *template.Template
}

func NewBuilder(dialect db.Dialect) *Builder {
	return &Builder{
		dialect:    dialect,
		queryTmpl:  template.Must(template.New("query").Parse(queryPromptText)),
		filterTmpl: template.Must(template.New("table_filter").Parse(tableFilterPromptText)),
	}
}

// BuildQueryPrompt renders the query-generation prompt. Pass empty query and
// result for the first pass; pass the generated query and its JSON-encoded
// result to obtain the answer prompt.
func (b *Builder) BuildQueryPrompt(question string, tables []db.TableDescriptor, query, result string) (string, error) {
	data := map[string]string{
		"Dialect":  string(b.dialect),
		"Tables":   formatTables(tables),
		"Question": question,
		"Query":    query,
		"Result":   result,
	}
	return b.render(b.queryTmpl, data)
}

func (b *Builder) BuildTableFilterPrompt(question string, tables []db.TableDescriptor) (string, error) {
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		names = append(names, table.Name)
	}
	data := map[string]string{
		"Question": question,
		"Tables":   strings.Join(names, ", "),
	}
	return b.render(b.filterTmpl, data)
}

func (b *Builder) render(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func formatTables(tables []db.TableDescriptor) string {
	lines := make([]string, 0, len(tables))
	for _, table := range tables {
		if len(table.Columns) == 0 {
			lines = append(lines, table.Name)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", table.Name, strings.Join(table.Columns, ", ")))
	}
	return strings.Join(lines, "\n")
}
