package ask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jcognard-actinvision/askdb/internal/db"
	"github.com/jcognard-actinvision/askdb/internal/llm"
	"github.com/jcognard-actinvision/askdb/internal/observability"
	"github.com/jcognard-actinvision/askdb/internal/prompt"
	"github.com/jcognard-actinvision/askdb/internal/safety"
)

const (
	stageQuery       = "query"
	stageTableFilter = "table_filter"
	stageAnswer      = "answer"
)

type Options struct {
	MaxTablesBeforeLookup int
	QueryTemperature      float64
	AnswerTemperature     float64
}

// Response is the full outcome of one ask invocation. Prompt carries the
// answer-stage prompt, which embeds the question, the schema, the generated
// query and its result.
type Response struct {
	Question string      `json:"question"`
	Query    string      `json:"query"`
	Result   QueryResult `json:"result"`
	Prompt   string      `json:"prompt"`
	Answer   string      `json:"answer"`
}

// Service runs the question-to-answer pipeline: schema listing (with
// model-assisted filtering above a table-count threshold), query generation,
// safety validation, execution, and answer synthesis. Each call is strictly
// sequential with no retries; the first failing stage aborts the rest.
type Service struct {
	conn      db.Connection
	client    llm.Client
	prompts   *prompt.Builder
	validator *safety.Validator
	opts      Options
	logger    *slog.Logger
}

func NewService(conn db.Connection, client llm.Client, validator *safety.Validator, opts Options, logger *slog.Logger) (*Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("safety validator is required")
	}
	if opts.MaxTablesBeforeLookup <= 0 {
		return nil, fmt.Errorf("max tables before lookup must be positive")
	}
	return &Service{
		conn:      conn,
		client:    client,
		prompts:   prompt.NewBuilder(conn.Dialect()),
		validator: validator,
		opts:      opts,
		logger:    logger,
	}, nil
}

// invocation scopes the schema snapshot to a single Ask or GetQuery call.
// The snapshot is listed lazily on first need and reused within the call; it
// is never shared across invocations, so concurrent asks stay isolated.
type invocation struct {
	question string
	tables   []db.TableDescriptor
	listed   bool
}

// Ask answers a natural-language question against the connected database.
func (s *Service) Ask(ctx context.Context, question string) (Response, error) {
	start := time.Now()
	response, err := s.ask(ctx, question)
	observability.ObserveAsk(outcomeForError(err), time.Since(start))
	return response, err
}

func (s *Service) ask(ctx context.Context, question string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("question is required")
	}

	inv := &invocation{question: question}
	query, err := s.generateQuery(ctx, inv)
	if err != nil {
		return Response{}, err
	}

	rows, err := s.conn.Execute(ctx, query)
	if err != nil {
		return Response{}, err
	}
	result := newQueryResult(rows)
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("encode query result: %w", err)
	}

	tables, err := s.schemaTables(ctx, inv)
	if err != nil {
		return Response{}, err
	}
	answerPrompt, err := s.prompts.BuildQueryPrompt(question, tables, query, string(resultJSON))
	if err != nil {
		return Response{}, err
	}

	completion, err := s.complete(ctx, stageAnswer, llm.Request{
		Prompt:      answerPrompt,
		Temperature: s.opts.AnswerTemperature,
	})
	if err != nil {
		return Response{}, err
	}
	answer := trimQuotes(strings.TrimSpace(completion))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "ask completed",
			slog.String("query", query),
			slog.Int("rows", len(result.Records)),
		)
	}
	return Response{
		Question: question,
		Query:    query,
		Result:   result,
		Prompt:   answerPrompt,
		Answer:   answer,
	}, nil
}

// GetQuery generates and validates SQL for a question without executing it.
func (s *Service) GetQuery(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is required")
	}
	return s.generateQuery(ctx, &invocation{question: question})
}

func (s *Service) generateQuery(ctx context.Context, inv *invocation) (string, error) {
	tables, err := s.schemaTables(ctx, inv)
	if err != nil {
		return "", err
	}
	queryPrompt, err := s.prompts.BuildQueryPrompt(inv.question, tables, "", "")
	if err != nil {
		return "", err
	}

	completion, err := s.complete(ctx, stageQuery, llm.Request{
		Prompt:      queryPrompt,
		Stop:        "\n",
		Temperature: s.opts.QueryTemperature,
	})
	if err != nil {
		return "", err
	}

	query := extractSQL(completion)
	if query == "" {
		return "", &llm.ModelCallError{Err: fmt.Errorf("completion contained no query")}
	}
	if err := s.validator.EnsureSafe(query); err != nil {
		observability.IncrementUnsafeQuery()
		if s.logger != nil {
			s.logger.WarnContext(ctx, "generated query rejected", slog.String("query", query))
		}
		return "", err
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "generated query", slog.String("query", query))
	}
	return query, nil
}

// schemaTables returns the snapshot for this invocation, listing the schema
// at most once. Above the configured threshold the full list is narrowed by
// a model call; names the model returns that do not exist in the schema are
// dropped, and no matches means an empty snapshot.
func (s *Service) schemaTables(ctx context.Context, inv *invocation) ([]db.TableDescriptor, error) {
	if inv.listed {
		return inv.tables, nil
	}

	all, err := s.conn.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	observability.IncrementSchemaListing()

	tables := all
	if len(all) >= s.opts.MaxTablesBeforeLookup {
		tables, err = s.filterTables(ctx, inv.question, all)
		if err != nil {
			return nil, err
		}
	}

	inv.tables = tables
	inv.listed = true
	return tables, nil
}

func (s *Service) filterTables(ctx context.Context, question string, all []db.TableDescriptor) ([]db.TableDescriptor, error) {
	filterPrompt, err := s.prompts.BuildTableFilterPrompt(question, all)
	if err != nil {
		return nil, err
	}
	completion, err := s.complete(ctx, stageTableFilter, llm.Request{
		Prompt:      filterPrompt,
		Stop:        "\n",
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, name := range parseTableNames(completion) {
		wanted[strings.ToLower(name)] = true
	}
	filtered := make([]db.TableDescriptor, 0, len(wanted))
	for _, table := range all {
		if wanted[strings.ToLower(table.Name)] {
			filtered = append(filtered, table)
		}
	}
	if s.logger != nil && len(filtered) == 0 {
		s.logger.WarnContext(ctx, "table filter matched no tables", slog.String("completion", completion))
	}
	return filtered, nil
}

func (s *Service) complete(ctx context.Context, stage string, req llm.Request) (string, error) {
	start := time.Now()
	completion, err := s.client.Complete(ctx, req)
	observability.ObserveModelCall(stage, time.Since(start))
	if err != nil {
		return "", err
	}
	return completion, nil
}

func outcomeForError(err error) string {
	if err == nil {
		return "ok"
	}
	var unsafeErr *safety.UnsafeQueryError
	if errors.As(err, &unsafeErr) {
		return "unsafe_query"
	}
	var modelErr *llm.ModelCallError
	if errors.As(err, &modelErr) {
		return "model_error"
	}
	var execErr *db.ExecutionError
	if errors.As(err, &execErr) {
		return "execution_error"
	}
	return "error"
}
