package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jcognard-actinvision/askdb/internal/ask"
	"github.com/jcognard-actinvision/askdb/internal/auth"
	"github.com/jcognard-actinvision/askdb/internal/config"
	"github.com/jcognard-actinvision/askdb/internal/db"
	"github.com/jcognard-actinvision/askdb/internal/llm"
	"github.com/jcognard-actinvision/askdb/internal/safety"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

type fakeAskService struct {
	response  ask.Response
	query     string
	err       error
	questions []string
}

func (f *fakeAskService) Ask(_ context.Context, question string) (ask.Response, error) {
	f.questions = append(f.questions, question)
	if f.err != nil {
		return ask.Response{}, f.err
	}
	return f.response, nil
}

func (f *fakeAskService) GetQuery(_ context.Context, question string) (string, error) {
	f.questions = append(f.questions, question)
	if f.err != nil {
		return "", f.err
	}
	return f.query, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("askdb-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func TestAskEndpointReturnsFullResponse(t *testing.T) {
	service := &fakeAskService{response: ask.Response{
		Question: "How many users signed up this month?",
		Query:    "SELECT COUNT(*) FROM users WHERE created_at >= '2024-01-01'",
		Result: ask.QueryResult{
			Columns: []string{"count"},
			Records: []ask.Record{{"count": 42}},
		},
		Prompt: "You are a postgresql expert...",
		Answer: "42 users signed up this month.",
	}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: service})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"How many users signed up this month?"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["answer"] != "42 users signed up this month." {
		t.Fatalf("answer = %v", body["answer"])
	}
	if body["query"] == "" || body["prompt"] == "" {
		t.Fatalf("body = %v", body)
	}
	result, ok := body["result"].([]any)
	if !ok || len(result) != 1 {
		t.Fatalf("result = %v", body["result"])
	}
}

func TestAskEndpointEncodesEmptyResultAsObject(t *testing.T) {
	service := &fakeAskService{response: ask.Response{
		Question: "Any users today?",
		Query:    "SELECT id FROM users WHERE 1 = 0",
		Result:   ask.QueryResult{Columns: []string{"id"}},
		Prompt:   "p",
		Answer:   "No rows matched.",
	}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: service})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"Any users today?"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	result, ok := body["result"].(map[string]any)
	if !ok || len(result) != 0 {
		t.Fatalf("result = %#v, want empty object", body["result"])
	}
}

func TestAskEndpointRejectsMissingQuestion(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Ask: &fakeAskService{}})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"  "}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskEndpointMapsUnsafeQueryTo422(t *testing.T) {
	service := &fakeAskService{err: &safety.UnsafeQueryError{Query: "DROP TABLE users"}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: service})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"Remove everything"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "UNSAFE_QUERY" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestAskEndpointMapsModelFailureTo502(t *testing.T) {
	service := &fakeAskService{err: &llm.ModelCallError{Err: errors.New("quota exceeded")}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: service})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"How many users?"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskEndpointMapsExecutionFailureTo500(t *testing.T) {
	service := &fakeAskService{err: &db.ExecutionError{Query: "SELECT nope", Err: errors.New("column does not exist")}}
	handler := NewHandler(testConfig(t), Dependencies{Ask: service})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"How many users?"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "QUERY_EXECUTION_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestQueryEndpointReturnsSQLOnly(t *testing.T) {
	service := &fakeAskService{query: "SELECT id FROM users"}
	handler := NewHandler(testConfig(t), Dependencies{Ask: service})

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"List user ids"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["query"] != "SELECT id FROM users" {
		t.Fatalf("query = %v", body["query"])
	}
}

func TestProtectedRoutesRequireAPIKeyWhenAuthEnabled(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("key-1:analyst:ask")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	service := &fakeAskService{query: "SELECT 1"}
	handler := NewHandler(testConfig(t), Dependencies{
		Ask:            service,
		AuthMiddleware: auth.Middleware(nil, validator),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"q"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without key", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("X-API-Key", "key-1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{
		Readiness: func(context.Context) error { return nil },
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rr.Code)
	}
}

func TestReadyEndpointReportsFailingCheck(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{
		Readiness: func(context.Context) error { return errors.New("llm api key is not configured") },
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d", rr.Code)
	}
}
