package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jcognard-actinvision/askdb/internal/db"
	"github.com/jcognard-actinvision/askdb/internal/llm"
	"github.com/jcognard-actinvision/askdb/internal/safety"
)

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Ask == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask service is not configured", false, nil)
		return
	}
	if err := requireRole(r, "ask"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	response, err := deps.Ask.Ask(r.Context(), question)
	if err != nil {
		writeAskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleGetQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Ask == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask service is not configured", false, nil)
		return
	}
	if err := requireRole(r, "ask"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	query, err := deps.Ask.GetQuery(r.Context(), question)
	if err != nil {
		writeAskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query})
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return "", false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return "", false
	}
	return req.Question, true
}

func writeAskError(w http.ResponseWriter, r *http.Request, err error) {
	var unsafeErr *safety.UnsafeQueryError
	if errors.As(err, &unsafeErr) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "UNSAFE_QUERY", "generated query was rejected by the safety validator", false, map[string]any{"query": unsafeErr.Query})
		return
	}
	var modelErr *llm.ModelCallError
	if errors.As(err, &modelErr) {
		writeError(r.Context(), w, http.StatusBadGateway, "MODEL_CALL_FAILED", "language model call failed", true, map[string]any{"details": err.Error()})
		return
	}
	var execErr *db.ExecutionError
	if errors.As(err, &execErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", "generated query failed to execute", false, map[string]any{"query": execErr.Query, "details": execErr.Err.Error()})
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", err.Error(), false, nil)
}
