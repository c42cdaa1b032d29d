package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkeycloud-chad/lifecycle/server/runner"
)

// Tests
// ---------------------------------------------------------------------

func TestHistoryHandler(t *testing.T) {
	r := &mockRunner{history: []runner.RunSummary{
		{ID: "b", Result: runner.ResultPartialFailure, LeftBehind: 1},
		{ID: "a", Result: runner.ResultSuccess},
	}}
	handler := NewHistoryHandler(r)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got []runner.RunSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, r.history, got)
}

func TestHistoryHandler_Filters(t *testing.T) {
	r := &mockRunner{history: []runner.RunSummary{
		{ID: "d", Chains: []string{"web"}, Result: runner.ResultSuccess},
		{ID: "c", Chains: []string{"web", "etl"}, Result: runner.ResultPartialFailure},
		{ID: "b", Chains: []string{"etl"}, Result: runner.ResultSuccess},
		{ID: "a", Chains: []string{"web"}, Result: runner.ResultError},
	}}
	handler := NewHistoryHandler(r)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"d", "c", "b", "a"}},
		{"?chain=etl", []string{"c", "b"}},
		{"?result=success", []string{"d", "b"}},
		{"?chain=web&result=error", []string{"a"}},
		{"?limit=2", []string{"d", "c"}},
		{"?chain=web&limit=2", []string{"d", "c"}},
		{"?chain=none", []string{}},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history"+tt.query, nil))
		require.Equal(t, http.StatusOK, w.Code, tt.query)

		var got []runner.RunSummary
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		ids := []string{}
		for _, run := range got {
			ids = append(ids, run.ID)
		}
		assert.Equal(t, tt.want, ids, tt.query)
	}
}

func TestHistoryHandler_BadLimit(t *testing.T) {
	handler := NewHistoryHandler(&mockRunner{})

	for _, q := range []string{"?limit=0", "?limit=-1", "?limit=ten"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestRunRecordHandler(t *testing.T) {
	r := &mockRunner{records: map[string]runner.RunRecord{
		"a": {
			RunSummary: runner.RunSummary{ID: "a"},
			Steps:      []runner.StepExecution{{Chain: "demo", Step: "fn", Outcome: "succeeded"}},
		},
	}}
	handler := NewRunRecordHandler(r)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "found", query: "?id=a", status: http.StatusOK},
		{name: "missing id", query: "", status: http.StatusBadRequest},
		{name: "unknown id", query: "?id=zzz", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/run"+tt.query, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/run?id=a", nil))
	assert.Contains(t, w.Body.String(), `"step":"fn"`)
}
