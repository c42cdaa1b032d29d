package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkeycloud-chad/lifecycle/logging"
	"github.com/brightkeycloud-chad/lifecycle/server/runner"
)

func runningStatus() runner.RunStatus {
	logs := []logging.Entry{{Level: "INFO", Message: "created"}}
	return runner.RunStatus{
		State:      runner.RunStateRunning,
		RunSummary: runner.RunSummary{ID: "run-1", Chains: []string{"a", "b"}},
		Steps: []runner.StepExecution{
			{Chain: "a", Step: "role", Outcome: "succeeded", Logs: logs},
			{Chain: "b", Step: "role", Outcome: "pending", Logs: logs},
		},
	}
}

// Tests
// ---------------------------------------------------------------------

func TestRunStatusHandler(t *testing.T) {
	handler := NewRunStatusHandler(&mockRunner{status: runningStatus()})

	tests := []struct {
		name     string
		url      string
		chains   []string
		withLogs bool
	}{
		{"everything", "/api/run", []string{"a", "b"}, true},
		{"one chain", "/api/run?chain=b", []string{"b"}, true},
		{"without logs", "/api/run?logs=false", []string{"a", "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))
			require.Equal(t, http.StatusOK, w.Code)

			var st runner.RunStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
			assert.Equal(t, runner.RunStateRunning, st.State)
			assert.Equal(t, "run-1", st.ID)

			var chains []string
			for _, s := range st.Steps {
				chains = append(chains, s.Chain)
				assert.Equal(t, tt.withLogs, len(s.Logs) > 0, "step %s/%s", s.Chain, s.Step)
			}
			assert.Equal(t, tt.chains, chains)
		})
	}
}

func TestRunStatusHandler_BadLogsParam(t *testing.T) {
	handler := NewRunStatusHandler(&mockRunner{status: runningStatus()})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/run?logs=maybe", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunStatusHandler_DoesNotModifyProviderSteps(t *testing.T) {
	r := &mockRunner{status: runningStatus()}
	handler := NewRunStatusHandler(r)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/run?logs=false", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotEmpty(t, r.status.Steps[0].Logs)
}

func TestHandleHealth(t *testing.T) {
	w := httptest.NewRecorder()
	HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", w.Body.String())
}
