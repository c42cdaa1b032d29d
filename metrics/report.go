package metrics

import (
	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// ReportMetrics summarises a finished run as remote write samples. The CLI pushes
// these once per run with Client.PushMetrics.
func ReportMetrics(r *orchestrator.ExecutionReport) []Metric {
	s := r.Summary()
	chain := map[string]string{"chain": r.Chain}
	with := func(k, v string) map[string]string {
		return map[string]string{"chain": r.Chain, k: v}
	}
	ts := r.EndedAt

	success := 0.0
	if r.Succeeded() {
		success = 1
	}

	out := []Metric{
		{Name: "lifecycle_last_run_success", Value: success, Labels: chain, Timestamp: ts},
		{Name: "lifecycle_last_run_timestamp_seconds", Value: float64(r.EndedAt.Unix()), Labels: chain, Timestamp: ts},
		{Name: "lifecycle_last_run_duration_seconds", Value: r.EndedAt.Sub(r.StartedAt).Seconds(), Labels: chain, Timestamp: ts},
		{Name: "lifecycle_run_steps", Value: float64(s.StepsSucceeded), Labels: with("outcome", "succeeded"), Timestamp: ts},
		{Name: "lifecycle_run_steps", Value: float64(s.StepsFailed), Labels: with("outcome", "failed"), Timestamp: ts},
		{Name: "lifecycle_run_steps", Value: float64(s.StepsSkipped), Labels: with("outcome", "skipped"), Timestamp: ts},
		{Name: "lifecycle_run_retries", Value: float64(s.Retries), Labels: chain, Timestamp: ts},
		{Name: "lifecycle_run_validations", Value: float64(s.ValidationsPassed), Labels: with("result", "passed"), Timestamp: ts},
		{Name: "lifecycle_run_validations", Value: float64(s.ValidationsFailed), Labels: with("result", "failed"), Timestamp: ts},
		{Name: "lifecycle_resources_left_behind", Value: float64(len(r.LeftBehind())), Labels: chain, Timestamp: ts},
	}
	for _, st := range r.Steps {
		if st.Outcome == orchestrator.OutcomeSkipped || st.Outcome == orchestrator.OutcomePending {
			continue
		}
		out = append(out, Metric{
			Name:      "lifecycle_step_duration_seconds",
			Value:     st.Duration.Seconds(),
			Labels:    map[string]string{"chain": r.Chain, "step": st.Step, "kind": st.Kind.String()},
			Timestamp: ts,
		})
	}
	return out
}
