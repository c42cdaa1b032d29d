package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

func writeReports(w io.Writer, format string, reports []*orchestrator.ExecutionReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if r == nil {
			fmt.Fprintln(w, "chain did not run")
			continue
		}
		if err := writeReport(w, r); err != nil {
			return err
		}
	}
	return nil
}

// writeReport prints one chain's report as aligned sections.
func writeReport(w io.Writer, r *orchestrator.ExecutionReport) error {
	result := r.Result.String()
	if r.Cancelled {
		result += " (cancelled)"
	}
	fmt.Fprintf(w, "Chain %s (run %s): %s in %s\n", r.Chain, r.RunID, result, r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSTEP\tKIND\tOUTCOME\tRETRIES\tID\tERROR")
	for _, s := range r.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Step, s.Kind, s.Outcome, s.Retries, s.ExternalID, s.Error)
	}
	if len(r.Validations) > 0 {
		fmt.Fprintln(tw, "\nCASE\tRESULT\tEXPECTED\tOBSERVED")
		for _, v := range r.Validations {
			res := "PASS"
			if !v.Passed {
				res = "FAIL"
			}
			observed := v.Error
			if observed == "" {
				observed = compact(v.Observed)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Case, res, v.Expected, observed)
		}
	}
	if len(r.Teardown) > 0 {
		fmt.Fprintln(tw, "\nTEARDOWN\tKIND\tOUTCOME\tRETRIES\tID\tERROR")
		for _, t := range r.Teardown {
			outcome := t.Outcome.String()
			if t.Absent {
				outcome += " (already gone)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", t.Step, t.Kind, outcome, t.Retries, t.ExternalID, t.Error)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	left := r.LeftBehind()
	if len(left) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nResources left behind (%d), remove them manually:\n", len(left))
	for _, t := range left {
		fmt.Fprintf(w, "  %s %s %s\n", t.Kind, t.Step, t.ExternalID)
	}
	return nil
}

func compact(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
