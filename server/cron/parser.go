package cron

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	triggerSeparator   = ";"
	chainSeparator     = ":"
	chainListSeparator = ","
)

// TriggerSpec is one schedule and the chains it runs.
type TriggerSpec struct {
	Chains   []string
	CronSpec string
}

// ParseTriggerSpecs parses a multi-trigger specification string into individual trigger specs.
// The format is: chain1,chain2:cron_expression;chain3:cron_expression2
//
// Example:
//
//	"lambda-smoke,remote-dir:0 2 * * *;nightly:@daily"
//
// Returns an error if:
//   - Any trigger is missing chains or a cron expression
//   - Any chain name is not in available
//   - Any cron expression is invalid
//   - Any trigger names a chain twice
func ParseTriggerSpecs(spec string, available []string) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	var specs []TriggerSpec
	for _, triggerStr := range strings.Split(spec, triggerSeparator) {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue
		}

		ts, err := parseSingleTrigger(triggerStr, available)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ts)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}
	return specs, nil
}

func parseSingleTrigger(triggerStr string, available []string) (TriggerSpec, error) {
	// The chain list ends at the first colon; descriptors never contain one.
	chainsStr, cronSpec, ok := strings.Cut(triggerStr, chainSeparator)
	if !ok {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'chains:cron', got '%s'", triggerStr)
	}
	chainsStr = strings.TrimSpace(chainsStr)
	cronSpec = strings.TrimSpace(cronSpec)

	if chainsStr == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing chains in '%s'", triggerStr)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", triggerStr)
	}

	var chains []string
	for _, c := range strings.Split(chainsStr, chainListSeparator) {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if slices.Contains(chains, c) {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: duplicate chain '%s' in '%s'", c, triggerStr)
		}
		if !slices.Contains(available, c) {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown chain '%s' in '%s' (available: %s)",
				c, triggerStr, strings.Join(available, ", "))
		}
		chains = append(chains, c)
	}
	if len(chains) == 0 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: no valid chains in '%s'", triggerStr)
	}

	if _, err := parser.Parse(cronSpec); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: invalid cron expression in '%s': %w", triggerStr, err)
	}

	return TriggerSpec{Chains: chains, CronSpec: cronSpec}, nil
}
