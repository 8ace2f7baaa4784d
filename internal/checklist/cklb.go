package checklist

import (
	"encoding/json"
	"fmt"

	"github.com/amccray/stigward/internal/benchmark"
)

// ParseCKLB parses a modern JSON checklist. Producer versions disagree on
// some key names, so fields are read with ordered fallback keys instead
// of fixed struct tags.
func ParseCKLB(data []byte) (*Parsed, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	p := &Parsed{BenchmarkTitle: "Unknown"}

	if td, ok := doc["target_data"].(map[string]any); ok {
		p.TargetName = stringField(td, "host_name", "hostname")
		p.TargetAddress = stringField(td, "ip_address", "host_ip")
	}

	stigs, ok := doc["stigs"].([]any)
	if !ok || len(stigs) == 0 {
		return p, nil
	}
	stig, ok := stigs[0].(map[string]any)
	if !ok {
		return p, nil
	}

	p.BenchmarkID = stringField(stig, "stig_id", "benchmark_id")
	if title := stringField(stig, "display_name", "stig_name", "title"); title != "" {
		p.BenchmarkTitle = title
	}
	p.ReleaseInfo = stringField(stig, "release_info", "release")

	rules, _ := stig["rules"].([]any)
	for _, raw := range rules {
		rule, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		p.Results = append(p.Results, Result{
			RuleID:         stringField(rule, "rule_id", "rule_id_src", "group_id"),
			Title:          stringField(rule, "rule_title", "group_title", "title"),
			Severity:       benchmark.NormalizeSeverity(stringField(rule, "severity")),
			Status:         normalizeStatus(stringField(rule, "status")),
			FindingDetails: stringField(rule, "finding_details", "finding_detail"),
			Comments:       stringField(rule, "comments", "comment"),
		})
	}

	return p, nil
}

// stringField returns the first non-empty string among the given keys.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
