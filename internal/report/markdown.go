// Package report renders the canonical result model for humans: markdown
// and PDF compliance summaries per audit group, and STIG Viewer CKL
// re-export per job. Reports are derived artifacts, regenerated from
// storage on demand.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amccray/stigward/internal/audit"
	"github.com/amccray/stigward/internal/database"
)

type Generator struct {
	db         *database.DB
	agg        *audit.Aggregator
	reportsDir string
	fontPath   string
}

func NewGenerator(db *database.DB, agg *audit.Aggregator, reportsDir, fontPath string) *Generator {
	return &Generator{db: db, agg: agg, reportsDir: reportsDir, fontPath: fontPath}
}

func (g *Generator) GenerateMarkdown(groupID int64) (string, error) {
	summary, err := g.agg.GroupSummary(groupID)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Compliance Report: %s\n\n", summary.GroupName))
	b.WriteString(fmt.Sprintf("**Target:** %s  \n", summary.TargetName))
	b.WriteString(fmt.Sprintf("**Generated:** %s  \n", time.Now().Format("January 2, 2006 15:04:05 MST")))
	b.WriteString(fmt.Sprintf("**Status:** %s  \n\n", summary.Status))

	// Overall posture
	b.WriteString("## Overall Compliance\n\n")
	b.WriteString(fmt.Sprintf("**Score: %.1f%%** across %d benchmark(s), %d check(s).\n\n",
		summary.ComplianceScore, summary.TotalStigs, summary.TotalChecks))
	b.WriteString("| Status | Count |\n")
	b.WriteString("|---|---|\n")
	b.WriteString(fmt.Sprintf("| Passed | %d |\n", summary.Passed))
	b.WriteString(fmt.Sprintf("| Failed | %d |\n", summary.Failed))
	b.WriteString(fmt.Sprintf("| Not Applicable | %d |\n", summary.NotApplicable))
	b.WriteString(fmt.Sprintf("| Not Reviewed | %d |\n", summary.NotReviewed))
	b.WriteString(fmt.Sprintf("| Errors | %d |\n\n", summary.Errors))

	// Per-benchmark breakdown
	b.WriteString("## Benchmarks\n\n")
	b.WriteString("| Benchmark | Status | Checks | Passed | Failed | Score |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, js := range summary.Jobs {
		title := js.Title
		if title == "" {
			title = js.BenchmarkID
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %.1f%% |\n",
			title, js.Status, js.TotalChecks, js.Passed, js.Failed, js.ComplianceScore))
	}
	b.WriteString("\n")

	// Open findings per benchmark
	for _, js := range summary.Jobs {
		results, err := g.db.ListResultsByJob(js.JobID)
		if err != nil {
			return "", err
		}

		var open []database.AuditResult
		for _, r := range results {
			if r.Status == database.CheckFail {
				open = append(open, r)
			}
		}
		if len(open) == 0 {
			continue
		}

		title := js.Title
		if title == "" {
			title = js.BenchmarkID
		}
		b.WriteString(fmt.Sprintf("## Open Findings: %s\n\n", title))
		b.WriteString("| Rule | Severity | Finding |\n")
		b.WriteString("|---|---|---|\n")
		for _, r := range open {
			details := strings.ReplaceAll(r.FindingDetails, "\n", " ")
			if len(details) > 120 {
				details = details[:120] + "..."
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", r.RuleID, r.Severity, details))
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

func (g *Generator) SaveMarkdown(groupID int64) (string, error) {
	content, err := g.GenerateMarkdown(groupID)
	if err != nil {
		return "", err
	}

	os.MkdirAll(g.reportsDir, 0755)
	filename := fmt.Sprintf("group-%d-%s.md", groupID, time.Now().Format("20060102-150405"))
	path := filepath.Join(g.reportsDir, filename)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
