// Package importer reconciles parsed benchmarks and checklists against
// storage: update-in-place by natural identifier, full rule replacement on
// benchmark re-import, ignore-on-duplicate result inserts.
package importer

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/amccray/stigward/internal/benchmark"
	"github.com/amccray/stigward/internal/checklist"
	"github.com/amccray/stigward/internal/database"
)

// stubDescription marks definitions created as placeholders during
// checklist import, before the real benchmark has been uploaded.
const stubDescription = "Placeholder created from checklist import; upload the benchmark to populate rules."

type Importer struct {
	db     *database.DB
	limits benchmark.Limits
}

func New(db *database.DB, limits benchmark.Limits) *Importer {
	return &Importer{db: db, limits: limits}
}

// EntrySummary reports the outcome for one benchmark inside an upload.
type EntrySummary struct {
	Entry       string `json:"entry"`
	BenchmarkID string `json:"benchmark_id,omitempty"`
	Title       string `json:"title,omitempty"`
	RuleCount   int    `json:"rule_count"`
	Error       string `json:"error,omitempty"`
}

// BenchmarkSummary itemizes a benchmark upload. Partial failure of a
// library archive is reported here, not raised as an error.
type BenchmarkSummary struct {
	Entries      []EntrySummary `json:"entries"`
	SuccessCount int            `json:"success_count"`
	ErrorCount   int            `json:"error_count"`
}

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ImportBenchmark ingests an uploaded benchmark: a bare XCCDF document, an
// archive holding one, or a library archive holding many. Archive-level
// failures (limits, nothing parseable) are returned as errors; per-entry
// failures inside a library are itemized in the summary.
func (im *Importer) ImportBenchmark(data []byte, filename string) (*BenchmarkSummary, error) {
	var parsed []benchmark.Parsed

	if bytes.HasPrefix(data, zipMagic) {
		var err error
		parsed, err = benchmark.Unpack(data, im.limits)
		if err != nil {
			return nil, err
		}
	} else {
		if im.limits.MaxDocumentBytes > 0 && int64(len(data)) > im.limits.MaxDocumentBytes {
			return nil, fmt.Errorf("%w: document is %d bytes (limit %d)",
				benchmark.ErrResourceLimit, len(data), im.limits.MaxDocumentBytes)
		}
		def, rules, err := benchmark.ParseBenchmark(data, filename)
		if err != nil {
			return nil, err
		}
		parsed = []benchmark.Parsed{{EntryName: filename, Definition: def, Rules: rules}}
	}

	summary := &BenchmarkSummary{}
	for _, p := range parsed {
		entry := EntrySummary{Entry: p.EntryName}
		if p.Err == nil {
			p.Err = im.upsertDefinition(p.Definition, p.Rules)
		}
		if p.Err != nil {
			entry.Error = p.Err.Error()
			summary.ErrorCount++
		} else {
			entry.BenchmarkID = p.Definition.BenchmarkID
			entry.Title = p.Definition.Title
			entry.RuleCount = len(p.Rules)
			summary.SuccessCount++
			slog.Info("benchmark imported",
				"benchmark_id", p.Definition.BenchmarkID,
				"rules", len(p.Rules),
				"entry", p.EntryName,
			)
		}
		summary.Entries = append(summary.Entries, entry)
	}
	return summary, nil
}

// upsertDefinition writes a definition keyed by its natural id and swaps
// in the complete rule set. Re-import replaces, never merges.
func (im *Importer) upsertDefinition(def *database.Definition, rules []database.Rule) error {
	if err := im.db.UpsertDefinition(def); err != nil {
		return err
	}
	return im.db.ReplaceRules(def.ID, rules)
}

// ChecklistSummary reports one checklist import.
type ChecklistSummary struct {
	TargetID          int64  `json:"target_id"`
	TargetCreated     bool   `json:"target_created"`
	DefinitionID      int64  `json:"definition_id"`
	DefinitionCreated bool   `json:"definition_created"`
	JobID             int64  `json:"job_id"`
	TotalResults      int    `json:"total_results"`
	ImportedCount     int    `json:"imported_count"`
	BenchmarkID       string `json:"benchmark_id"`
}

// ImportChecklist ingests one per-host checklist: resolves or creates the
// target and a definition stub, records a pre-completed audit job, and
// inserts results with first-writer-wins semantics. The target's
// last-audit timestamp is updated even when nothing was importable.
func (im *Importer) ImportChecklist(data []byte, filename string) (*ChecklistSummary, error) {
	parsed, err := checklist.Parse(data, filename)
	if err != nil {
		return nil, err
	}

	target, created, err := im.resolveTarget(parsed)
	if err != nil {
		return nil, err
	}

	def, defCreated, err := im.resolveDefinition(parsed, filename)
	if err != nil {
		return nil, err
	}

	// Checklist results are historical evidence, so the job is recorded
	// as already completed with synthetic timestamps.
	now := time.Now()
	job := &database.AuditJob{
		TargetID:     target.ID,
		DefinitionID: def.ID,
		Status:       database.StatusCompleted,
		StartedAt:    &now,
		CompletedAt:  &now,
	}
	if err := im.db.CreateAuditJob(job); err != nil {
		return nil, err
	}

	var rows []database.AuditResult
	for _, r := range parsed.Results {
		if r.RuleID == "" {
			continue
		}
		rows = append(rows, database.AuditResult{
			JobID:          job.ID,
			RuleID:         r.RuleID,
			Title:          r.Title,
			Severity:       r.Severity,
			Status:         r.Status,
			FindingDetails: r.FindingDetails,
			Comments:       r.Comments,
		})
	}

	imported := 0
	if len(rows) > 0 {
		imported, err = im.db.InsertResultsIgnore(rows)
		if err != nil {
			return nil, err
		}
	}

	if err := im.db.TouchTargetLastAudit(target.ID); err != nil {
		return nil, err
	}

	slog.Info("checklist imported",
		"target", target.Name,
		"benchmark_id", def.BenchmarkID,
		"results", imported,
		"skipped", len(parsed.Results)-imported,
	)

	return &ChecklistSummary{
		TargetID:          target.ID,
		TargetCreated:     created,
		DefinitionID:      def.ID,
		DefinitionCreated: defCreated,
		JobID:             job.ID,
		TotalResults:      len(parsed.Results),
		ImportedCount:     imported,
		BenchmarkID:       def.BenchmarkID,
	}, nil
}

// resolveTarget matches an existing target by name or address, first
// match wins, and creates one otherwise.
func (im *Importer) resolveTarget(parsed *checklist.Parsed) (*database.Target, bool, error) {
	target, err := im.db.FindTargetByNameOrAddress(parsed.TargetName, parsed.TargetAddress)
	if err != nil {
		return nil, false, err
	}
	if target != nil {
		return target, false, nil
	}

	name := parsed.TargetName
	if name == "" {
		name = parsed.TargetAddress
	}
	if name == "" {
		name = "unknown-host"
	}

	target = &database.Target{
		Name:     name,
		Address:  parsed.TargetAddress,
		Platform: "unknown",
		ConnMeta: "{}",
		Active:   true,
	}
	if err := im.db.CreateTarget(target); err != nil {
		return nil, false, err
	}
	return target, true, nil
}

// resolveDefinition looks up the referenced benchmark and, when it has
// never been imported, creates a rule-less stub carrying only the
// checklist's metadata.
func (im *Importer) resolveDefinition(parsed *checklist.Parsed, filename string) (*database.Definition, bool, error) {
	benchmarkID := parsed.BenchmarkID
	if benchmarkID == "" {
		base := filepath.Base(filename)
		benchmarkID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	def, err := im.db.GetDefinitionByBenchmarkID(benchmarkID)
	if err != nil {
		return nil, false, err
	}
	if def != nil {
		return def, false, nil
	}

	def = &database.Definition{
		BenchmarkID: benchmarkID,
		Title:       parsed.BenchmarkTitle,
		ReleaseDate: parsed.ReleaseInfo,
		Platform:    benchmark.DetectPlatform(parsed.BenchmarkTitle),
		Description: stubDescription,
	}
	if err := im.db.UpsertDefinition(def); err != nil {
		return nil, false, err
	}
	return def, true, nil
}
