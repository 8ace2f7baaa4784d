package audit

import (
	"fmt"
	"math"

	"github.com/amccray/stigward/internal/database"
)

// JobSummary is the compliance roll-up for one audit job.
type JobSummary struct {
	JobID           int64   `json:"job_id"`
	DefinitionID    int64   `json:"definition_id"`
	BenchmarkID     string  `json:"benchmark_id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	TotalChecks     int     `json:"total_checks"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	NotApplicable   int     `json:"not_applicable"`
	NotReviewed     int     `json:"not_reviewed"`
	Errors          int     `json:"errors"`
	ComplianceScore float64 `json:"compliance_score"`
}

// GroupSummary is the compliance roll-up for one audit group. The overall
// score is pooled over the summed check counts so that a benchmark with
// few checks does not carry the same weight as a large one.
type GroupSummary struct {
	GroupID         int64        `json:"group_id"`
	GroupName       string       `json:"group_name"`
	TargetID        int64        `json:"target_id"`
	TargetName      string       `json:"target_name"`
	Status          string       `json:"status"`
	TotalStigs      int          `json:"total_stigs"`
	CompletedStigs  int          `json:"completed_stigs"`
	TotalChecks     int          `json:"total_checks"`
	Passed          int          `json:"passed"`
	Failed          int          `json:"failed"`
	NotApplicable   int          `json:"not_applicable"`
	NotReviewed     int          `json:"not_reviewed"`
	Errors          int          `json:"errors"`
	ComplianceScore float64      `json:"compliance_score"`
	Jobs            []JobSummary `json:"jobs"`
}

// Aggregator computes compliance summaries on demand. Output is a pure
// function of current storage state; nothing is cached.
type Aggregator struct {
	db *database.DB
}

func NewAggregator(db *database.DB) *Aggregator {
	return &Aggregator{db: db}
}

// Score is passed checks over total checks on a 0-100 scale, one decimal
// place, 0 when there are no checks.
func Score(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(total)*1000) / 10
}

// JobSummary counts a job's results by status and scores it.
func (a *Aggregator) JobSummary(jobID int64) (*JobSummary, error) {
	job, err := a.db.GetAuditJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	return a.summarizeJob(job)
}

func (a *Aggregator) summarizeJob(job *database.AuditJob) (*JobSummary, error) {
	counts, err := a.db.ResultStatusCounts(job.ID)
	if err != nil {
		return nil, err
	}

	s := &JobSummary{
		JobID:         job.ID,
		DefinitionID:  job.DefinitionID,
		Status:        job.Status,
		Passed:        counts[database.CheckPass],
		Failed:        counts[database.CheckFail],
		NotApplicable: counts[database.CheckNotApplicable],
		NotReviewed:   counts[database.CheckNotReviewed],
		Errors:        counts[database.CheckError],
	}
	for _, n := range counts {
		s.TotalChecks += n
	}
	s.ComplianceScore = Score(s.Passed, s.TotalChecks)

	if def, err := a.db.GetDefinition(job.DefinitionID); err == nil && def != nil {
		s.BenchmarkID = def.BenchmarkID
		s.Title = def.Title
	}
	return s, nil
}

// GroupSummary aggregates every job in a group. Counts are summed first
// and the pooled total is scored, never the mean of per-job scores.
func (a *Aggregator) GroupSummary(groupID int64) (*GroupSummary, error) {
	group, err := a.db.GetAuditGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}

	jobs, err := a.db.ListAuditJobsByGroup(groupID)
	if err != nil {
		return nil, err
	}

	summary := &GroupSummary{
		GroupID:    group.ID,
		GroupName:  group.Name,
		TargetID:   group.TargetID,
		Status:     group.Status,
		TotalStigs: len(jobs),
	}

	if target, err := a.db.GetTarget(group.TargetID); err == nil && target != nil {
		summary.TargetName = target.Name
	}

	for i := range jobs {
		js, err := a.summarizeJob(&jobs[i])
		if err != nil {
			return nil, err
		}
		if js.Status == database.StatusCompleted {
			summary.CompletedStigs++
		}
		summary.TotalChecks += js.TotalChecks
		summary.Passed += js.Passed
		summary.Failed += js.Failed
		summary.NotApplicable += js.NotApplicable
		summary.NotReviewed += js.NotReviewed
		summary.Errors += js.Errors
		summary.Jobs = append(summary.Jobs, *js)
	}

	summary.ComplianceScore = Score(summary.Passed, summary.TotalChecks)
	return summary, nil
}
