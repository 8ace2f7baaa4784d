package audit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amccray/stigward/internal/database"
)

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Score(0, 0))
	assert.Equal(t, 0.0, Score(0, 10))
	assert.Equal(t, 100.0, Score(10, 10))
	assert.Equal(t, 53.3, Score(8, 15))
	assert.Equal(t, 33.3, Score(1, 3))
	assert.Equal(t, 66.7, Score(2, 3))
}

func seedJobWithResults(t *testing.T, db *database.DB, tgt *database.Target, groupID *int64, statuses map[string]int) *database.AuditJob {
	t.Helper()
	d := &database.Definition{BenchmarkID: "bench", Title: "Bench"}
	require.NoError(t, db.UpsertDefinition(d))

	job := &database.AuditJob{
		TargetID:     tgt.ID,
		DefinitionID: d.ID,
		GroupID:      groupID,
		Status:       database.StatusCompleted,
	}
	require.NoError(t, db.CreateAuditJob(job))

	i := 0
	var results []database.AuditResult
	for status, n := range statuses {
		for j := 0; j < n; j++ {
			results = append(results, database.AuditResult{
				JobID:  job.ID,
				RuleID: fmt.Sprintf("SV-%d_rule", i),
				Status: status,
			})
			i++
		}
	}
	_, err := db.InsertResultsIgnore(results)
	require.NoError(t, err)
	return job
}

func TestJobSummary(t *testing.T) {
	db := newTestDB(t)
	tgt := &database.Target{Name: "web01", ConnMeta: "{}", Active: true}
	require.NoError(t, db.CreateTarget(tgt))

	job := seedJobWithResults(t, db, tgt, nil, map[string]int{
		database.CheckPass:          5,
		database.CheckFail:          2,
		database.CheckNotApplicable: 2,
		database.CheckNotReviewed:   1,
	})

	agg := NewAggregator(db)
	s, err := agg.JobSummary(job.ID)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, 10, s.TotalChecks)
	assert.Equal(t, 5, s.Passed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 2, s.NotApplicable)
	assert.Equal(t, 1, s.NotReviewed)
	// Score denominator is all checks, not just pass+fail.
	assert.Equal(t, 50.0, s.ComplianceScore)
	assert.Equal(t, "bench", s.BenchmarkID)
}

func TestJobSummaryMissingJob(t *testing.T) {
	db := newTestDB(t)
	agg := NewAggregator(db)
	s, err := agg.JobSummary(42)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGroupSummaryPooledScore(t *testing.T) {
	db := newTestDB(t)
	tgt := &database.Target{Name: "web01", ConnMeta: "{}", Active: true}
	require.NoError(t, db.CreateTarget(tgt))

	group := &database.AuditGroup{Name: "g", TargetID: tgt.ID, Status: database.StatusCompleted, TotalJobs: 2, CompletedJobs: 2}
	require.NoError(t, db.CreateAuditGroup(group))

	// Job A: 9/10 pass (90%). Job B: 1/2 pass (50%).
	// Pooled: 10/12 = 83.3, not the 70.0 a mean of scores would give.
	seedJobWithResults(t, db, tgt, &group.ID, map[string]int{
		database.CheckPass: 9,
		database.CheckFail: 1,
	})
	seedJobWithResults(t, db, tgt, &group.ID, map[string]int{
		database.CheckPass: 1,
		database.CheckFail: 1,
	})

	agg := NewAggregator(db)
	s, err := agg.GroupSummary(group.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, s.TotalStigs)
	assert.Equal(t, 2, s.CompletedStigs)
	assert.Equal(t, 12, s.TotalChecks)
	assert.Equal(t, 10, s.Passed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 83.3, s.ComplianceScore)
	assert.Len(t, s.Jobs, 2)
	assert.Equal(t, "web01", s.TargetName)
}

func TestGroupSummaryUnknownGroup(t *testing.T) {
	db := newTestDB(t)
	agg := NewAggregator(db)
	_, err := agg.GroupSummary(7)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestGroupSummaryEmptyGroup(t *testing.T) {
	db := newTestDB(t)
	tgt := &database.Target{Name: "web01", ConnMeta: "{}", Active: true}
	require.NoError(t, db.CreateTarget(tgt))

	group := &database.AuditGroup{Name: "g", TargetID: tgt.ID, Status: database.StatusFailed}
	require.NoError(t, db.CreateAuditGroup(group))

	agg := NewAggregator(db)
	s, err := agg.GroupSummary(group.ID)
	require.NoError(t, err)
	assert.Zero(t, s.TotalChecks)
	assert.Equal(t, 0.0, s.ComplianceScore)
}
