package engine

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amccray/stigward/internal/audit"
	"github.com/amccray/stigward/internal/database"
)

type recordingNotifier struct {
	events []audit.Event
}

func (n *recordingNotifier) BroadcastGroup(groupID int64, ev audit.Event) {
	n.events = append(n.events, ev)
}

func seedGroupedJob(t *testing.T, db *database.DB, externalID string) (*database.AuditGroup, *database.AuditJob) {
	t.Helper()
	tgt := &database.Target{Name: "web01", ConnMeta: "{}", Active: true}
	require.NoError(t, db.CreateTarget(tgt))
	d := &database.Definition{BenchmarkID: "bench", Title: "Bench"}
	require.NoError(t, db.UpsertDefinition(d))

	g := &database.AuditGroup{Name: "g", TargetID: tgt.ID, Status: database.StatusPending, TotalJobs: 1}
	require.NoError(t, db.CreateAuditGroup(g))
	require.NoError(t, db.UpdateAuditGroupStatus(g.ID, database.StatusRunning))

	j := &database.AuditJob{TargetID: tgt.ID, DefinitionID: d.ID, GroupID: &g.ID, Status: database.StatusPending, ExternalID: externalID}
	require.NoError(t, db.CreateAuditJob(j))
	return g, j
}

func completionMsg(t *testing.T, ev completionEvent) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return &nats.Msg{Subject: subjectComplete, Data: data}
}

func TestHandleCompletion(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	group, job := seedGroupedJob(t, db, "ext-1")
	notifier := &recordingNotifier{}
	con := &Consumer{db: db, notifier: notifier}

	con.handle(completionMsg(t, completionEvent{
		JobID:  "ext-1",
		Status: database.StatusCompleted,
		Results: []resultsPayload{
			{RuleID: "SV-1_rule", Severity: "CAT I", Status: database.CheckPass},
			{RuleID: "SV-2_rule", Severity: "low", Status: database.CheckFail},
			{Severity: "low", Status: database.CheckFail}, // no rule id, skipped
		},
	}))

	got, err := db.GetAuditJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	results, err := db.ListResultsByJob(job.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Severity)

	g, err := db.GetAuditGroup(group.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, g.Status)
	assert.Equal(t, 1, g.CompletedJobs)

	tgt, err := db.GetTarget(job.TargetID)
	require.NoError(t, err)
	assert.NotNil(t, tgt.LastAuditAt)

	require.Len(t, notifier.events, 2)
	assert.Equal(t, "job_completed", notifier.events[0].Type)
	assert.Equal(t, "group_completed", notifier.events[1].Type)
}

func TestHandleRunningTransition(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	group, job := seedGroupedJob(t, db, "ext-2")
	con := &Consumer{db: db}

	con.handle(completionMsg(t, completionEvent{JobID: "ext-2", Status: database.StatusRunning}))

	got, err := db.GetAuditJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	// Running is not terminal; group counters stay untouched.
	g, err := db.GetAuditGroup(group.ID)
	require.NoError(t, err)
	assert.Zero(t, g.CompletedJobs)
}

func TestHandleFailure(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, job := seedGroupedJob(t, db, "ext-3")
	con := &Consumer{db: db}

	con.handle(completionMsg(t, completionEvent{JobID: "ext-3", Status: database.StatusFailed, Error: "ssh timeout"}))

	got, err := db.GetAuditJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusFailed, got.Status)
	assert.Equal(t, "ssh timeout", got.ErrorMessage)
}

func TestHandleUnknownJob(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	con := &Consumer{db: db}
	// Must not panic or write anything.
	con.handle(completionMsg(t, completionEvent{JobID: "no-such", Status: database.StatusCompleted}))
	con.handle(&nats.Msg{Data: []byte("garbage")})

	jobs, err := db.ListRecentAuditJobs(10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
