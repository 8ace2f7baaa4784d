package engine

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/amccray/stigward/internal/audit"
	"github.com/amccray/stigward/internal/benchmark"
	"github.com/amccray/stigward/internal/database"
)

// completionEvent is published by the executor as a job progresses. A
// terminal event may carry the job's results inline.
type completionEvent struct {
	JobID   string           `json:"job_id"`
	Status  string           `json:"status"`
	Error   string           `json:"error,omitempty"`
	Results []resultsPayload `json:"results,omitempty"`
}

type resultsPayload struct {
	RuleID         string `json:"rule_id"`
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Status         string `json:"status"`
	FindingDetails string `json:"finding_details"`
	Comments       string `json:"comments"`
}

// Consumer applies executor lifecycle events to storage: job status
// transitions, ignore-on-duplicate result inserts, and group counter
// bookkeeping once a job reaches a terminal state.
type Consumer struct {
	db       *database.DB
	notifier audit.Notifier
	sub      *nats.Subscription
}

// StartConsumer subscribes to completion events on the client's
// connection.
func (c *Client) StartConsumer(db *database.DB, notifier audit.Notifier) (*Consumer, error) {
	consumer := &Consumer{db: db, notifier: notifier}
	sub, err := c.nc.Subscribe(subjectComplete, consumer.handle)
	if err != nil {
		return nil, err
	}
	consumer.sub = sub
	return consumer, nil
}

func (con *Consumer) Stop() {
	if con.sub != nil {
		con.sub.Unsubscribe()
	}
}

func (con *Consumer) handle(msg *nats.Msg) {
	var ev completionEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("bad completion event", "error", err)
		return
	}

	job, err := con.db.GetAuditJobByExternalID(ev.JobID)
	if err != nil {
		slog.Error("completion lookup failed", "external_id", ev.JobID, "error", err)
		return
	}
	if job == nil {
		slog.Warn("completion for unknown job", "external_id", ev.JobID)
		return
	}

	switch ev.Status {
	case database.StatusRunning:
		con.db.UpdateAuditJobStatus(job.ID, database.StatusRunning, "")
		return
	case database.StatusCompleted, database.StatusFailed:
	default:
		slog.Warn("completion with unexpected status", "external_id", ev.JobID, "status", ev.Status)
		return
	}

	if len(ev.Results) > 0 {
		rows := make([]database.AuditResult, 0, len(ev.Results))
		for _, r := range ev.Results {
			if r.RuleID == "" {
				continue
			}
			rows = append(rows, database.AuditResult{
				JobID:          job.ID,
				RuleID:         r.RuleID,
				Title:          r.Title,
				Severity:       benchmark.NormalizeSeverity(r.Severity),
				Status:         r.Status,
				FindingDetails: r.FindingDetails,
				Comments:       r.Comments,
			})
		}
		if _, err := con.db.InsertResultsIgnore(rows); err != nil {
			slog.Error("storing results failed", "job_id", job.ID, "error", err)
		}
	}

	if err := con.db.UpdateAuditJobStatus(job.ID, ev.Status, ev.Error); err != nil {
		slog.Error("job status update failed", "job_id", job.ID, "error", err)
		return
	}
	con.db.TouchTargetLastAudit(job.TargetID)

	slog.Info("audit job finished", "job_id", job.ID, "status", ev.Status, "results", len(ev.Results))

	if job.GroupID == nil {
		return
	}

	group, err := con.db.MarkGroupJobDone(*job.GroupID)
	if err != nil {
		slog.Error("group bookkeeping failed", "group_id", *job.GroupID, "error", err)
		return
	}

	if con.notifier != nil {
		con.notifier.BroadcastGroup(group.ID, audit.Event{
			Type:    "job_" + ev.Status,
			GroupID: group.ID,
			JobID:   job.ID,
			Message: ev.Error,
		})
		if group.Status == database.StatusCompleted {
			con.notifier.BroadcastGroup(group.ID, audit.Event{Type: "group_completed", GroupID: group.ID})
		}
	}
}
