// Package audit fans batch-audit requests out to the remote audit engine
// and computes compliance summaries over the recorded results.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amccray/stigward/internal/database"
)

var (
	// ErrTargetNotFound reports a batch request against a target that
	// does not exist. Raised before any remote calls are made.
	ErrTargetNotFound = errors.New("target not found")

	// ErrDefinitionNotFound reports an audit request for a benchmark
	// that is not in the library.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrGroupNotFound reports a summary request for an absent group.
	ErrGroupNotFound = errors.New("audit group not found")

	// ErrJobNotFound reports an export or summary request for an absent
	// job.
	ErrJobNotFound = errors.New("audit job not found")

	// ErrNoDefinitions reports an audit-all request with nothing to run:
	// the target has no enabled benchmark assignments. No group row is
	// created in this case.
	ErrNoDefinitions = errors.New("no enabled benchmark assignments for target")

	// ErrTargetInactive reports an audit request against a deactivated
	// target.
	ErrTargetInactive = errors.New("target is not active")
)

// Engine is the remote audit executor. One call requests one benchmark
// run against one target and returns the engine-side job identifier;
// result collection arrives out of band.
type Engine interface {
	CreateAuditJob(ctx context.Context, targetID, definitionID, groupID int64) (string, error)
}

// Event is a job lifecycle notification pushed to subscribed clients.
type Event struct {
	Type         string `json:"type"`
	GroupID      int64  `json:"group_id,omitempty"`
	JobID        int64  `json:"job_id,omitempty"`
	DefinitionID int64  `json:"definition_id,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Notifier delivers group-scoped events to interested clients.
type Notifier interface {
	BroadcastGroup(groupID int64, ev Event)
}

type Orchestrator struct {
	db       *database.DB
	engine   Engine
	notifier Notifier
}

func NewOrchestrator(db *database.DB, engine Engine, notifier Notifier) *Orchestrator {
	return &Orchestrator{db: db, engine: engine, notifier: notifier}
}

// FanoutItem is the per-definition outcome of an audit-all fan-out.
type FanoutItem struct {
	DefinitionID int64  `json:"definition_id"`
	BenchmarkID  string `json:"benchmark_id"`
	JobID        int64  `json:"job_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// FanoutReport summarizes one audit-all request. Individual failures are
// itemized; the batch as a whole still succeeds when at least one job was
// handed to the engine.
type FanoutReport struct {
	Group       *database.AuditGroup `json:"group"`
	Items       []FanoutItem         `json:"items"`
	JobsCreated int                  `json:"jobs_created"`
}

// AuditAll creates an audit group for the target and requests one remote
// audit job per selected benchmark. When definitionIDs is empty, every
// enabled assignment participates. Requests are issued sequentially; one
// failed request never aborts the remaining definitions.
func (o *Orchestrator) AuditAll(ctx context.Context, targetID int64, definitionIDs []int64) (*FanoutReport, error) {
	target, err := o.db.GetTarget(targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %d", ErrTargetNotFound, targetID)
	}

	assignments, err := o.db.ListAssignmentsByTarget(targetID, true)
	if err != nil {
		return nil, err
	}
	if len(definitionIDs) > 0 {
		wanted := make(map[int64]bool, len(definitionIDs))
		for _, id := range definitionIDs {
			wanted[id] = true
		}
		var filtered []database.TargetDefinition
		for _, a := range assignments {
			if wanted[a.DefinitionID] {
				filtered = append(filtered, a)
			}
		}
		assignments = filtered
	}
	if len(assignments) == 0 {
		return nil, ErrNoDefinitions
	}

	group := &database.AuditGroup{
		Name:      fmt.Sprintf("Audit All - %s - %s", target.Name, time.Now().Format("2006-01-02 15:04")),
		TargetID:  targetID,
		Status:    database.StatusPending,
		TotalJobs: len(assignments),
	}
	if err := o.db.CreateAuditGroup(group); err != nil {
		return nil, err
	}

	report := &FanoutReport{Group: group}
	for _, a := range assignments {
		item := FanoutItem{DefinitionID: a.DefinitionID, BenchmarkID: a.BenchmarkID}

		job := &database.AuditJob{
			TargetID:     targetID,
			DefinitionID: a.DefinitionID,
			GroupID:      &group.ID,
			Status:       database.StatusPending,
		}
		if err := o.db.CreateAuditJob(job); err != nil {
			item.Error = err.Error()
			report.Items = append(report.Items, item)
			continue
		}
		item.JobID = job.ID

		externalID, err := o.engine.CreateAuditJob(ctx, targetID, a.DefinitionID, group.ID)
		if err != nil {
			slog.Error("remote audit request failed",
				"group_id", group.ID,
				"definition_id", a.DefinitionID,
				"error", err,
			)
			item.Error = err.Error()
			o.db.UpdateAuditJobStatus(job.ID, database.StatusFailed, err.Error())
			o.notify(group.ID, Event{Type: "job_failed", GroupID: group.ID, JobID: job.ID, DefinitionID: a.DefinitionID, Message: err.Error()})
		} else {
			o.db.SetAuditJobExternalID(job.ID, externalID)
			report.JobsCreated++
			o.notify(group.ID, Event{Type: "job_created", GroupID: group.ID, JobID: job.ID, DefinitionID: a.DefinitionID})
		}
		report.Items = append(report.Items, item)
	}

	if report.JobsCreated > 0 {
		err = o.db.UpdateAuditGroupStatus(group.ID, database.StatusRunning)
	} else {
		err = o.db.UpdateAuditGroupStatus(group.ID, database.StatusFailed)
	}
	if err != nil {
		return nil, err
	}

	group, err = o.db.GetAuditGroup(group.ID)
	if err != nil {
		return nil, err
	}
	report.Group = group

	slog.Info("audit group fanned out",
		"group_id", group.ID,
		"target", target.Name,
		"jobs_created", report.JobsCreated,
		"jobs_failed", group.TotalJobs-report.JobsCreated,
	)
	return report, nil
}

// StartAudit requests one audit of one benchmark against one target,
// outside of any group.
func (o *Orchestrator) StartAudit(ctx context.Context, targetID, definitionID int64) (*database.AuditJob, error) {
	target, err := o.db.GetTarget(targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %d", ErrTargetNotFound, targetID)
	}
	if !target.Active {
		return nil, fmt.Errorf("%w: %d", ErrTargetInactive, targetID)
	}

	def, err := o.db.GetDefinition(definitionID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %d", ErrDefinitionNotFound, definitionID)
	}

	job := &database.AuditJob{
		TargetID:     targetID,
		DefinitionID: definitionID,
		Status:       database.StatusPending,
	}
	if err := o.db.CreateAuditJob(job); err != nil {
		return nil, err
	}

	externalID, err := o.engine.CreateAuditJob(ctx, targetID, definitionID, 0)
	if err != nil {
		o.db.UpdateAuditJobStatus(job.ID, database.StatusFailed, err.Error())
		return nil, fmt.Errorf("submitting audit job: %w", err)
	}
	o.db.SetAuditJobExternalID(job.ID, externalID)

	return o.db.GetAuditJob(job.ID)
}

// CancelAudit cancels a job that has not finished. Returns false when the
// job is unknown or already terminal.
func (o *Orchestrator) CancelAudit(jobID int64) (bool, error) {
	job, err := o.db.GetAuditJob(jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if job.Status != database.StatusPending && job.Status != database.StatusRunning {
		return false, nil
	}
	if err := o.db.UpdateAuditJobStatus(jobID, database.StatusCancelled, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) notify(groupID int64, ev Event) {
	if o.notifier != nil {
		o.notifier.BroadcastGroup(groupID, ev)
	}
}
