package database

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Audit groups ---

func (db *DB) CreateAuditGroup(g *AuditGroup) error {
	res, err := db.Exec(
		`INSERT INTO audit_groups (name, target_id, status, total_jobs, completed_jobs)
		 VALUES (?, ?, ?, ?, ?)`,
		g.Name, g.TargetID, g.Status, g.TotalJobs, g.CompletedJobs,
	)
	if err != nil {
		return fmt.Errorf("insert audit group: %w", err)
	}
	g.ID, _ = res.LastInsertId()
	return nil
}

const groupColumns = `id, name, target_id, status, total_jobs, completed_jobs, created_at, completed_at`

func (db *DB) GetAuditGroup(id int64) (*AuditGroup, error) {
	g := &AuditGroup{}
	err := db.QueryRow(`SELECT `+groupColumns+` FROM audit_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.TargetID, &g.Status, &g.TotalJobs, &g.CompletedJobs, &g.CreatedAt, &g.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit group: %w", err)
	}
	return g, nil
}

func (db *DB) ListAuditGroups(targetID int64, limit int) ([]AuditGroup, error) {
	q := `SELECT ` + groupColumns + ` FROM audit_groups`
	args := []any{}
	if targetID > 0 {
		q += ` WHERE target_id = ?`
		args = append(args, targetID)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit groups: %w", err)
	}
	defer rows.Close()

	var groups []AuditGroup
	for rows.Next() {
		var g AuditGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetID, &g.Status, &g.TotalJobs, &g.CompletedJobs, &g.CreatedAt, &g.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan audit group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (db *DB) UpdateAuditGroupStatus(id int64, status string) error {
	switch status {
	case StatusCompleted, StatusFailed:
		_, err := db.Exec(`UPDATE audit_groups SET status = ?, completed_at = ? WHERE id = ?`, status, time.Now(), id)
		return err
	default:
		_, err := db.Exec(`UPDATE audit_groups SET status = ? WHERE id = ?`, status, id)
		return err
	}
}

// MarkGroupJobDone bumps the completed-jobs counter and, when every job in
// the group has been observed, flips the group to completed. The counter
// update is a single statement so concurrent completion events cannot lose
// an increment.
func (db *DB) MarkGroupJobDone(id int64) (*AuditGroup, error) {
	_, err := db.Exec(
		`UPDATE audit_groups SET completed_jobs = completed_jobs + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("bump completed jobs: %w", err)
	}

	_, err = db.Exec(
		`UPDATE audit_groups SET status = ?, completed_at = ?
		 WHERE id = ? AND status = ? AND completed_jobs >= total_jobs`,
		StatusCompleted, time.Now(), id, StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("finalize group: %w", err)
	}

	return db.GetAuditGroup(id)
}

// --- Audit jobs ---

func (db *DB) CreateAuditJob(j *AuditJob) error {
	res, err := db.Exec(
		`INSERT INTO audit_jobs (target_id, definition_id, group_id, external_id, status, error_message, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.TargetID, j.DefinitionID, j.GroupID, j.ExternalID, j.Status, j.ErrorMessage, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit job: %w", err)
	}
	j.ID, _ = res.LastInsertId()
	return nil
}

const jobColumns = `id, target_id, definition_id, group_id, external_id, status, error_message, started_at, completed_at, created_at`

func scanJob(row interface{ Scan(...any) error }) (*AuditJob, error) {
	j := &AuditJob{}
	err := row.Scan(&j.ID, &j.TargetID, &j.DefinitionID, &j.GroupID, &j.ExternalID, &j.Status,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (db *DB) GetAuditJob(id int64) (*AuditJob, error) {
	j, err := scanJob(db.QueryRow(`SELECT `+jobColumns+` FROM audit_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit job: %w", err)
	}
	return j, nil
}

func (db *DB) GetAuditJobByExternalID(externalID string) (*AuditJob, error) {
	j, err := scanJob(db.QueryRow(`SELECT `+jobColumns+` FROM audit_jobs WHERE external_id = ?`, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit job by external id: %w", err)
	}
	return j, nil
}

func (db *DB) ListAuditJobsByGroup(groupID int64) ([]AuditJob, error) {
	return db.listJobs(`SELECT `+jobColumns+` FROM audit_jobs WHERE group_id = ? ORDER BY id`, groupID)
}

func (db *DB) ListAuditJobsByTarget(targetID int64) ([]AuditJob, error) {
	return db.listJobs(`SELECT `+jobColumns+` FROM audit_jobs WHERE target_id = ? ORDER BY created_at DESC`, targetID)
}

func (db *DB) ListRecentAuditJobs(limit int) ([]AuditJob, error) {
	return db.listJobs(`SELECT `+jobColumns+` FROM audit_jobs ORDER BY created_at DESC LIMIT ?`, limit)
}

func (db *DB) listJobs(query string, args ...any) ([]AuditJob, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit jobs: %w", err)
	}
	defer rows.Close()

	var jobs []AuditJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (db *DB) UpdateAuditJobStatus(id int64, status, errorMessage string) error {
	now := time.Now()
	switch status {
	case StatusRunning:
		_, err := db.Exec(`UPDATE audit_jobs SET status = ?, error_message = ?, started_at = ? WHERE id = ?`,
			status, errorMessage, now, id)
		return err
	case StatusCompleted, StatusFailed, StatusCancelled:
		_, err := db.Exec(`UPDATE audit_jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
			status, errorMessage, now, id)
		return err
	default:
		_, err := db.Exec(`UPDATE audit_jobs SET status = ?, error_message = ? WHERE id = ?`, status, errorMessage, id)
		return err
	}
}

func (db *DB) SetAuditJobExternalID(id int64, externalID string) error {
	_, err := db.Exec(`UPDATE audit_jobs SET external_id = ? WHERE id = ?`, externalID, id)
	if err != nil {
		return fmt.Errorf("set external id: %w", err)
	}
	return nil
}

// --- Audit results ---

// InsertResultIgnore inserts one result, silently dropping duplicates of
// (job_id, rule_id). Returns whether a row actually landed. Results are
// append-only evidence, so the first writer wins.
func (db *DB) InsertResultIgnore(r *AuditResult) (bool, error) {
	res, err := db.Exec(
		`INSERT OR IGNORE INTO audit_results (job_id, rule_id, title, severity, status, finding_details, comments)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.RuleID, r.Title, r.Severity, r.Status, r.FindingDetails, r.Comments,
	)
	if err != nil {
		return false, fmt.Errorf("insert result: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertResultsIgnore inserts a batch of results in one transaction and
// returns how many were new rows.
func (db *DB) InsertResultsIgnore(results []AuditResult) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO audit_results (job_id, rule_id, title, severity, status, finding_details, comments)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range results {
		res, err := stmt.Exec(r.JobID, r.RuleID, r.Title, r.Severity, r.Status, r.FindingDetails, r.Comments)
		if err != nil {
			return 0, fmt.Errorf("insert result %s: %w", r.RuleID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (db *DB) ListResultsByJob(jobID int64) ([]AuditResult, error) {
	rows, err := db.Query(
		`SELECT id, job_id, rule_id, title, severity, status, finding_details, comments, checked_at
		 FROM audit_results WHERE job_id = ? ORDER BY rule_id`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []AuditResult
	for rows.Next() {
		var r AuditResult
		if err := rows.Scan(&r.ID, &r.JobID, &r.RuleID, &r.Title, &r.Severity, &r.Status,
			&r.FindingDetails, &r.Comments, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ResultStatusCounts returns the result count per check status for a job.
func (db *DB) ResultStatusCounts(jobID int64) (map[string]int, error) {
	rows, err := db.Query(
		`SELECT status, COUNT(*) FROM audit_results WHERE job_id = ? GROUP BY status`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Stats ---

type DashboardStats struct {
	TargetCount     int `json:"target_count"`
	DefinitionCount int `json:"definition_count"`
	JobCount        int `json:"job_count"`
	GroupCount      int `json:"group_count"`
	ResultCount     int `json:"result_count"`
}

func (db *DB) GetStats() (*DashboardStats, error) {
	stats := &DashboardStats{}
	db.QueryRow(`SELECT COUNT(*) FROM targets`).Scan(&stats.TargetCount)
	db.QueryRow(`SELECT COUNT(*) FROM definitions`).Scan(&stats.DefinitionCount)
	db.QueryRow(`SELECT COUNT(*) FROM audit_jobs`).Scan(&stats.JobCount)
	db.QueryRow(`SELECT COUNT(*) FROM audit_groups`).Scan(&stats.GroupCount)
	db.QueryRow(`SELECT COUNT(*) FROM audit_results`).Scan(&stats.ResultCount)
	return stats, nil
}
