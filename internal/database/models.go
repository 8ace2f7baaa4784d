package database

import "time"

// Audit job lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Per-rule check outcomes.
const (
	CheckPass          = "pass"
	CheckFail          = "fail"
	CheckNotApplicable = "not_applicable"
	CheckNotReviewed   = "not_reviewed"
	CheckError         = "error"
)

type Definition struct {
	ID          int64     `json:"id"`
	BenchmarkID string    `json:"benchmark_id"`
	Title       string    `json:"title"`
	Version     string    `json:"version"`
	ReleaseDate string    `json:"release_date"`
	Platform    string    `json:"platform"`
	Description string    `json:"description"`
	Source      string    `json:"-"`
	RuleCount   int       `json:"rule_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Rule struct {
	ID           int64  `json:"id"`
	DefinitionID int64  `json:"definition_id"`
	RuleID       string `json:"rule_id"`
	Title        string `json:"title"`
	Severity     string `json:"severity"`
	Description  string `json:"description"`
	FixText      string `json:"fix_text"`
	CheckText    string `json:"check_text"`
}

type Credential struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Secret    []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Target struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	Platform     string     `json:"platform"`
	ConnMeta     string     `json:"conn_meta"`
	CredentialID *int64     `json:"credential_id,omitempty"`
	Active       bool       `json:"active"`
	LastAuditAt  *time.Time `json:"last_audit_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type TargetDefinition struct {
	ID           int64     `json:"id"`
	TargetID     int64     `json:"target_id"`
	DefinitionID int64     `json:"definition_id"`
	IsPrimary    bool      `json:"is_primary"`
	Enabled      bool      `json:"enabled"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`

	// Joined from definitions for listing.
	BenchmarkID string `json:"benchmark_id,omitempty"`
	Title       string `json:"title,omitempty"`
}

type AuditGroup struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	TargetID      int64      `json:"target_id"`
	Status        string     `json:"status"`
	TotalJobs     int        `json:"total_jobs"`
	CompletedJobs int        `json:"completed_jobs"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type AuditJob struct {
	ID           int64      `json:"id"`
	TargetID     int64      `json:"target_id"`
	DefinitionID int64      `json:"definition_id"`
	GroupID      *int64     `json:"group_id,omitempty"`
	ExternalID   string     `json:"external_id,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type AuditResult struct {
	ID             int64     `json:"id"`
	JobID          int64     `json:"job_id"`
	RuleID         string    `json:"rule_id"`
	Title          string    `json:"title"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	FindingDetails string    `json:"finding_details"`
	Comments       string    `json:"comments"`
	CheckedAt      time.Time `json:"checked_at"`
}
