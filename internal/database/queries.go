package database

import (
	"database/sql"
	"fmt"
)

// --- Definitions ---

// UpsertDefinition inserts a definition or, when the benchmark_id already
// exists, updates the mutable fields in place. Single statement, so two
// concurrent imports of the same benchmark cannot interleave into a
// duplicate row.
func (db *DB) UpsertDefinition(d *Definition) error {
	err := db.QueryRow(
		`INSERT INTO definitions (benchmark_id, title, version, release_date, platform, description, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(benchmark_id) DO UPDATE SET
		     title = excluded.title,
		     version = excluded.version,
		     release_date = excluded.release_date,
		     platform = excluded.platform,
		     description = excluded.description,
		     source = excluded.source,
		     updated_at = CURRENT_TIMESTAMP
		 RETURNING id`,
		d.BenchmarkID, d.Title, d.Version, d.ReleaseDate, d.Platform, d.Description, d.Source,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("upsert definition: %w", err)
	}
	return nil
}

func (db *DB) GetDefinition(id int64) (*Definition, error) {
	d := &Definition{}
	err := db.QueryRow(
		`SELECT id, benchmark_id, title, version, release_date, platform, description, created_at, updated_at
		 FROM definitions WHERE id = ?`, id,
	).Scan(&d.ID, &d.BenchmarkID, &d.Title, &d.Version, &d.ReleaseDate, &d.Platform, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return d, nil
}

func (db *DB) GetDefinitionByBenchmarkID(benchmarkID string) (*Definition, error) {
	d := &Definition{}
	err := db.QueryRow(
		`SELECT id, benchmark_id, title, version, release_date, platform, description, created_at, updated_at
		 FROM definitions WHERE benchmark_id = ?`, benchmarkID,
	).Scan(&d.ID, &d.BenchmarkID, &d.Title, &d.Version, &d.ReleaseDate, &d.Platform, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get definition by benchmark id: %w", err)
	}
	return d, nil
}

func (db *DB) ListDefinitions() ([]Definition, error) {
	rows, err := db.Query(
		`SELECT d.id, d.benchmark_id, d.title, d.version, d.release_date, d.platform, d.description,
		        d.created_at, d.updated_at, COUNT(r.id)
		 FROM definitions d LEFT JOIN rules r ON r.definition_id = d.id
		 GROUP BY d.id ORDER BY d.title`,
	)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.ID, &d.BenchmarkID, &d.Title, &d.Version, &d.ReleaseDate, &d.Platform,
			&d.Description, &d.CreatedAt, &d.UpdatedAt, &d.RuleCount); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (db *DB) DeleteDefinition(id int64) error {
	_, err := db.Exec(`DELETE FROM definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	return nil
}

// --- Rules ---

// ReplaceRules swaps the complete rule set of a definition inside one
// transaction. Re-import is a full replace, never a partial diff.
func (db *DB) ReplaceRules(definitionID int64, rules []Rule) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM rules WHERE definition_id = ?`, definitionID); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO rules (definition_id, rule_id, title, severity, description, fix_text, check_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(definition_id, rule_id) DO UPDATE SET
		     title = excluded.title,
		     severity = excluded.severity,
		     description = excluded.description,
		     fix_text = excluded.fix_text,
		     check_text = excluded.check_text`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rules {
		if _, err := stmt.Exec(definitionID, r.RuleID, r.Title, r.Severity, r.Description, r.FixText, r.CheckText); err != nil {
			return fmt.Errorf("insert rule %s: %w", r.RuleID, err)
		}
	}
	return tx.Commit()
}

func (db *DB) GetRulesByDefinition(definitionID int64) ([]Rule, error) {
	rows, err := db.Query(
		`SELECT id, definition_id, rule_id, title, severity, description, fix_text, check_text
		 FROM rules WHERE definition_id = ? ORDER BY rule_id`, definitionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.DefinitionID, &r.RuleID, &r.Title, &r.Severity, &r.Description, &r.FixText, &r.CheckText); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (db *DB) CountRulesByDefinition(definitionID int64) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM rules WHERE definition_id = ?`, definitionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return n, nil
}

// --- Targets ---

func (db *DB) CreateTarget(t *Target) error {
	res, err := db.Exec(
		`INSERT INTO targets (name, address, platform, conn_meta, credential_id, active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Address, t.Platform, t.ConnMeta, t.CredentialID, t.Active,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

const targetColumns = `id, name, address, platform, conn_meta, credential_id, active, last_audit_at, created_at`

func scanTarget(row interface{ Scan(...any) error }) (*Target, error) {
	t := &Target{}
	err := row.Scan(&t.ID, &t.Name, &t.Address, &t.Platform, &t.ConnMeta, &t.CredentialID, &t.Active, &t.LastAuditAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (db *DB) GetTarget(id int64) (*Target, error) {
	t, err := scanTarget(db.QueryRow(`SELECT `+targetColumns+` FROM targets WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// FindTargetByNameOrAddress resolves a target by hostname first, then by
// network address. First match wins; checklist import relies on this
// ordering.
func (db *DB) FindTargetByNameOrAddress(name, address string) (*Target, error) {
	if name != "" {
		t, err := scanTarget(db.QueryRow(`SELECT `+targetColumns+` FROM targets WHERE name = ? LIMIT 1`, name))
		if err == nil {
			return t, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("find target by name: %w", err)
		}
	}
	if address != "" {
		t, err := scanTarget(db.QueryRow(`SELECT `+targetColumns+` FROM targets WHERE address = ? LIMIT 1`, address))
		if err == nil {
			return t, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("find target by address: %w", err)
		}
	}
	return nil, nil
}

func (db *DB) ListTargets() ([]Target, error) {
	rows, err := db.Query(`SELECT ` + targetColumns + ` FROM targets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, *t)
	}
	return targets, rows.Err()
}

func (db *DB) UpdateTarget(t *Target) error {
	_, err := db.Exec(
		`UPDATE targets SET name = ?, address = ?, platform = ?, conn_meta = ?, credential_id = ?, active = ?
		 WHERE id = ?`,
		t.Name, t.Address, t.Platform, t.ConnMeta, t.CredentialID, t.Active, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	return nil
}

func (db *DB) DeleteTarget(id int64) error {
	_, err := db.Exec(`DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	return nil
}

func (db *DB) TouchTargetLastAudit(id int64) error {
	_, err := db.Exec(`UPDATE targets SET last_audit_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("touch target last audit: %w", err)
	}
	return nil
}

// --- Credentials ---

func (db *DB) CreateCredential(c *Credential) error {
	res, err := db.Exec(
		`INSERT INTO credentials (name, kind, secret) VALUES (?, ?, ?)`,
		c.Name, c.Kind, c.Secret,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) GetCredential(id int64) (*Credential, error) {
	c := &Credential{}
	err := db.QueryRow(
		`SELECT id, name, kind, secret, created_at FROM credentials WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Kind, &c.Secret, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (db *DB) ListCredentials() ([]Credential, error) {
	rows, err := db.Query(`SELECT id, name, kind, created_at FROM credentials ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (db *DB) DeleteCredential(id int64) error {
	_, err := db.Exec(`DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// --- Assignments ---

func (db *DB) CreateAssignment(a *TargetDefinition) error {
	res, err := db.Exec(
		`INSERT INTO target_definitions (target_id, definition_id, is_primary, enabled, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		a.TargetID, a.DefinitionID, a.IsPrimary, a.Enabled, a.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) GetAssignment(targetID, definitionID int64) (*TargetDefinition, error) {
	a := &TargetDefinition{}
	err := db.QueryRow(
		`SELECT id, target_id, definition_id, is_primary, enabled, notes, created_at
		 FROM target_definitions WHERE target_id = ? AND definition_id = ?`,
		targetID, definitionID,
	).Scan(&a.ID, &a.TargetID, &a.DefinitionID, &a.IsPrimary, &a.Enabled, &a.Notes, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (db *DB) ListAssignmentsByTarget(targetID int64, enabledOnly bool) ([]TargetDefinition, error) {
	q := `SELECT td.id, td.target_id, td.definition_id, td.is_primary, td.enabled, td.notes, td.created_at,
	             d.benchmark_id, d.title
	      FROM target_definitions td JOIN definitions d ON td.definition_id = d.id
	      WHERE td.target_id = ?`
	if enabledOnly {
		q += ` AND td.enabled = 1`
	}
	q += ` ORDER BY d.title`

	rows, err := db.Query(q, targetID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []TargetDefinition
	for rows.Next() {
		var a TargetDefinition
		if err := rows.Scan(&a.ID, &a.TargetID, &a.DefinitionID, &a.IsPrimary, &a.Enabled, &a.Notes,
			&a.CreatedAt, &a.BenchmarkID, &a.Title); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (db *DB) UpdateAssignment(a *TargetDefinition) error {
	_, err := db.Exec(
		`UPDATE target_definitions SET is_primary = ?, enabled = ?, notes = ?
		 WHERE target_id = ? AND definition_id = ?`,
		a.IsPrimary, a.Enabled, a.Notes, a.TargetID, a.DefinitionID,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

func (db *DB) DeleteAssignment(targetID, definitionID int64) error {
	_, err := db.Exec(
		`DELETE FROM target_definitions WHERE target_id = ? AND definition_id = ?`,
		targetID, definitionID,
	)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
