package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/amccray/stigward/internal/audit"
	"github.com/amccray/stigward/internal/benchmark"
	"github.com/amccray/stigward/internal/checklist"
	"github.com/amccray/stigward/internal/database"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeCoreError maps the failure taxonomy onto HTTP statuses. Anything
// unrecognized is a 500.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audit.ErrTargetNotFound),
		errors.Is(err, audit.ErrDefinitionNotFound),
		errors.Is(err, audit.ErrGroupNotFound),
		errors.Is(err, audit.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, audit.ErrNoDefinitions),
		errors.Is(err, audit.ErrTargetInactive),
		errors.Is(err, benchmark.ErrInvalidFormat),
		errors.Is(err, benchmark.ErrResourceLimit),
		errors.Is(err, benchmark.ErrNoDefinitionFound),
		errors.Is(err, checklist.ErrMalformed):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

// --- Targets ---

func (s *Server) handleAPITargets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		targets, err := s.db.ListTargets()
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if targets == nil {
			targets = []database.Target{}
		}
		writeJSON(w, http.StatusOK, targets)

	case http.MethodPost:
		var t database.Target
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if t.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if t.Platform == "" {
			t.Platform = "unknown"
		}
		if t.ConnMeta == "" {
			t.ConnMeta = "{}"
		}
		t.Active = true
		if err := s.db.CreateTarget(&t); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAPITarget handles /api/targets/{id} and its sub-resources.
func (s *Server) handleAPITarget(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/targets/")
	parts := strings.SplitN(rest, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}

	if len(parts) > 1 {
		switch {
		case parts[1] == "assignments":
			s.handleTargetAssignments(w, r, id)
		case strings.HasPrefix(parts[1], "assignments/"):
			s.handleTargetAssignment(w, r, id, strings.TrimPrefix(parts[1], "assignments/"))
		case parts[1] == "audit-all":
			s.handleAuditAll(w, r, id)
		case parts[1] == "jobs":
			s.handleTargetJobs(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		t, err := s.db.GetTarget(id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if t == nil {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		writeJSON(w, http.StatusOK, t)

	case http.MethodPut:
		var t database.Target
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		t.ID = id
		if err := s.db.UpdateTarget(&t); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)

	case http.MethodDelete:
		if err := s.db.DeleteTarget(id); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Assignments ---

func (s *Server) handleTargetAssignments(w http.ResponseWriter, r *http.Request, targetID int64) {
	switch r.Method {
	case http.MethodGet:
		enabledOnly := r.URL.Query().Get("enabled") == "true"
		assignments, err := s.db.ListAssignmentsByTarget(targetID, enabledOnly)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if assignments == nil {
			assignments = []database.TargetDefinition{}
		}
		writeJSON(w, http.StatusOK, assignments)

	case http.MethodPost:
		var req struct {
			DefinitionID  int64   `json:"definition_id"`
			DefinitionIDs []int64 `json:"definition_ids"`
			IsPrimary     bool    `json:"is_primary"`
			Notes         string  `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}

		ids := req.DefinitionIDs
		if req.DefinitionID != 0 {
			ids = append(ids, req.DefinitionID)
		}
		if len(ids) == 0 {
			writeError(w, http.StatusBadRequest, "definition_id or definition_ids is required")
			return
		}

		// Bulk assignment skips benchmarks already assigned instead of
		// failing the batch.
		var created []database.TargetDefinition
		for _, id := range ids {
			def, err := s.db.GetDefinition(id)
			if err != nil {
				writeCoreError(w, err)
				return
			}
			if def == nil {
				writeError(w, http.StatusNotFound, fmt.Sprintf("definition not found: %d", id))
				return
			}
			existing, err := s.db.GetAssignment(targetID, id)
			if err != nil {
				writeCoreError(w, err)
				return
			}
			if existing != nil {
				continue
			}
			a := database.TargetDefinition{
				TargetID:     targetID,
				DefinitionID: id,
				IsPrimary:    req.IsPrimary,
				Enabled:      true,
				Notes:        req.Notes,
			}
			if err := s.db.CreateAssignment(&a); err != nil {
				writeCoreError(w, err)
				return
			}
			created = append(created, a)
		}

		if len(ids) == 1 && len(created) == 0 {
			writeError(w, http.StatusConflict, "benchmark already assigned to target")
			return
		}
		if created == nil {
			created = []database.TargetDefinition{}
		}
		if len(ids) == 1 {
			writeJSON(w, http.StatusCreated, created[0])
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTargetAssignment(w http.ResponseWriter, r *http.Request, targetID int64, defPart string) {
	definitionID, ok := parseID(defPart)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid definition id")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var a database.TargetDefinition
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		a.TargetID = targetID
		a.DefinitionID = definitionID
		if err := s.db.UpdateAssignment(&a); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)

	case http.MethodDelete:
		if err := s.db.DeleteAssignment(targetID, definitionID); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Batch audit ---

func (s *Server) handleAuditAll(w http.ResponseWriter, r *http.Request, targetID int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DefinitionIDs []int64 `json:"definition_ids"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	rep, err := s.orchestrator.AuditAll(r.Context(), targetID, req.DefinitionIDs)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleTargetJobs(w http.ResponseWriter, r *http.Request, targetID int64) {
	jobs, err := s.db.ListAuditJobsByTarget(targetID)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []database.AuditJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// --- Credentials ---

func (s *Server) handleAPICredentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		creds, err := s.db.ListCredentials()
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if creds == nil {
			creds = []database.Credential{}
		}
		writeJSON(w, http.StatusOK, creds)

	case http.MethodPost:
		var req struct {
			Name   string `json:"name"`
			Kind   string `json:"kind"`
			Secret string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.Kind == "" {
			req.Kind = "ssh"
		}
		// Secrets are opaque encrypted blobs; encryption happens
		// upstream of this service.
		c := database.Credential{Name: req.Name, Kind: req.Kind, Secret: []byte(req.Secret)}
		if err := s.db.CreateCredential(&c); err != nil {
			writeCoreError(w, err)
			return
		}
		c.Secret = nil
		writeJSON(w, http.StatusCreated, c)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPICredential(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(strings.TrimPrefix(r.URL.Path, "/api/credentials/"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := s.db.GetCredential(id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		c.Secret = nil
		writeJSON(w, http.StatusOK, c)

	case http.MethodDelete:
		if err := s.db.DeleteCredential(id); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Definitions ---

func (s *Server) handleAPIDefinitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defs, err := s.db.ListDefinitions()
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if defs == nil {
		defs = []database.Definition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleAPIDefinition(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/definitions/")
	parts := strings.SplitN(rest, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid definition id")
		return
	}

	if len(parts) > 1 && parts[1] == "rules" {
		rules, err := s.db.GetRulesByDefinition(id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if rules == nil {
			rules = []database.Rule{}
		}
		writeJSON(w, http.StatusOK, rules)
		return
	}

	switch r.Method {
	case http.MethodGet:
		d, err := s.db.GetDefinition(id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if d == nil {
			writeError(w, http.StatusNotFound, "definition not found")
			return
		}
		writeJSON(w, http.StatusOK, d)

	case http.MethodDelete:
		if err := s.db.DeleteDefinition(id); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Imports ---

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form data")
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return nil, "", false
	}
	return data, header.Filename, true
}

func (s *Server) handleAPIImportBenchmark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	summary, err := s.importer.ImportBenchmark(data, filename)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAPIImportChecklist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	summary, err := s.importer.ImportChecklist(data, filename)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Audit jobs ---

func (s *Server) handleAPIAudits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := s.db.ListRecentAuditJobs(20)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if jobs == nil {
			jobs = []database.AuditJob{}
		}
		writeJSON(w, http.StatusOK, jobs)

	case http.MethodPost:
		var req struct {
			TargetID     int64 `json:"target_id"`
			DefinitionID int64 `json:"definition_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.TargetID == 0 || req.DefinitionID == 0 {
			writeError(w, http.StatusBadRequest, "target_id and definition_id are required")
			return
		}
		job, err := s.orchestrator.StartAudit(r.Context(), req.TargetID, req.DefinitionID)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAPIAudit(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/audits/")
	parts := strings.SplitN(rest, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid audit id")
		return
	}

	if len(parts) > 1 {
		switch parts[1] {
		case "results":
			results, err := s.db.ListResultsByJob(id)
			if err != nil {
				writeCoreError(w, err)
				return
			}
			if results == nil {
				results = []database.AuditResult{}
			}
			writeJSON(w, http.StatusOK, results)
		case "summary":
			summary, err := s.aggregator.JobSummary(id)
			if err != nil {
				writeCoreError(w, err)
				return
			}
			if summary == nil {
				writeError(w, http.StatusNotFound, "audit job not found")
				return
			}
			writeJSON(w, http.StatusOK, summary)
		case "ckl":
			data, err := s.reportGen.ExportCKL(id)
			if err != nil {
				writeCoreError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			w.Header().Set("Content-Disposition", "attachment; filename=checklist.ckl")
			w.Write(data)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.db.GetAuditJob(id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "audit job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)

	case http.MethodDelete:
		cancelled, err := s.orchestrator.CancelAudit(id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if !cancelled {
			writeError(w, http.StatusConflict, "audit job is not cancellable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Audit groups ---

func (s *Server) handleAPIAuditGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var targetID int64
	if v := r.URL.Query().Get("target_id"); v != "" {
		targetID, _ = parseID(v)
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	groups, err := s.db.ListAuditGroups(targetID, limit)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if groups == nil {
		groups = []database.AuditGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleAPIAuditGroup(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/audit-groups/")
	parts := strings.SplitN(rest, "/", 2)
	id, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	if len(parts) > 1 {
		switch parts[1] {
		case "summary":
			summary, err := s.aggregator.GroupSummary(id)
			if err != nil {
				writeCoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, summary)
		case "report":
			s.handleGroupReport(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	group, err := s.db.GetAuditGroup(id)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "audit group not found")
		return
	}

	jobs, err := s.db.ListAuditJobsByGroup(id)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group": group,
		"jobs":  jobs,
	})
}

// handleGroupReport generates a report file (POST) or streams the
// markdown document directly (GET).
func (s *Server) handleGroupReport(w http.ResponseWriter, r *http.Request, groupID int64) {
	switch r.Method {
	case http.MethodGet:
		content, err := s.reportGen.GenerateMarkdown(groupID)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=group-%d-report.md", groupID))
		w.Write([]byte(content))

	case http.MethodPost:
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "markdown"
		}

		var path string
		var err error
		switch format {
		case "markdown":
			path, err = s.reportGen.SaveMarkdown(groupID)
		case "pdf":
			path, err = s.reportGen.SavePDF(groupID)
		default:
			writeError(w, http.StatusBadRequest, "format must be 'markdown' or 'pdf'")
			return
		}
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"path": path, "format": format})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Stats ---

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
