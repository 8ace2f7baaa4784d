package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/amccray/stigward/internal/audit"
	"github.com/amccray/stigward/internal/benchmark"
	"github.com/amccray/stigward/internal/config"
	"github.com/amccray/stigward/internal/database"
	"github.com/amccray/stigward/internal/importer"
	"github.com/amccray/stigward/internal/report"
)

type Server struct {
	cfg          *config.Config
	db           *database.DB
	hub          *Hub
	orchestrator *audit.Orchestrator
	aggregator   *audit.Aggregator
	importer     *importer.Importer
	reportGen    *report.Generator
	mux          *http.ServeMux
}

func New(cfg *config.Config, db *database.DB, eng audit.Engine) *Server {
	hub := NewHub()
	agg := audit.NewAggregator(db)

	limits := benchmark.Limits{
		MaxEntries:       cfg.Imports.MaxArchiveEntries,
		MaxTotalBytes:    cfg.Imports.MaxArchiveBytes,
		MaxDocumentBytes: cfg.Imports.MaxDocumentBytes,
	}

	s := &Server{
		cfg:          cfg,
		db:           db,
		hub:          hub,
		orchestrator: audit.NewOrchestrator(db, eng, hub),
		aggregator:   agg,
		importer:     importer.New(db, limits),
		reportGen:    report.NewGenerator(db, agg, cfg.Reports.Directory, cfg.Reports.FontPath),
		mux:          http.NewServeMux(),
	}

	s.registerRoutes()
	return s
}

// Hub exposes the event hub so the completion consumer can broadcast
// through it.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	slog.Info("starting server", "addr", addr)

	handler := recoveryMiddleware(securityHeaders(loggingMiddleware(s.mux)))
	return http.ListenAndServe(addr, handler)
}

func (s *Server) registerRoutes() {
	// Inventory
	s.mux.HandleFunc("/api/targets", s.handleAPITargets)
	s.mux.HandleFunc("/api/targets/", s.handleAPITarget)
	s.mux.HandleFunc("/api/credentials", s.handleAPICredentials)
	s.mux.HandleFunc("/api/credentials/", s.handleAPICredential)

	// Benchmark library
	s.mux.HandleFunc("/api/definitions", s.handleAPIDefinitions)
	s.mux.HandleFunc("/api/definitions/", s.handleAPIDefinition)

	// Ingestion
	s.mux.HandleFunc("/api/imports/benchmark", s.handleAPIImportBenchmark)
	s.mux.HandleFunc("/api/imports/checklist", s.handleAPIImportChecklist)

	// Audits
	s.mux.HandleFunc("/api/audits", s.handleAPIAudits)
	s.mux.HandleFunc("/api/audits/", s.handleAPIAudit)
	s.mux.HandleFunc("/api/audit-groups", s.handleAPIAuditGroups)
	s.mux.HandleFunc("/api/audit-groups/", s.handleAPIAuditGroup)

	// Dashboard
	s.mux.HandleFunc("/api/stats", s.handleAPIStats)

	// WebSocket
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}
