// Package api is the HTTP surface for batch upload and task lifecycle
// management, trimmed from the teacher's full REST API down to the
// minimal status surface the scheduler needs: no sessions, no auth
// middleware, no CORS (Non-goal: this repo has no UI of its own).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pinggolf/aps-scheduler/internal/config"
	"github.com/pinggolf/aps-scheduler/internal/db"
	"github.com/pinggolf/aps-scheduler/internal/idgen"
	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/pinggolf/aps-scheduler/internal/orchestrator"
	"github.com/pinggolf/aps-scheduler/internal/parser"
)

// Server serves the batch/task HTTP surface.
type Server struct {
	config *config.Config
	db     *db.Queries
	orch   *orchestrator.Orchestrator
	router *mux.Router
}

func NewServer(cfg *config.Config, queries *db.Queries, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		config: cfg,
		db:     queries,
		orch:   orch,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/batches", s.handleCreateBatch).Methods("POST")
	api.HandleFunc("/batches/{id}/tasks", s.handleStartTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/cancel", s.handleCancelTask).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateBatch accepts workbook bytes (the request body) plus a
// `cadence` query parameter, parses it, and persists the ImportBatch and
// its PlanRows.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	cadence := model.Cadence(r.URL.Query().Get("cadence"))
	if cadence != model.CadenceDecade && cadence != model.CadenceMonthly {
		writeError(w, http.StatusBadRequest, fmt.Errorf("cadence must be %q or %q", model.CadenceDecade, model.CadenceMonthly))
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload.xlsx"
	}
	planYear, _ := strconv.Atoi(r.URL.Query().Get("planYear"))

	data, err := io.ReadAll(io.LimitReader(r.Body, s.config.WorkbookMaxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(data)) > s.config.WorkbookMaxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("workbook exceeds %d bytes", s.config.WorkbookMaxBytes))
		return
	}

	now := time.Now().UTC()
	result, err := parser.Parse(data, filename, parser.Options{Cadence: cadence, PlanYear: planYear})
	var structErr *parser.StructuralError
	if errors.As(err, &structErr) {
		writeError(w, http.StatusUnprocessableEntity, structErr)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	batchID := idgen.ImportBatch(string(cadence), now)
	ctx := r.Context()

	if err := s.db.CreateImportBatch(ctx, db.ImportBatchRow{
		ID:             batchID,
		Cadence:        string(cadence),
		SourceFilename: filename,
		FileSizeBytes:  int64(len(data)),
		UploadedAt:     now,
		State:          string(model.BatchParsing),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create import batch: %w", err))
		return
	}

	rows := make([]db.PlanRowRow, 0, len(result.Rows))
	var validCount, errorCount, warningCount int
	for _, row := range result.Rows {
		switch row.Status {
		case model.StatusError:
			errorCount++
		case model.StatusWarning:
			warningCount++
			validCount++
		default:
			validCount++
		}
		rows = append(rows, planRowToDBRow(row))
	}
	if err := s.db.InsertPlanRows(ctx, batchID, rows); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("insert plan rows: %w", err))
		return
	}
	if err := s.db.UpdateImportBatchCounts(ctx, batchID, len(result.Rows), validCount, errorCount, warningCount, string(model.BatchCompleted)); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("update batch counts: %w", err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":          batchID,
		"totalRows":   len(result.Rows),
		"validRows":   validCount,
		"errorRows":   errorCount,
		"warningRows": warningCount,
	})
}

func planRowToDBRow(r model.PlanRow) db.PlanRowRow {
	row := db.PlanRowRow{
		RowIndex:       r.RowIndex,
		WorkOrderID:    r.WorkOrderID,
		ArticleCode:    r.ArticleCode,
		PackageType:    r.PackageType,
		Specification:  r.Specification,
		ProductionUnit: r.ProductionUnit,
		FeederCodes:    r.FeederCodes,
		MakerCodes:     r.MakerCodes,
		InputQuantity:  r.InputQuantity,
		FinalQuantity:  r.FinalQuantity,
		RawDateRange:   r.RawDateRange,
		Status:         string(r.Status),
	}
	if !r.PlannedStart.IsZero() {
		row.PlannedStart.Time = r.PlannedStart
		row.PlannedStart.Valid = true
	}
	if !r.PlannedEnd.IsZero() {
		row.PlannedEnd.Time = r.PlannedEnd
		row.PlannedEnd.Valid = true
	}
	if r.Message != "" {
		row.Message.String = r.Message
		row.Message.Valid = true
	}
	return row
}

// handleStartTask launches the pipeline over one or more batches. The
// path's batch id is always included; additional batch ids may be listed
// in the JSON body to run several batches as one task.
func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["id"]

	var body struct {
		BatchIDs []string             `json:"batchIds"`
		Options  orchestrator.Options `json:"options"`
	}
	body.Options = orchestrator.DefaultOptions()
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	batchIDs := append([]string{batchID}, body.BatchIDs...)
	taskID, err := s.orch.Start(r.Context(), batchIDs, body.Options)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	status, err := s.orch.Status(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	if err := s.orch.Cancel(r.Context(), taskID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
