// Copyright 2025 SurveyFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/qualtrics"
	"surveyflow/platform/connectors/registry"
	"surveyflow/platform/destinations"
)

// ExportAPIRequest is the body of POST /api/v1/exports
type ExportAPIRequest struct {
	SurveyID      string                 `json:"survey_id"`
	Connector     string                 `json:"connector,omitempty"`      // Registry name; default "qualtrics"
	RenameColumns bool                   `json:"rename_columns,omitempty"` // Relabel columns with question text
	Options       map[string]interface{} `json:"options,omitempty"`
	Destination   string                 `json:"destination,omitempty"` // Configured destination name; empty returns rows inline
	Format        string                 `json:"format,omitempty"`      // csv or json; destination default when empty
}

// ExportAPIResponse is the body of export endpoints
type ExportAPIResponse struct {
	RunID          string                    `json:"run_id,omitempty"`
	Success        bool                      `json:"success"`
	Connector      string                    `json:"connector,omitempty"`
	SurveyID       string                    `json:"survey_id,omitempty"`
	Status         string                    `json:"status,omitempty"`
	RowCount       int                       `json:"row_count,omitempty"`
	Columns        []string                  `json:"columns,omitempty"`
	Rows           [][]interface{}           `json:"rows,omitempty"`
	Delivery       *destinations.WriteResult `json:"delivery,omitempty"`
	Error          string                    `json:"error,omitempty"`
	ProcessingTime string                    `json:"processing_time,omitempty"`
}

// Terminal statuses recorded in export run history
const (
	runStatusPending   = "pending"
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
	runStatusTimedOut  = "timed_out"
)

// questionSource is the metadata surface a connector may expose
type questionSource interface {
	GetQuestions(ctx context.Context, surveyID string) ([]qualtrics.Question, error)
}

func createExportHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	client, err := authenticateRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if !client.HasPermission("export") {
		sendErrorResponse(w, "client lacks export permission", http.StatusForbidden)
		return
	}

	if err := checkRateLimitRedis(r.Context(), client.ID, client.RateLimit); err != nil {
		promRateLimited.Inc()
		sendErrorResponse(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	var req ExportAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SurveyID == "" {
		sendErrorResponse(w, "survey_id is required", http.StatusBadRequest)
		return
	}
	if req.Format != "" && req.Format != destinations.FormatCSV && req.Format != destinations.FormatJSON {
		sendErrorResponse(w, "format must be csv or json", http.StatusBadRequest)
		return
	}

	connectorName := req.Connector
	if connectorName == "" {
		connectorName = "qualtrics"
	}

	if err := connectorRegistry.ValidateTenantAccess(connectorName, client.TenantID); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusForbidden)
		return
	}

	conn, err := connectorRegistry.Get(connectorName)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}

	// Record the run before starting so an operator can see in-flight exports
	runID := uuid.New().String()
	storage := connectorRegistry.Storage()
	if storage != nil {
		run := &registry.ExportRun{
			ID:          runID,
			TenantID:    client.TenantID,
			Connector:   connectorName,
			SurveyID:    req.SurveyID,
			Status:      runStatusPending,
			Destination: req.Destination,
			StartedAt:   time.Now().UTC(),
		}
		if err := storage.SaveExportRun(r.Context(), run); err != nil {
			log.Printf("Warning: failed to record export run %s: %v", runID, err)
		}
	}

	auditLog.Info(client.ID, runID, "export started", map[string]interface{}{
		"survey_id": req.SurveyID,
		"connector": connectorName,
		"tenant_id": client.TenantID,
	})

	result, err := conn.Export(r.Context(), &base.ExportRequest{
		SurveyID:      req.SurveyID,
		RenameColumns: req.RenameColumns,
		Options:       req.Options,
	})
	if err != nil {
		status, httpCode := classifyExportError(err)
		auditLog.ErrorWithCode(client.ID, runID, "export "+status, httpCode, err, map[string]interface{}{
			"survey_id": req.SurveyID,
			"connector": connectorName,
		})
		finishExportRun(r.Context(), storage, runID, status, 0, err)
		promExportsTotal.WithLabelValues(status).Inc()
		serviceMetrics.RecordExport(connectorName, time.Since(startTime).Milliseconds(), status)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpCode)
		if encErr := json.NewEncoder(w).Encode(ExportAPIResponse{
			RunID:          runID,
			Success:        false,
			Connector:      connectorName,
			SurveyID:       req.SurveyID,
			Status:         status,
			Error:          err.Error(),
			ProcessingTime: time.Since(startTime).String(),
		}); encErr != nil {
			log.Printf("Error encoding response: %v", encErr)
		}
		return
	}

	response := ExportAPIResponse{
		RunID:     runID,
		Success:   true,
		Connector: connectorName,
		SurveyID:  req.SurveyID,
		Status:    runStatusCompleted,
		RowCount:  result.RowCount,
		Columns:   result.Table.Columns,
	}

	if req.Destination != "" {
		delivery, err := deliverExport(r.Context(), client.TenantID, req.Destination, &destinations.WriteRequest{
			SurveyID: req.SurveyID,
			RunID:    runID,
			Table:    result.Table,
			Format:   req.Format,
		})
		if err != nil {
			finishExportRun(r.Context(), storage, runID, runStatusFailed, result.RowCount, err)
			promExportsTotal.WithLabelValues(runStatusFailed).Inc()
			serviceMetrics.RecordExport(connectorName, time.Since(startTime).Milliseconds(), runStatusFailed)
			sendErrorResponse(w, "Delivery failed: "+err.Error(), http.StatusBadGateway)
			return
		}
		response.Delivery = delivery
	} else {
		// No destination: return the table inline
		response.Rows = result.Table.Rows
	}

	finishExportRun(r.Context(), storage, runID, runStatusCompleted, result.RowCount, nil)

	latencyMs := time.Since(startTime).Milliseconds()
	auditLog.InfoWithDuration(client.ID, runID, "export completed", float64(latencyMs), map[string]interface{}{
		"survey_id": req.SurveyID,
		"connector": connectorName,
		"row_count": result.RowCount,
	})
	promExportsTotal.WithLabelValues(runStatusCompleted).Inc()
	promExportDuration.WithLabelValues(connectorName).Observe(float64(latencyMs))
	serviceMetrics.RecordExport(connectorName, latencyMs, runStatusCompleted)

	response.ProcessingTime = time.Since(startTime).String()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// classifyExportError maps export failures to run statuses and HTTP codes
func classifyExportError(err error) (string, int) {
	switch {
	case qualtrics.IsTimeout(err):
		return runStatusTimedOut, http.StatusGatewayTimeout
	case qualtrics.IsExportFailure(err):
		return runStatusFailed, http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return runStatusFailed, http.StatusRequestTimeout
	default:
		return runStatusFailed, http.StatusInternalServerError
	}
}

// finishExportRun updates run history; a nil storage means history is disabled
func finishExportRun(ctx context.Context, storage *registry.PostgreSQLStorage, runID, status string, rowCount int, runErr error) {
	if storage == nil {
		return
	}

	completed := time.Now().UTC()
	run := &registry.ExportRun{
		ID:          runID,
		Status:      status,
		RowCount:    rowCount,
		CompletedAt: &completed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := storage.UpdateExportRun(ctx, run); err != nil {
		log.Printf("Warning: failed to update export run %s: %v", runID, err)
	}
}

func getExportRunHandler(w http.ResponseWriter, r *http.Request) {
	client, err := authenticateRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	storage := connectorRegistry.Storage()
	if storage == nil {
		sendErrorResponse(w, "Export run history not available - database connection required", http.StatusServiceUnavailable)
		return
	}

	runID := mux.Vars(r)["id"]
	run, err := storage.GetExportRun(r.Context(), runID)
	if err != nil {
		sendErrorResponse(w, "Export run not found", http.StatusNotFound)
		return
	}
	if run.TenantID != client.TenantID && client.TenantID != "*" {
		sendErrorResponse(w, "Export run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(run); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func listExportRunsHandler(w http.ResponseWriter, r *http.Request) {
	client, err := authenticateRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	storage := connectorRegistry.Storage()
	if storage == nil {
		sendErrorResponse(w, "Export run history not available - database connection required", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			sendErrorResponse(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}

	runs, err := storage.ListExportRuns(r.Context(), client.TenantID, limit)
	if err != nil {
		sendErrorResponse(w, "Failed to list export runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func surveyQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	client, err := authenticateRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if !client.HasPermission("questions") {
		sendErrorResponse(w, "client lacks questions permission", http.StatusForbidden)
		return
	}

	surveyID := mux.Vars(r)["survey_id"]
	connectorName := r.URL.Query().Get("connector")
	if connectorName == "" {
		connectorName = "qualtrics"
	}

	if err := connectorRegistry.ValidateTenantAccess(connectorName, client.TenantID); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusForbidden)
		return
	}

	conn, err := connectorRegistry.Get(connectorName)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}

	source, ok := conn.(questionSource)
	if !ok {
		sendErrorResponse(w, "Connector does not expose question metadata", http.StatusNotImplemented)
		return
	}

	questions, err := source.GetQuestions(r.Context(), surveyID)
	if err != nil {
		sendErrorResponse(w, "Failed to fetch questions: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"survey_id": surveyID,
		"questions": questions,
		"renames":   qualtrics.ColumnRenames(questions),
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
