package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"nodeflow/api/services/jobs"
)

// HandleGetWorkflow loads a workflow definition from the database and returns it as JSON.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Getting workflow", "id", id)

	wf, err := s.store.LoadWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(wf)
}

// HandleSaveWorkflow replaces a workflow's nodes and connections with the
// editor's current graph.
func (s *Service) HandleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Saving workflow", "id", id)

	var wf Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	wf.ID = id

	if err := validateGraph(wf); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SaveWorkflow(r.Context(), &wf); err != nil {
		slog.Error("Failed to save workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(wf)
}

// HandleExecuteWorkflow queues a manual run of the workflow.
func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Executing workflow", "id", id)

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.trigger(r.Context(), w, id, req.InitialData)
}

// HandleGetExecution returns the record of a run.
func (s *Service) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ex, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get execution", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if ex == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ex)
}

// trigger checks the workflow exists and queues an execute event for it.
func (s *Service) trigger(ctx context.Context, w http.ResponseWriter, workflowID string, initialData map[string]any) {
	wf, err := s.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		slog.Error("Failed to get workflow for execution", "id", workflowID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	ev, err := jobs.NewEvent(ExecuteEventName, ExecuteEvent{WorkflowID: workflowID, InitialData: initialData})
	if err != nil {
		writeError(w, http.StatusBadRequest, "initial data is not serialisable")
		return
	}
	if err := s.jobs.Send(ctx, ev); err != nil {
		slog.Error("Failed to queue workflow execution", "id", workflowID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not queue execution")
		return
	}

	slog.Info("Workflow execution queued", "id", workflowID, "eventId", ev.ID)
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(ExecuteResponse{EventID: ev.ID, WorkflowID: workflowID})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// validateGraph rejects graphs the engine could never run: unknown node
// types and connections to nodes that are not in the workflow. Cycles are
// allowed to be saved and are reported when the workflow runs.
func validateGraph(wf Workflow) error {
	ids := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if !n.Type.Valid() {
			return &validationError{field: "node type " + string(n.Type), kind: "invalid"}
		}
		if n.ID != "" {
			if ids[n.ID] {
				return &validationError{field: "node id " + n.ID, kind: "duplicate"}
			}
			ids[n.ID] = true
		}
	}
	for _, c := range wf.Connections {
		if c.FromNodeID == "" || c.ToNodeID == "" {
			return errMissing("connection endpoint")
		}
		if !ids[c.FromNodeID] || !ids[c.ToNodeID] {
			return &validationError{field: "connection " + c.FromNodeID + " -> " + c.ToNodeID, kind: "invalid"}
		}
	}
	return nil
}

type validationError struct {
	field string
	kind  string
}

func (e *validationError) Error() string {
	switch e.kind {
	case "missing":
		return e.field + " is required"
	case "duplicate":
		return e.field + " is duplicated"
	default:
		return e.field + " is invalid"
	}
}

func errMissing(field string) error { return &validationError{field: field, kind: "missing"} }
