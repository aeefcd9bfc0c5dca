package workflow

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"nodeflow/api/services/jobs"
)

// WorkflowRepo abstracts workflow reads for the engine.
type WorkflowRepo interface {
	LoadWorkflow(ctx context.Context, id string) (*Workflow, error)
}

// Store is the persistence the HTTP layer needs.
type Store interface {
	WorkflowRepo
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
}

// Service wires together the store and the job client for the workflow domain.
type Service struct {
	store Store
	jobs  jobs.Client
}

// NewService creates a Service that persists through store and queues runs on client.
func NewService(store Store, client jobs.Client) *Service {
	return &Service{store: store, jobs: client}
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers workflow HTTP handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.PathPrefix("/workflows").Subrouter()
	router.StrictSlash(false)
	router.Use(jsonMiddleware)

	router.HandleFunc("/{id}", s.HandleGetWorkflow).Methods("GET")
	router.HandleFunc("/{id}", s.HandleSaveWorkflow).Methods("PUT")
	router.HandleFunc("/{id}/execute", s.HandleExecuteWorkflow).Methods("POST")

	executions := parentRouter.PathPrefix("/executions").Subrouter()
	executions.Use(jsonMiddleware)
	executions.HandleFunc("/{id}", s.HandleGetExecution).Methods("GET")

	webhooks := parentRouter.PathPrefix("/webhooks").Subrouter()
	webhooks.Use(jsonMiddleware)
	webhooks.HandleFunc("/google-form", s.HandleGoogleFormWebhook).Methods("POST")
	webhooks.HandleFunc("/stripe", s.HandleStripeWebhook).Methods("POST")
}
