// Package httpapi is the thin HTTP trigger layer in front of the workflow
// engine. It validates submissions, enqueues them, and acknowledges with
// 202 Accepted once the run is accepted. Delivery failures are operational
// and never block the user-facing response.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mariusgr/contactflow/pkg/api"
)

// Submitter enqueues a contact submission for asynchronous execution and
// returns the run id it will execute under. *worker.Worker satisfies it.
type Submitter interface {
	EnqueueSubmission(ctx context.Context, workflow string, payload api.ContactPayload, runID string) (string, error)
}

// Server exposes the contact trigger endpoint and a run status endpoint.
type Server struct {
	engine    api.Engine
	submitter Submitter
	workflow  string

	// AllowedOrigins configures CORS for browser submissions.
	AllowedOrigins []string
}

// NewServer creates a Server that enqueues submissions for the given
// workflow name.
func NewServer(engine api.Engine, submitter Submitter, workflow string) *Server {
	return &Server{
		engine:    engine,
		submitter: submitter,
		workflow:  workflow,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
	}))

	r.Post("/api/contact", s.handleSubmitContact)
	r.Get("/api/runs/{id}", s.handleGetRun)

	return r
}

type contactResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleSubmitContact(w http.ResponseWriter, r *http.Request) {
	var payload api.ContactPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if fields := validatePayload(payload); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
		return
	}
	if payload.Locale == "" {
		payload.Locale = "en"
	}

	// An Idempotency-Key becomes the run id, so a client retry of the same
	// request resumes the same run instead of notifying twice.
	runID := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	runID, err := s.submitter.EnqueueSubmission(r.Context(), s.workflow, payload, runID)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "could not accept submission"})
		return
	}

	writeJSON(w, http.StatusAccepted, contactResponse{RunID: runID, Status: "accepted"})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.engine.GetRun(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}

	writeJSON(w, http.StatusOK, runView(run))
}

type stepView struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

type runViewBody struct {
	ID       string     `json:"id"`
	Workflow string     `json:"workflow"`
	Status   string     `json:"status"`
	Steps    []stepView `json:"steps"`
}

func runView(run *api.Run) runViewBody {
	steps := make([]stepView, len(run.Steps))
	for i, rec := range run.Steps {
		steps[i] = stepView{
			Name:      rec.Name,
			Status:    string(rec.Status),
			Attempts:  rec.Attempts,
			LastError: rec.LastError,
		}
	}
	return runViewBody{
		ID:       run.ID,
		Workflow: run.Workflow,
		Status:   string(run.Status),
		Steps:    steps,
	}
}

func validatePayload(p api.ContactPayload) map[string]string {
	fields := make(map[string]string)

	if strings.TrimSpace(p.Name) == "" {
		fields["name"] = "required"
	}
	if strings.TrimSpace(p.Email) == "" {
		fields["email"] = "required"
	} else if _, err := mail.ParseAddress(p.Email); err != nil {
		fields["email"] = "invalid"
	}
	if strings.TrimSpace(p.Message) == "" {
		fields["message"] = "required"
	}
	if !p.PrivacyAccepted {
		fields["privacy_accepted"] = "must be accepted"
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
