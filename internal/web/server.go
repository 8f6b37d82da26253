// Package web serves the JSON API: the inbound webhook receiver, the
// diagnosis trigger, and the setup endpoints for upstream credentials,
// pipelines, and chat notifications.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/lucasnoah/builddoctor/internal/db"
	"github.com/lucasnoah/builddoctor/internal/devops"
	"github.com/lucasnoah/builddoctor/internal/orchestrator"
	"github.com/lucasnoah/builddoctor/internal/slack"
)

// Server is the HTTP API server.
type Server struct {
	db       *db.DB
	orch     *orchestrator.Orchestrator
	notifier *slack.Notifier
	port     int

	// baseURL is this instance's externally reachable URL, embedded in
	// service-hook subscriptions.
	baseURL string

	// devopsBaseURL overrides the upstream platform endpoint (tests).
	devopsBaseURL string

	// diagnoseAsync dispatches a background orchestration run for an
	// accepted build. Overridable in tests.
	diagnoseAsync func(buildID string)
}

// NewServer creates a Server.
func NewServer(database *db.DB, orch *orchestrator.Orchestrator, notifier *slack.Notifier, port int, baseURL string) *Server {
	s := &Server{
		db:       database,
		orch:     orch,
		notifier: notifier,
		port:     port,
		baseURL:  baseURL,
	}
	s.diagnoseAsync = func(buildID string) {
		// Fire and forget: the webhook response never waits for analysis,
		// and a failed run is only logged.
		go func() {
			if _, err := s.orch.Diagnose(context.Background(), buildID); err != nil {
				log.Printf("web: background diagnosis for build %s: %v", buildID, err)
			}
		}()
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/webhooks/azure-devops", s.handleWebhook)
	mux.HandleFunc("POST /api/diagnose", s.handleDiagnose)
	mux.HandleFunc("POST /api/slack/test", s.handleSlackTest)
	mux.HandleFunc("POST /api/slack/save", s.handleSlackSave)
	mux.HandleFunc("GET /api/azure-devops/test", s.handleDevOpsTest)
	mux.HandleFunc("GET /api/azure-devops/projects", s.handleDevOpsProjects)
	mux.HandleFunc("GET /api/azure-devops/pipelines", s.handleDevOpsPipelines)
	mux.HandleFunc("POST /api/azure-devops/setup-webhook", s.handleSetupWebhook)
	return mux
}

// Start listens and serves until the process exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("builddoctor API listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// devopsClient builds a platform client with the profile's credentials.
func (s *Server) devopsClient(profile *db.Profile) *devops.Client {
	client := devops.NewClient(profile.AzureDevOpsOrg, profile.AzureDevOpsPAT)
	if s.devopsBaseURL != "" {
		client.BaseURL = s.devopsBaseURL
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
