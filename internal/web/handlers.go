package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lucasnoah/builddoctor/internal/db"
)

// handleDiagnose runs the orchestrator synchronously for one build. This
// is the collaborator-facing trigger; the webhook receiver calls the same
// orchestration in the background.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuildID string `json:"buildId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuildID == "" {
		writeError(w, http.StatusBadRequest, "buildId required")
		return
	}

	result, err := s.orch.Diagnose(r.Context(), req.BuildID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrNotFound) {
			status = http.StatusNotFound
		}
		log.Printf("web: diagnose build %s: %v", req.BuildID, err)
		writeJSON(w, status, map[string]any{"error": "Diagnosis failed", "success": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"diagnosisId": result.DiagnosisID,
	})
}

// profileOr400 loads the instance profile, writing an error response when
// it is missing or lacks upstream credentials.
func (s *Server) profileOr400(w http.ResponseWriter) *db.Profile {
	profile, err := s.db.DefaultProfile()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Azure DevOps not configured")
		return nil
	}
	if profile.AzureDevOpsOrg == "" || profile.AzureDevOpsPAT == "" {
		writeError(w, http.StatusBadRequest, "Azure DevOps not configured")
		return nil
	}
	return profile
}

func (s *Server) handleDevOpsTest(w http.ResponseWriter, r *http.Request) {
	profile := s.profileOr400(w)
	if profile == nil {
		return
	}
	ok := s.devopsClient(profile).TestConnection(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (s *Server) handleDevOpsProjects(w http.ResponseWriter, r *http.Request) {
	profile := s.profileOr400(w)
	if profile == nil {
		return
	}
	projects, err := s.devopsClient(profile).Projects(r.Context())
	if err != nil {
		log.Printf("web: fetch projects: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch projects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleDevOpsPipelines(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		writeError(w, http.StatusBadRequest, "project required")
		return
	}
	profile := s.profileOr400(w)
	if profile == nil {
		return
	}
	pipelines, err := s.devopsClient(profile).Pipelines(r.Context(), project)
	if err != nil {
		log.Printf("web: fetch pipelines: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch pipelines")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": pipelines})
}

// handleSetupWebhook registers a pipeline: it mints the webhook secret,
// subscribes the upstream service hook, and persists the pipeline row.
// The secret is immutable from here on; there is no update path.
func (s *Server) handleSetupWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID    string `json:"projectId"`
		ProjectName  string `json:"projectName"`
		PipelineID   string `json:"pipelineId"`
		PipelineName string `json:"pipelineName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == "" || req.PipelineID == "" {
		writeError(w, http.StatusBadRequest, "Project and pipeline required")
		return
	}

	profile := s.profileOr400(w)
	if profile == nil {
		return
	}

	secret := db.NewWebhookSecret()
	webhookURL := s.baseURL + "/api/webhooks/azure-devops"

	hookID, err := s.devopsClient(profile).CreateServiceHook(r.Context(), req.ProjectID, req.PipelineID, webhookURL, secret)
	if err != nil {
		log.Printf("web: create service hook: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create webhook")
		return
	}

	pipeline := &db.Pipeline{
		UserID:            profile.ID,
		AzureProjectID:    req.ProjectID,
		AzureProjectName:  req.ProjectName,
		AzurePipelineID:   req.PipelineID,
		AzurePipelineName: req.PipelineName,
		WebhookSecret:     secret,
		IsActive:          true,
	}
	if err := s.db.CreatePipeline(pipeline); err != nil {
		log.Printf("web: save pipeline: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save pipeline")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "hookId": hookID})
}

func (s *Server) handleSlackTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebhookURL string `json:"webhookUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WebhookURL == "" {
		writeError(w, http.StatusBadRequest, "webhookUrl required")
		return
	}

	if !s.notifier.SendTestMessage(r.Context(), req.WebhookURL) {
		writeError(w, http.StatusBadRequest, "Failed to send test message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSlackSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebhookURL string `json:"webhookUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WebhookURL == "" {
		writeError(w, http.StatusBadRequest, "webhookUrl required")
		return
	}

	profile, err := s.db.DefaultProfile()
	if err != nil {
		writeError(w, http.StatusBadRequest, "profile not configured")
		return
	}
	profile.SlackWebhookURL = req.WebhookURL
	if err := s.db.UpdateProfile(profile); err != nil {
		log.Printf("web: save slack webhook: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
