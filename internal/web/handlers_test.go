package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lucasnoah/builddoctor/internal/db"
)

func postJSON(t *testing.T, f *fixture, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, f *fixture, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

// --- /api/diagnose ---

func TestDiagnoseEndpoint(t *testing.T) {
	f := setupTest(t)
	build := &db.Build{
		PipelineID:   f.pipeline.ID,
		AzureBuildID: "123",
		Status:       db.BuildPending,
		Result:       db.ResultFailed,
	}
	if err := f.db.CreateBuild(build); err != nil {
		t.Fatal(err)
	}

	rec := postJSON(t, f, "/api/diagnose", map[string]string{"buildId": build.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["success"] != true || resp["diagnosisId"] == "" {
		t.Errorf("response = %+v", resp)
	}

	got, err := f.db.GetBuild(build.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != db.BuildCompleted {
		t.Errorf("build status = %q, want completed", got.Status)
	}
}

func TestDiagnoseEndpoint_MissingBuildID(t *testing.T) {
	f := setupTest(t)
	rec := postJSON(t, f, "/api/diagnose", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDiagnoseEndpoint_UnknownBuild(t *testing.T) {
	f := setupTest(t)
	rec := postJSON(t, f, "/api/diagnose", map[string]string{"buildId": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decode(t, rec)
	if resp["success"] != false || resp["error"] != "Diagnosis failed" {
		t.Errorf("response = %+v", resp)
	}
}

// --- Slack endpoints ---

func TestSlackSave(t *testing.T) {
	f := setupTest(t)
	rec := postJSON(t, f, "/api/slack/save", map[string]string{"webhookUrl": "https://hooks.slack.com/services/T/B/x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	profile, err := f.db.DefaultProfile()
	if err != nil {
		t.Fatal(err)
	}
	if profile.SlackWebhookURL != "https://hooks.slack.com/services/T/B/x" {
		t.Errorf("webhook not persisted: %q", profile.SlackWebhookURL)
	}
}

func TestSlackSave_MissingURL(t *testing.T) {
	f := setupTest(t)
	rec := postJSON(t, f, "/api/slack/save", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSlackTest(t *testing.T) {
	var got map[string]string
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer slackSrv.Close()

	f := setupTest(t)
	rec := postJSON(t, f, "/api/slack/test", map[string]string{"webhookUrl": slackSrv.URL})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(got["text"], "BuildDoctor connected") {
		t.Errorf("test message = %q", got["text"])
	}
}

func TestSlackTest_EndpointDown(t *testing.T) {
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer slackSrv.Close()

	f := setupTest(t)
	rec := postJSON(t, f, "/api/slack/test", map[string]string{"webhookUrl": slackSrv.URL})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- Azure DevOps endpoints ---

func TestDevOpsTest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	f := setupTest(t)
	f.server.devopsBaseURL = upstream.URL

	rec := get(t, f, "/api/azure-devops/test")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode(t, rec)["ok"] != true {
		t.Errorf("response = %s", rec.Body.String())
	}
}

func TestDevOpsProjects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": []map[string]string{
			{"id": "p1", "name": "Web"},
		}})
	}))
	defer upstream.Close()

	f := setupTest(t)
	f.server.devopsBaseURL = upstream.URL

	rec := get(t, f, "/api/azure-devops/projects")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	projects := decode(t, rec)["projects"].([]any)
	if len(projects) != 1 {
		t.Errorf("projects = %+v", projects)
	}
}

func TestDevOpsPipelines_RequiresProject(t *testing.T) {
	f := setupTest(t)
	rec := get(t, f, "/api/azure-devops/pipelines")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDevOpsEndpoints_NotConfigured(t *testing.T) {
	f := setupTest(t)
	f.profile.AzureDevOpsOrg = ""
	f.profile.AzureDevOpsPAT = ""
	if err := f.db.UpdateProfile(f.profile); err != nil {
		t.Fatal(err)
	}

	rec := get(t, f, "/api/azure-devops/test")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if decode(t, rec)["error"] != "Azure DevOps not configured" {
		t.Errorf("response = %s", rec.Body.String())
	}
}

func TestSetupWebhook(t *testing.T) {
	var subscription map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&subscription)
		json.NewEncoder(w).Encode(map[string]string{"id": "hook-42"})
	}))
	defer upstream.Close()

	f := setupTest(t)
	f.server.devopsBaseURL = upstream.URL

	rec := postJSON(t, f, "/api/azure-devops/setup-webhook", map[string]string{
		"projectId":    "p2",
		"projectName":  "Mobile",
		"pipelineId":   "9",
		"pipelineName": "Nightly",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["success"] != true || resp["hookId"] != "hook-42" {
		t.Errorf("response = %+v", resp)
	}

	// The subscription points back at this instance.
	inputs := subscription["consumerInputs"].(map[string]any)
	if inputs["url"] != "https://doctor.example.com/api/webhooks/azure-devops" {
		t.Errorf("hook url = %v", inputs["url"])
	}

	pipeline, err := f.db.FindActivePipeline("9")
	if err != nil {
		t.Fatalf("pipeline not persisted: %v", err)
	}
	if pipeline.AzureProjectID != "p2" || pipeline.AzurePipelineName != "Nightly" {
		t.Errorf("pipeline = %+v", pipeline)
	}
	if len(pipeline.WebhookSecret) != 64 {
		t.Errorf("webhook secret length = %d, want 64", len(pipeline.WebhookSecret))
	}

	// The secret handed to the platform is the one persisted.
	var headers map[string]string
	if err := json.Unmarshal([]byte(inputs["httpHeaders"].(string)), &headers); err != nil {
		t.Fatal(err)
	}
	if headers["X-Hub-Signature"] != pipeline.WebhookSecret {
		t.Error("persisted secret differs from the subscribed one")
	}
}

func TestSetupWebhook_MissingFields(t *testing.T) {
	f := setupTest(t)
	rec := postJSON(t, f, "/api/azure-devops/setup-webhook", map[string]string{"projectId": "p1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSetupWebhook_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer upstream.Close()

	f := setupTest(t)
	f.server.devopsBaseURL = upstream.URL

	rec := postJSON(t, f, "/api/azure-devops/setup-webhook", map[string]string{
		"projectId":  "p2",
		"pipelineId": "9",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	// No pipeline row is written when the subscription fails.
	if _, err := f.db.FindActivePipeline("9"); err == nil {
		t.Error("pipeline persisted despite hook failure")
	}
}
