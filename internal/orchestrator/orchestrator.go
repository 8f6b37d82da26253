// Package orchestrator owns the build diagnosis lifecycle: it drives a
// pending build through log fetch, two-pass analysis, persistence, and
// notification, and guarantees a terminal status plus a diagnosis row even
// when any of those steps fail.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lucasnoah/builddoctor/internal/ai"
	"github.com/lucasnoah/builddoctor/internal/db"
	"github.com/lucasnoah/builddoctor/internal/devops"
	"github.com/lucasnoah/builddoctor/internal/slack"
)

// LogFetcher retrieves the raw log text of an upstream build.
// Interface for testing.
type LogFetcher interface {
	FetchLogs(ctx context.Context, org, projectID, buildID, pat string) (string, error)
}

// Analyzer runs the two-pass analysis over log text. Interface for testing.
type Analyzer interface {
	DiagnoseBuild(ctx context.Context, logs string) (*ai.FullDiagnosis, error)
}

// Notifier dispatches the diagnosis summary to a chat webhook.
// Interface for testing.
type Notifier interface {
	SendDiagnosis(ctx context.Context, webhookURL string, diagnosis slack.DiagnosisData, build slack.BuildData) bool
}

// DevOpsLogFetcher fetches logs from Azure DevOps with per-profile
// credentials. BaseURL overrides the platform endpoint when set.
type DevOpsLogFetcher struct {
	BaseURL string
}

// FetchLogs implements LogFetcher.
func (f *DevOpsLogFetcher) FetchLogs(ctx context.Context, org, projectID, buildID, pat string) (string, error) {
	client := devops.NewClient(org, pat)
	if f.BaseURL != "" {
		client.BaseURL = f.BaseURL
	}
	return client.BuildLogs(ctx, projectID, buildID)
}

// Orchestrator composes the diagnosis pipeline.
type Orchestrator struct {
	db       *db.DB
	fetcher  LogFetcher
	analyzer Analyzer
	notifier Notifier
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(database *db.DB, fetcher LogFetcher, analyzer Analyzer, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		db:       database,
		fetcher:  fetcher,
		analyzer: analyzer,
		notifier: notifier,
	}
}

// Result describes a finished orchestration run.
type Result struct {
	BuildID     string `json:"buildId"`
	DiagnosisID string `json:"diagnosisId"`
	Notified    bool   `json:"notified,omitempty"`
}

// Diagnose runs the full lifecycle for one build:
//
//	pending → analyzing → {completed | failed}
//
// Missing entities abort before any transition (the build stays pending).
// Once the build is analyzing, every failure lands it at failed with the
// fixed fallback diagnosis, so no run leaves a build stuck mid-state.
func (o *Orchestrator) Diagnose(ctx context.Context, buildID string) (*Result, error) {
	build, err := o.db.GetBuild(buildID)
	if err != nil {
		return nil, fmt.Errorf("get build %s: %w", buildID, err)
	}
	pipeline, err := o.db.GetPipeline(build.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("get pipeline %s: %w", build.PipelineID, err)
	}
	profile, err := o.db.GetProfile(pipeline.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", pipeline.UserID, err)
	}

	if err := o.db.UpdateBuildStatus(build.ID, db.BuildAnalyzing); err != nil {
		return nil, fmt.Errorf("mark build analyzing: %w", err)
	}

	logs, err := o.fetcher.FetchLogs(ctx, profile.AzureDevOpsOrg, pipeline.AzureProjectID, build.AzureBuildID, profile.AzureDevOpsPAT)
	if err != nil {
		return nil, o.failBuild(build.ID, fmt.Errorf("fetch logs: %w", err))
	}
	if strings.TrimSpace(logs) == "" {
		return nil, o.failBuild(build.ID, fmt.Errorf("build logs are empty or unavailable"))
	}

	diagnosis, err := o.analyzer.DiagnoseBuild(ctx, logs)
	if err != nil {
		return nil, o.failBuild(build.ID, fmt.Errorf("analyze logs: %w", err))
	}

	row := &db.Diagnosis{
		BuildID:       build.ID,
		ErrorCategory: diagnosis.Category,
		RootCause:     diagnosis.RootCause,
		Explanation:   diagnosis.Explanation,
		SuggestedFix:  diagnosis.SuggestedFix,
		RelevantLogs:  diagnosis.RelevantLines,
		Confidence:    diagnosis.Diagnosis.Confidence,
	}
	if err := o.db.CreateDiagnosis(row); err != nil {
		return nil, o.failBuild(build.ID, fmt.Errorf("save diagnosis: %w", err))
	}

	if err := o.db.UpdateBuildStatus(build.ID, db.BuildCompleted); err != nil {
		return nil, fmt.Errorf("mark build completed: %w", err)
	}

	result := &Result{BuildID: build.ID, DiagnosisID: row.ID}

	// Notification is best effort and never affects build status.
	if profile.SlackWebhookURL != "" {
		result.Notified = o.notifier.SendDiagnosis(ctx, profile.SlackWebhookURL,
			slack.DiagnosisData{
				RootCause:     diagnosis.RootCause,
				Explanation:   diagnosis.Explanation,
				SuggestedFix:  diagnosis.SuggestedFix,
				ErrorCategory: diagnosis.Category,
			},
			slack.BuildData{
				BuildNumber:  orUnknown(build.AzureBuildNumber),
				PipelineName: pipeline.AzurePipelineName,
			})
		if !result.Notified {
			log.Printf("orchestrator: slack notification failed for build %s", build.ID)
		}
	}

	return result, nil
}

// failBuild lands a build at the failed terminal status and writes the
// fixed fallback diagnosis. No notification is sent on this path.
func (o *Orchestrator) failBuild(buildID string, cause error) error {
	log.Printf("orchestrator: diagnosis failed for build %s: %v", buildID, cause)

	if err := o.db.UpdateBuildStatus(buildID, db.BuildFailed); err != nil {
		log.Printf("orchestrator: mark build %s failed: %v", buildID, err)
	}
	fallback := &db.Diagnosis{
		BuildID:       buildID,
		ErrorCategory: "unknown",
		RootCause:     "Failed to analyze build logs",
		Explanation:   "An error occurred during the diagnosis process",
		SuggestedFix:  "Please review the build logs manually",
		Confidence:    0.0,
	}
	if err := o.db.CreateDiagnosis(fallback); err != nil {
		log.Printf("orchestrator: save fallback diagnosis for build %s: %v", buildID, err)
	}

	return fmt.Errorf("diagnosis failed: %w", cause)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
