package db

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Build status values. A build is created pending by the webhook receiver
// and driven to a terminal status by exactly one orchestration run.
const (
	BuildPending   = "pending"
	BuildAnalyzing = "analyzing"
	BuildCompleted = "completed"
	BuildFailed    = "failed"
)

// Build result values. Only failed builds are ever recorded; successes are
// discarded at ingestion.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

// Profile holds the operator identity and upstream credentials.
type Profile struct {
	ID              string
	Email           string
	AzureDevOpsOrg  string
	AzureDevOpsPAT  string
	SlackWebhookURL string
	CreatedAt       string
}

// Pipeline is one monitored CI pipeline on the upstream platform.
// WebhookSecret is generated at registration and never updated.
type Pipeline struct {
	ID                string
	UserID            string
	AzureProjectID    string
	AzureProjectName  string
	AzurePipelineID   string
	AzurePipelineName string
	WebhookSecret     string
	IsActive          bool
	CreatedAt         string
}

// Build is one upstream build execution known to the system.
type Build struct {
	ID               string
	PipelineID       string
	AzureBuildID     string
	AzureBuildNumber string
	Status           string
	Result           string
	CreatedAt        string
}

// Diagnosis is the structured output of the two-pass analysis for a build.
// Rows are written once and never mutated; when duplicates exist for a
// build, only the most recent is surfaced.
type Diagnosis struct {
	ID            string
	BuildID       string
	ErrorCategory string
	RootCause     string
	Explanation   string
	SuggestedFix  string
	RelevantLogs  string
	Confidence    float64
	CreatedAt     string
}

// NewWebhookSecret returns a fresh high-entropy shared secret for signing
// webhook deliveries (32 random bytes, hex encoded).
func NewWebhookSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
