package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// maxLogChars caps the log text sent to the classification pass so it fits
// the model's input limits.
const maxLogChars = 50000

const truncationMarker = "\n\n... (logs truncated)"

// Categories the classification pass may assign.
var Categories = []string{
	"compilation", "dependency", "test", "deployment",
	"configuration", "permission", "timeout", "unknown",
}

const classificationPrompt = `You are an expert CI/CD engineer specialized in Azure DevOps and .NET.

Analyze this build log and:
1. Identify the PRIMARY error category
2. Extract the 20-50 most relevant lines containing the actual error
3. Rate your confidence (0-1)

Categories: compilation, dependency, test, deployment, configuration, permission, timeout, unknown

BUILD LOG:
{logs}

Respond in JSON only:
{"category": "string", "relevantLines": "string", "confidence": 0.0, "primaryError": "one-line summary"}`

const diagnosisPrompt = `You are an expert .NET/Azure DevOps engineer. A {category} error occurred.

ERROR CONTEXT:
{relevantLines}

Provide:
1. Root Cause: What specifically caused this (1-2 sentences, be specific)
2. Explanation: Why this happened (2-3 sentences, simple terms)
3. Suggested Fix: Exact commands or code to fix it (copy-paste ready)

Respond in JSON only:
{"rootCause": "string", "explanation": "string", "suggestedFix": "string", "confidence": 0.0}`

// Classification is the output of the first pass.
type Classification struct {
	Category      string  `json:"category"`
	RelevantLines string  `json:"relevantLines"`
	Confidence    float64 `json:"confidence"`
	PrimaryError  string  `json:"primaryError"`
}

// Diagnosis is the output of the second pass.
type Diagnosis struct {
	RootCause    string  `json:"rootCause"`
	Explanation  string  `json:"explanation"`
	SuggestedFix string  `json:"suggestedFix"`
	Confidence   float64 `json:"confidence"`
}

// FullDiagnosis merges both passes. The diagnosis pass's confidence is the
// authoritative one for persistence.
type FullDiagnosis struct {
	Classification
	Diagnosis
}

// Analyzer runs the two-pass analysis: a fast model classifies the failure
// and extracts the relevant excerpt, then a stronger model synthesizes root
// cause, explanation, and fix from that excerpt.
type Analyzer struct {
	client        Client
	classifyModel string
	diagnoseModel string
}

// NewAnalyzer creates an Analyzer using the given model service client.
func NewAnalyzer(client Client, classifyModel, diagnoseModel string) *Analyzer {
	return &Analyzer{
		client:        client,
		classifyModel: classifyModel,
		diagnoseModel: diagnoseModel,
	}
}

// truncateLogs caps log text at maxLogChars, appending an explicit marker
// when anything was cut.
func truncateLogs(logs string) string {
	if len(logs) <= maxLogChars {
		return logs
	}
	return logs[:maxLogChars] + truncationMarker
}

// ClassifyError runs the classification pass. A failing model call
// propagates as an error; unparseable model output is recovered locally
// with a deterministic fallback and never fails the run.
func (a *Analyzer) ClassifyError(ctx context.Context, logs string) (*Classification, error) {
	prompt := strings.Replace(classificationPrompt, "{logs}", truncateLogs(logs), 1)

	text, err := a.client.Complete(ctx, a.classifyModel, 1024, prompt)
	if err != nil {
		return nil, fmt.Errorf("classification pass: %w", err)
	}

	var c Classification
	if err := json.Unmarshal(cleanJSON([]byte(text)), &c); err != nil {
		return &Classification{
			Category:      "unknown",
			RelevantLines: firstN(logs, 500),
			Confidence:    0.3,
			PrimaryError:  "Failed to parse error",
		}, nil
	}

	if c.Category == "" {
		c.Category = "unknown"
	}
	if c.Confidence == 0 {
		c.Confidence = 0.5
	}
	if c.PrimaryError == "" {
		c.PrimaryError = "Unknown error"
	}
	return &c, nil
}

// GenerateDiagnosis runs the diagnosis pass over the classified excerpt.
// Same parse-with-fallback discipline as ClassifyError.
func (a *Analyzer) GenerateDiagnosis(ctx context.Context, category, relevantLines string) (*Diagnosis, error) {
	prompt := strings.Replace(diagnosisPrompt, "{category}", category, 1)
	prompt = strings.Replace(prompt, "{relevantLines}", relevantLines, 1)

	text, err := a.client.Complete(ctx, a.diagnoseModel, 2048, prompt)
	if err != nil {
		return nil, fmt.Errorf("diagnosis pass: %w", err)
	}

	var d Diagnosis
	if err := json.Unmarshal(cleanJSON([]byte(text)), &d); err != nil {
		return &Diagnosis{
			RootCause:    "Unable to parse diagnosis",
			Explanation:  "The AI response could not be parsed",
			SuggestedFix: "Please review the build logs manually",
			Confidence:   0.2,
		}, nil
	}

	if d.RootCause == "" {
		d.RootCause = "Unable to determine root cause"
	}
	if d.Explanation == "" {
		d.Explanation = "Error analysis failed"
	}
	if d.SuggestedFix == "" {
		d.SuggestedFix = "Please check the logs manually"
	}
	if d.Confidence == 0 {
		d.Confidence = 0.5
	}
	return &d, nil
}

// DiagnoseBuild runs both passes in sequence. The passes are inherently
// sequential: the second consumes the first's category and excerpt.
func (a *Analyzer) DiagnoseBuild(ctx context.Context, logs string) (*FullDiagnosis, error) {
	classification, err := a.ClassifyError(ctx, logs)
	if err != nil {
		return nil, err
	}

	diagnosis, err := a.GenerateDiagnosis(ctx, classification.Category, classification.RelevantLines)
	if err != nil {
		return nil, err
	}

	return &FullDiagnosis{
		Classification: *classification,
		Diagnosis:      *diagnosis,
	}, nil
}

// cleanJSON strips markdown code fences and leading/trailing whitespace
// from model responses. Models often wrap JSON in ```json ... ``` blocks.
func cleanJSON(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if len(s) == 0 {
		return s
	}

	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		if bytes.HasSuffix(s, []byte("```")) {
			s = s[:len(s)-3]
		}
		s = bytes.TrimSpace(s)
	}

	return s
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
