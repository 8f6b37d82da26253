package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// --- Mocks ---

type mockClient struct {
	responses []string
	errs      []error
	models    []string
	prompts   []string
	idx       int
}

func (m *mockClient) Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, error) {
	m.models = append(m.models, model)
	m.prompts = append(m.prompts, prompt)
	i := m.idx
	m.idx++
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", nil
}

func newAnalyzer(client *mockClient) *Analyzer {
	return NewAnalyzer(client, "fast-model", "strong-model")
}

// --- Truncation ---

func TestTruncateLogs_UnderCap(t *testing.T) {
	logs := "short log"
	if got := truncateLogs(logs); got != logs {
		t.Errorf("truncateLogs changed a short log: %q", got)
	}
}

func TestTruncateLogs_OverCap(t *testing.T) {
	logs := strings.Repeat("x", maxLogChars+1000)
	got := truncateLogs(logs)
	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatalf("missing truncation marker")
	}
	body := strings.TrimSuffix(got, truncationMarker)
	if body != logs[:maxLogChars] {
		t.Errorf("truncated body is not exactly the first %d chars (len %d)", maxLogChars, len(body))
	}
}

func TestClassifyError_TruncatesPrompt(t *testing.T) {
	client := &mockClient{responses: []string{`{"category":"test","relevantLines":"l","confidence":0.9,"primaryError":"e"}`}}
	a := newAnalyzer(client)

	logs := strings.Repeat("y", maxLogChars+500)
	if _, err := a.ClassifyError(context.Background(), logs); err != nil {
		t.Fatalf("ClassifyError: %v", err)
	}

	want := strings.Replace(classificationPrompt, "{logs}", logs[:maxLogChars]+truncationMarker, 1)
	if client.prompts[0] != want {
		t.Errorf("classification prompt does not carry exactly the truncated log")
	}
}

// --- Classification pass ---

func TestClassifyError_Valid(t *testing.T) {
	client := &mockClient{responses: []string{
		`{"category":"dependency","relevantLines":"error NU1101","confidence":0.9,"primaryError":"package not found"}`,
	}}
	a := newAnalyzer(client)

	c, err := a.ClassifyError(context.Background(), "some log")
	if err != nil {
		t.Fatalf("ClassifyError: %v", err)
	}
	if c.Category != "dependency" || c.RelevantLines != "error NU1101" || c.Confidence != 0.9 {
		t.Errorf("unexpected classification: %+v", c)
	}
	if client.models[0] != "fast-model" {
		t.Errorf("classification used model %q", client.models[0])
	}
}

func TestClassifyError_CodeFence(t *testing.T) {
	client := &mockClient{responses: []string{
		"```json\n{\"category\":\"test\",\"relevantLines\":\"FAIL x\",\"confidence\":0.8,\"primaryError\":\"assert\"}\n```",
	}}
	a := newAnalyzer(client)

	c, err := a.ClassifyError(context.Background(), "log")
	if err != nil {
		t.Fatalf("ClassifyError: %v", err)
	}
	if c.Category != "test" {
		t.Errorf("Category = %q, want test", c.Category)
	}
}

func TestClassifyError_ParseFallback(t *testing.T) {
	logs := strings.Repeat("a", 600)
	// Run twice: the fallback must be deterministic.
	for i := 0; i < 2; i++ {
		client := &mockClient{responses: []string{"I could not produce JSON, sorry."}}
		a := newAnalyzer(client)

		c, err := a.ClassifyError(context.Background(), logs)
		if err != nil {
			t.Fatalf("ClassifyError: %v", err)
		}
		if c.Category != "unknown" {
			t.Errorf("Category = %q, want unknown", c.Category)
		}
		if c.Confidence != 0.3 {
			t.Errorf("Confidence = %v, want 0.3", c.Confidence)
		}
		if c.RelevantLines != logs[:500] {
			t.Errorf("RelevantLines is not the first 500 chars of the input")
		}
		if c.PrimaryError != "Failed to parse error" {
			t.Errorf("PrimaryError = %q", c.PrimaryError)
		}
	}
}

func TestClassifyError_MissingFieldDefaults(t *testing.T) {
	client := &mockClient{responses: []string{`{"relevantLines":"x"}`}}
	a := newAnalyzer(client)

	c, err := a.ClassifyError(context.Background(), "log")
	if err != nil {
		t.Fatalf("ClassifyError: %v", err)
	}
	if c.Category != "unknown" || c.Confidence != 0.5 || c.PrimaryError != "Unknown error" {
		t.Errorf("missing-field defaults not applied: %+v", c)
	}
}

func TestClassifyError_ModelErrorPropagates(t *testing.T) {
	wantErr := errors.New("rate limited")
	client := &mockClient{errs: []error{wantErr}}
	a := newAnalyzer(client)

	if _, err := a.ClassifyError(context.Background(), "log"); !errors.Is(err, wantErr) {
		t.Errorf("model error did not propagate: %v", err)
	}
}

// --- Diagnosis pass ---

func TestGenerateDiagnosis_Valid(t *testing.T) {
	client := &mockClient{responses: []string{
		`{"rootCause":"missing package","explanation":"the feed lacks it","suggestedFix":"dotnet add package X","confidence":0.85}`,
	}}
	a := newAnalyzer(client)

	d, err := a.GenerateDiagnosis(context.Background(), "dependency", "error NU1101")
	if err != nil {
		t.Fatalf("GenerateDiagnosis: %v", err)
	}
	if d.RootCause != "missing package" || d.Confidence != 0.85 {
		t.Errorf("unexpected diagnosis: %+v", d)
	}
	if client.models[0] != "strong-model" {
		t.Errorf("diagnosis used model %q", client.models[0])
	}
	if !strings.Contains(client.prompts[0], "A dependency error occurred") {
		t.Errorf("diagnosis prompt missing category substitution")
	}
	if !strings.Contains(client.prompts[0], "error NU1101") {
		t.Errorf("diagnosis prompt missing relevant lines")
	}
}

func TestGenerateDiagnosis_ParseFallback(t *testing.T) {
	client := &mockClient{responses: []string{"not json"}}
	a := newAnalyzer(client)

	d, err := a.GenerateDiagnosis(context.Background(), "test", "lines")
	if err != nil {
		t.Fatalf("GenerateDiagnosis: %v", err)
	}
	want := Diagnosis{
		RootCause:    "Unable to parse diagnosis",
		Explanation:  "The AI response could not be parsed",
		SuggestedFix: "Please review the build logs manually",
		Confidence:   0.2,
	}
	if *d != want {
		t.Errorf("fallback diagnosis = %+v, want %+v", *d, want)
	}
}

func TestGenerateDiagnosis_ModelErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection refused")
	client := &mockClient{errs: []error{wantErr}}
	a := newAnalyzer(client)

	if _, err := a.GenerateDiagnosis(context.Background(), "test", "lines"); !errors.Is(err, wantErr) {
		t.Errorf("model error did not propagate: %v", err)
	}
}

// --- Two-pass flow ---

func TestDiagnoseBuild_MergesPasses(t *testing.T) {
	client := &mockClient{responses: []string{
		`{"category":"dependency","relevantLines":"error NU1101","confidence":0.9,"primaryError":"pkg"}`,
		`{"rootCause":"rc","explanation":"ex","suggestedFix":"fix","confidence":0.7}`,
	}}
	a := newAnalyzer(client)

	full, err := a.DiagnoseBuild(context.Background(), "log text")
	if err != nil {
		t.Fatalf("DiagnoseBuild: %v", err)
	}
	if full.Category != "dependency" || full.RootCause != "rc" {
		t.Errorf("merge lost fields: %+v", full)
	}
	// Per-pass confidences stay independent.
	if full.Classification.Confidence != 0.9 || full.Diagnosis.Confidence != 0.7 {
		t.Errorf("confidences were aggregated: %+v", full)
	}
	// Pass 2 consumes pass 1's output.
	if !strings.Contains(client.prompts[1], "error NU1101") {
		t.Errorf("diagnosis pass did not receive the classified excerpt")
	}
}

func TestDiagnoseBuild_SecondPassErrorPropagates(t *testing.T) {
	wantErr := errors.New("overloaded")
	client := &mockClient{
		responses: []string{`{"category":"test","relevantLines":"l","confidence":0.9,"primaryError":"e"}`, ""},
		errs:      []error{nil, wantErr},
	}
	a := newAnalyzer(client)

	if _, err := a.DiagnoseBuild(context.Background(), "log"); !errors.Is(err, wantErr) {
		t.Errorf("second-pass error did not propagate: %v", err)
	}
}

// --- cleanJSON ---

func TestCleanJSON_BareJSON(t *testing.T) {
	got := cleanJSON([]byte(`{"category":"test"}`))
	if string(got) != `{"category":"test"}` {
		t.Errorf("cleanJSON = %s", got)
	}
}

func TestCleanJSON_MarkdownCodeFence(t *testing.T) {
	got := cleanJSON([]byte("```json\n{\"category\":\"test\"}\n```"))
	if string(got) != `{"category":"test"}` {
		t.Errorf("cleanJSON = %s, want bare JSON", got)
	}
}

func TestCleanJSON_MarkdownNoLang(t *testing.T) {
	got := cleanJSON([]byte("```\n{\"key\":\"value\"}\n```"))
	if string(got) != `{"key":"value"}` {
		t.Errorf("cleanJSON = %s", got)
	}
}

func TestCleanJSON_WhitespaceWrapped(t *testing.T) {
	got := cleanJSON([]byte("  \n  {\"key\":\"value\"}  \n  "))
	if string(got) != `{"key":"value"}` {
		t.Errorf("cleanJSON = %s", got)
	}
}

func TestCleanJSON_EmptyInput(t *testing.T) {
	if got := cleanJSON([]byte("")); len(got) != 0 {
		t.Errorf("cleanJSON on empty input returned: %s", got)
	}
}
