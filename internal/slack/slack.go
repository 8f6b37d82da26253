// Package slack posts diagnosis summaries to an incoming-webhook URL.
// Notification is best effort: every error is swallowed to a boolean so a
// chat outage can never affect a build's lifecycle.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// DiagnosisData is the summary included in a notification.
type DiagnosisData struct {
	RootCause     string
	Explanation   string
	SuggestedFix  string
	ErrorCategory string
}

// BuildData identifies the failed build in the message header.
type BuildData struct {
	BuildNumber  string
	PipelineName string
}

// Notifier sends messages to Slack-compatible webhook endpoints.
type Notifier struct {
	HTTP *http.Client
}

// NewNotifier creates a Notifier with a default HTTP client.
func NewNotifier() *Notifier {
	return &Notifier{HTTP: &http.Client{Timeout: 15 * time.Second}}
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type block struct {
	Type   string       `json:"type"`
	Text   *textObject  `json:"text,omitempty"`
	Fields []textObject `json:"fields,omitempty"`
}

// SendDiagnosis posts a structured diagnosis summary. Returns false on any
// transport or HTTP error; never returns an error past its boundary.
func (n *Notifier) SendDiagnosis(ctx context.Context, webhookURL string, diagnosis DiagnosisData, build BuildData) bool {
	blocks := []block{
		{
			Type: "header",
			Text: &textObject{
				Type: "plain_text",
				Text: fmt.Sprintf("🔴 Build #%s Failed — %s", build.BuildNumber, build.PipelineName),
			},
		},
		{
			Type: "section",
			Fields: []textObject{
				{Type: "mrkdwn", Text: "*Category:*\n" + diagnosis.ErrorCategory},
				{Type: "mrkdwn", Text: "*Root Cause:*\n" + diagnosis.RootCause},
			},
		},
		{
			Type: "section",
			Text: &textObject{Type: "mrkdwn", Text: "*Explanation:*\n" + diagnosis.Explanation},
		},
		{
			Type: "section",
			Text: &textObject{Type: "mrkdwn", Text: fmt.Sprintf("*Suggested Fix:*\n```%s```", diagnosis.SuggestedFix)},
		},
	}

	return n.post(ctx, webhookURL, map[string]any{"blocks": blocks})
}

// SendTestMessage posts the fixed connectivity-test message used during setup.
func (n *Notifier) SendTestMessage(ctx context.Context, webhookURL string) bool {
	return n.post(ctx, webhookURL, map[string]string{"text": "✅ BuildDoctor connected!"})
}

func (n *Notifier) post(ctx context.Context, webhookURL string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("slack: marshal payload: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("slack: create request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTP.Do(req)
	if err != nil {
		log.Printf("slack: send notification: %v", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
