package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/lucasnoah/builddoctor/internal/db"
)

// buildEvent is the subset of an Azure DevOps build.complete event the
// receiver cares about. Numeric identifiers arrive as JSON numbers from
// the platform but as strings from some proxies, so they are normalized
// through flexString.
type buildEvent struct {
	EventType string `json:"eventType"`
	Resource  struct {
		Result      string     `json:"result"`
		ID          flexString `json:"id"`
		BuildNumber flexString `json:"buildNumber"`
		Project     struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"project"`
		Definition struct {
			ID   flexString `json:"id"`
			Name string     `json:"name"`
		} `json:"definition"`
	} `json:"resource"`
}

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// handleWebhook ingests build.complete events. The upstream platform
// retries delivery on non-2xx responses, so every path acknowledges with
// 200, internal errors included. The only rejection is a signature
// mismatch, which is safe to retry because no build row was created.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ack := func() { writeJSON(w, http.StatusOK, map[string]bool{"received": true}) }

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("webhook: read body: %v", err)
		ack()
		return
	}

	var event buildEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("webhook: parse event: %v", err)
		ack()
		return
	}

	// Only failed build completions carry work.
	if event.EventType != "build.complete" || event.Resource.Result != "failed" {
		ack()
		return
	}

	buildID := string(event.Resource.ID)
	pipelineID := string(event.Resource.Definition.ID)
	if buildID == "" || pipelineID == "" {
		ack()
		return
	}

	pipeline, err := s.db.FindActivePipeline(pipelineID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("webhook: resolve pipeline %s: %v", pipelineID, err)
		} else {
			log.Printf("webhook: no active pipeline for definition %s", pipelineID)
		}
		ack()
		return
	}

	// Verify the HMAC signature when one was sent. Deliveries without a
	// signature header are still accepted for backward compatibility with
	// hooks registered before secrets existed.
	signature := r.Header.Get("X-Hub-Signature")
	if signature != "" && pipeline.WebhookSecret != "" {
		if !verifySignature(body, signature, pipeline.WebhookSecret) {
			log.Printf("webhook: invalid signature for pipeline %s", pipeline.ID)
			writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	build := &db.Build{
		PipelineID:       pipeline.ID,
		AzureBuildID:     buildID,
		AzureBuildNumber: string(event.Resource.BuildNumber),
		Status:           db.BuildPending,
		Result:           db.ResultFailed,
	}
	if err := s.db.CreateBuild(build); err != nil {
		log.Printf("webhook: create build: %v", err)
		ack()
		return
	}

	s.diagnoseAsync(build.ID)
	ack()
}

// verifySignature compares the provided signature (hex HMAC-SHA256 of the
// raw body, optionally prefixed "sha256=") against the pipeline secret in
// constant time.
func verifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	provided := strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(expected), []byte(provided))
}
