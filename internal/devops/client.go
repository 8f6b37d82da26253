// Package devops is the REST client for the upstream Azure DevOps
// platform: project/pipeline discovery, build log retrieval, and service
// hook management.
package devops

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const apiVersion = "7.0"

// Project is an Azure DevOps project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Pipeline is a build definition within a project.
type Pipeline struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client talks to Azure DevOps on behalf of one organization, authenticated
// with a personal access token.
type Client struct {
	Org     string
	PAT     string
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the given organization and token.
func NewClient(org, pat string) *Client {
	return &Client{
		Org:     org,
		PAT:     pat,
		BaseURL: "https://dev.azure.com",
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+c.PAT))
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	return c.HTTP.Do(req)
}

// TestConnection reports whether the organization is reachable with the
// configured token.
func (c *Client) TestConnection(ctx context.Context) bool {
	resp, err := c.get(ctx, fmt.Sprintf("/%s/_apis/projects?api-version=%s", c.Org, apiVersion))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// valueList is the envelope Azure DevOps wraps every collection in.
type valueList[T any] struct {
	Value []T `json:"value"`
}

func getList[T any](c *Client, ctx context.Context, path string) ([]T, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	var list valueList[T]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return list.Value, nil
}

// Projects lists the organization's projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	projects, err := getList[Project](c, ctx, fmt.Sprintf("/%s/_apis/projects?api-version=%s", c.Org, apiVersion))
	if err != nil {
		return nil, fmt.Errorf("fetch projects: %w", err)
	}
	return projects, nil
}

// Pipelines lists the build definitions of a project.
func (c *Client) Pipelines(ctx context.Context, project string) ([]Pipeline, error) {
	pipelines, err := getList[Pipeline](c, ctx,
		fmt.Sprintf("/%s/%s/_apis/pipelines?api-version=%s", c.Org, url.PathEscape(project), apiVersion))
	if err != nil {
		return nil, fmt.Errorf("fetch pipelines: %w", err)
	}
	return pipelines, nil
}

type logHandle struct {
	ID int `json:"id"`
}

// BuildLogs retrieves the full log text of a build. A build has one log
// stream per step; streams are downloaded concurrently and joined with
// newlines in stream order. A stream that fails to download degrades to an
// empty string rather than failing the whole fetch.
func (c *Client) BuildLogs(ctx context.Context, projectID, buildID string) (string, error) {
	handles, err := getList[logHandle](c, ctx,
		fmt.Sprintf("/%s/%s/_apis/build/builds/%s/logs?api-version=%s",
			c.Org, url.PathEscape(projectID), url.PathEscape(buildID), apiVersion))
	if err != nil {
		return "", fmt.Errorf("fetch build logs: %w", err)
	}

	contents := make([]string, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			resp, err := c.get(gctx, fmt.Sprintf("/%s/%s/_apis/build/builds/%s/logs/%d?api-version=%s",
				c.Org, url.PathEscape(projectID), url.PathEscape(buildID), h.ID, apiVersion))
			if err != nil {
				return nil
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil
			}
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil
			}
			contents[i] = string(data)
			return nil
		})
	}
	_ = g.Wait()

	return strings.Join(contents, "\n"), nil
}

// CreateServiceHook subscribes this instance to build.complete events for
// one pipeline. Azure DevOps does not compute an HMAC itself; the secret
// rides along as the X-Hub-Signature header and the webhook receiver
// verifies it against the stored pipeline secret.
func (c *Client) CreateServiceHook(ctx context.Context, projectID, pipelineID, webhookURL, secret string) (string, error) {
	headers, err := json.Marshal(map[string]string{"X-Hub-Signature": secret})
	if err != nil {
		return "", fmt.Errorf("marshal headers: %w", err)
	}

	subscription := map[string]any{
		"publisherId":      "tfs",
		"eventType":        "build.complete",
		"resourceVersion":  "1.0",
		"consumerId":       "webHooks",
		"consumerActionId": "httpRequest",
		"consumerInputs": map[string]string{
			"url":         webhookURL,
			"httpHeaders": string(headers),
		},
		"publisherInputs": map[string]string{
			"projectId":    projectID,
			"definitionId": pipelineID,
		},
	}

	body, err := json.Marshal(subscription)
	if err != nil {
		return "", fmt.Errorf("marshal subscription: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s/_apis/hooks/subscriptions?api-version=%s", c.BaseURL, c.Org, apiVersion),
		bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("create service hook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create service hook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode subscription response: %w", err)
	}
	return created.ID, nil
}
