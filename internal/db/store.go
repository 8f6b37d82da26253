package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// --- Profiles ---

// CreateProfile inserts a profile. ID and CreatedAt are filled in if unset.
func (d *DB) CreateProfile(p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = nowRFC3339()
	}
	_, err := d.conn.Exec(
		`INSERT INTO profiles (id, email, azure_devops_org, azure_devops_pat, slack_webhook_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Email, p.AzureDevOpsOrg, p.AzureDevOpsPAT, p.SlackWebhookURL, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// UpdateProfile rewrites the mutable fields of a profile.
func (d *DB) UpdateProfile(p *Profile) error {
	res, err := d.conn.Exec(
		`UPDATE profiles SET email = $1, azure_devops_org = $2, azure_devops_pat = $3, slack_webhook_url = $4
		 WHERE id = $5`,
		p.Email, p.AzureDevOpsOrg, p.AzureDevOpsPAT, p.SlackWebhookURL, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

const profileCols = `id, COALESCE(email,''), COALESCE(azure_devops_org,''),
	COALESCE(azure_devops_pat,''), COALESCE(slack_webhook_url,''), created_at`

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.AzureDevOpsOrg, &p.AzureDevOpsPAT, &p.SlackWebhookURL, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

// GetProfile returns the profile with the given id.
func (d *DB) GetProfile(id string) (*Profile, error) {
	return scanProfile(d.conn.QueryRow(
		`SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
}

// DefaultProfile returns the instance's operator profile (the oldest one).
// The auth layer is an external collaborator; a deployed instance serves a
// single operator.
func (d *DB) DefaultProfile() (*Profile, error) {
	return scanProfile(d.conn.QueryRow(
		`SELECT ` + profileCols + ` FROM profiles ORDER BY created_at, id LIMIT 1`))
}

// --- Pipelines ---

// CreatePipeline inserts a pipeline registration.
func (d *DB) CreatePipeline(p *Pipeline) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = nowRFC3339()
	}
	_, err := d.conn.Exec(
		`INSERT INTO pipelines (id, user_id, azure_project_id, azure_project_name,
		                        azure_pipeline_id, azure_pipeline_name, webhook_secret, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.AzureProjectID, p.AzureProjectName,
		p.AzurePipelineID, p.AzurePipelineName, p.WebhookSecret, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

const pipelineCols = `id, user_id, azure_project_id, azure_project_name,
	azure_pipeline_id, azure_pipeline_name, webhook_secret, is_active, created_at`

func scanPipeline(row *sql.Row) (*Pipeline, error) {
	var p Pipeline
	err := row.Scan(&p.ID, &p.UserID, &p.AzureProjectID, &p.AzureProjectName,
		&p.AzurePipelineID, &p.AzurePipelineName, &p.WebhookSecret, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	return &p, nil
}

// GetPipeline returns the pipeline with the given id.
func (d *DB) GetPipeline(id string) (*Pipeline, error) {
	return scanPipeline(d.conn.QueryRow(
		`SELECT `+pipelineCols+` FROM pipelines WHERE id = $1`, id))
}

// FindActivePipeline resolves an inbound event's upstream definition id to
// a registered pipeline. Inactive pipelines never match.
func (d *DB) FindActivePipeline(azurePipelineID string) (*Pipeline, error) {
	return scanPipeline(d.conn.QueryRow(
		`SELECT `+pipelineCols+` FROM pipelines
		 WHERE azure_pipeline_id = $1 AND is_active
		 ORDER BY created_at LIMIT 1`, azurePipelineID))
}

// ListPipelines returns all registered pipelines, oldest first.
func (d *DB) ListPipelines() ([]Pipeline, error) {
	rows, err := d.conn.Query(`SELECT ` + pipelineCols + ` FROM pipelines ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []Pipeline
	for rows.Next() {
		var p Pipeline
		if err := rows.Scan(&p.ID, &p.UserID, &p.AzureProjectID, &p.AzureProjectName,
			&p.AzurePipelineID, &p.AzurePipelineName, &p.WebhookSecret, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

// SetPipelineActive toggles whether a pipeline accepts events.
func (d *DB) SetPipelineActive(id string, active bool) error {
	res, err := d.conn.Exec(`UPDATE pipelines SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Builds ---

// CreateBuild inserts a build row.
func (d *DB) CreateBuild(b *Build) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt == "" {
		b.CreatedAt = nowRFC3339()
	}
	_, err := d.conn.Exec(
		`INSERT INTO builds (id, pipeline_id, azure_build_id, azure_build_number, status, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.PipelineID, b.AzureBuildID, b.AzureBuildNumber, b.Status, b.Result, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// GetBuild returns the build with the given id.
func (d *DB) GetBuild(id string) (*Build, error) {
	var b Build
	err := d.conn.QueryRow(
		`SELECT id, pipeline_id, azure_build_id, COALESCE(azure_build_number,''), status, result, created_at
		 FROM builds WHERE id = $1`, id,
	).Scan(&b.ID, &b.PipelineID, &b.AzureBuildID, &b.AzureBuildNumber, &b.Status, &b.Result, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan build: %w", err)
	}
	return &b, nil
}

// UpdateBuildStatus transitions a build's lifecycle status.
func (d *DB) UpdateBuildStatus(id, status string) error {
	res, err := d.conn.Exec(`UPDATE builds SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update build status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("build %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Diagnoses ---

// CreateDiagnosis inserts a diagnosis row. Diagnoses are immutable once written.
func (d *DB) CreateDiagnosis(dg *Diagnosis) error {
	if dg.ID == "" {
		dg.ID = uuid.NewString()
	}
	if dg.CreatedAt == "" {
		dg.CreatedAt = nowRFC3339()
	}
	_, err := d.conn.Exec(
		`INSERT INTO diagnoses (id, build_id, error_category, root_cause, explanation,
		                        suggested_fix, relevant_logs, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		dg.ID, dg.BuildID, dg.ErrorCategory, dg.RootCause, dg.Explanation,
		dg.SuggestedFix, dg.RelevantLogs, dg.Confidence, dg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	return nil
}

// LatestDiagnosis returns the most recent diagnosis for a build. The store
// permits multiple rows per build; only the newest is ever surfaced.
func (d *DB) LatestDiagnosis(buildID string) (*Diagnosis, error) {
	var dg Diagnosis
	err := d.conn.QueryRow(
		`SELECT id, build_id, COALESCE(error_category,''), COALESCE(root_cause,''),
		        COALESCE(explanation,''), COALESCE(suggested_fix,''), COALESCE(relevant_logs,''),
		        COALESCE(confidence,0), created_at
		 FROM diagnoses WHERE build_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`, buildID,
	).Scan(&dg.ID, &dg.BuildID, &dg.ErrorCategory, &dg.RootCause,
		&dg.Explanation, &dg.SuggestedFix, &dg.RelevantLogs, &dg.Confidence, &dg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan diagnosis: %w", err)
	}
	return &dg, nil
}
