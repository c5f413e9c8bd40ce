package repo

import (
	"context"
	"database/sql"
	"time"
)

// UpsertConfig stores the project config document as JSON.
func (r Repo) UpsertConfig(ctx context.Context, projectID, configJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json,updated_at=excluded.updated_at`,
		projectID, configJSON, now, now)
	return err
}

// GetConfig returns the stored config JSON for a project.
func (r Repo) GetConfig(ctx context.Context, projectID string) (string, error) {
	var configJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM configs WHERE project_id=?`, projectID).Scan(&configJSON)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return configJSON, nil
}

// FirstConfigProjectID returns the project id of the single stored config, if any.
func (r Repo) FirstConfigProjectID(ctx context.Context) (string, error) {
	var projectID string
	err := r.DB.QueryRowContext(ctx, `SELECT project_id FROM configs ORDER BY created_at LIMIT 1`).Scan(&projectID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return projectID, nil
}
