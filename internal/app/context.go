package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ticketflow/internal/config"
	"ticketflow/internal/repo"
)

// ResolveConfig picks the active project config, preferring the workspace
// ticketflow.yml, then the single DB-stored config, seeding defaults when
// neither exists. The resolved config is mirrored into the DB so remote
// clients see the same settings the CLI runs with.
func ResolveConfig(ctx context.Context, workspace, projectOverride string, r repo.Repo) (string, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	if cfg != nil {
		if projectOverride != "" && projectOverride != cfg.Project.ID {
			return "", nil, fmt.Errorf("--project %s conflicts with %s", projectOverride, config.Path(workspace))
		}
		if err := storeConfig(ctx, r, cfg); err != nil {
			return "", nil, err
		}
		return cfg.Project.ID, cfg, nil
	}

	projectID := projectOverride
	if projectID == "" {
		projectID, err = r.FirstConfigProjectID(ctx)
		if errors.Is(err, repo.ErrNotFound) {
			projectID = "default"
		} else if err != nil {
			return "", nil, err
		}
	}

	raw, err := r.GetConfig(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		cfg = config.Default(projectID)
		if err := storeConfig(ctx, r, cfg); err != nil {
			return "", nil, fmt.Errorf("seed config: %w", err)
		}
		return projectID, cfg, nil
	}
	if err != nil {
		return "", nil, err
	}
	cfg = &config.Config{}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return "", nil, fmt.Errorf("stored config for %s: %w", projectID, err)
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}

func storeConfig(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.UpsertConfig(ctx, cfg.Project.ID, string(data))
}
