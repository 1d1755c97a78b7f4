package app

import (
	"context"
	"errors"
	"fmt"

	"opsboard/internal/board"
	"opsboard/internal/config"
	"opsboard/internal/domain"
	"opsboard/internal/repo"
)

// ResolveProjectAndConfig picks the active project for a CLI invocation and
// ensures a project + config exist in DB, seeding defaults if missing. It
// prefers the override, then the single project in the DB. If the project
// does not exist it is created on the fly with the invoking user as owner.
func ResolveProjectAndConfig(ctx context.Context, b board.Board, projectOverride, userID string) (string, *config.Config, error) {
	projectID := projectOverride
	if projectID == "" {
		if p, err := b.Repo.SingleProject(ctx); err == nil {
			projectID = p.ID
		} else {
			return "", nil, fmt.Errorf("project not specified; use --project")
		}
	}

	if _, err := b.Repo.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if userID == "" {
			userID = "local-user"
		}
		if err := b.Repo.EnsureUser(ctx, nil, domain.User{ID: userID, Name: userID, Role: domain.RoleManager}); err != nil {
			return "", nil, err
		}
		if _, err := b.InitProject(ctx, projectID, projectID, userID); err != nil {
			return "", nil, fmt.Errorf("create project: %w", err)
		}
	}
	cfg, err := b.Repo.GetProjectConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			cfg = config.Default(projectID)
			if err := b.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
				return "", nil, fmt.Errorf("seed project config: %w", err)
			}
		} else {
			return "", nil, err
		}
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}
