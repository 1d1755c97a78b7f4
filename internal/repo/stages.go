package repo

import (
	"context"
	"database/sql"

	"opsboard/internal/domain"
)

// StageWithCounts carries the board-listing annotation. Resource requests
// are not counted; the console never has.
type StageWithCounts struct {
	domain.Stage
	TaskCount     int
	IncidentCount int
}

// NextStageOrderTx computes max(ord)+1 for (project, stageType) inside the
// caller's transaction so concurrent creates cannot race to the same slot.
func (r Repo) NextStageOrderTx(ctx context.Context, tx *sql.Tx, projectID, stageType string) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ord)+1, 0) FROM stages WHERE project_id=? AND stage_type=?`, projectID, stageType)
	var ord int
	err := row.Scan(&ord)
	return ord, err
}

func (r Repo) InsertStage(ctx context.Context, tx *sql.Tx, s domain.Stage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stages(id,project_id,name,color,ord,stage_type,created_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, nullable(s.Color), s.Order, s.StageType, s.CreatedAt)
	return err
}

func (r Repo) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	var s domain.Stage
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,color,ord,stage_type,created_at FROM stages WHERE id=?`, id).
		Scan(&s.ID, &s.ProjectID, &s.Name, &color, &s.Order, &s.StageType, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if color.Valid {
		s.Color = color.String
	}
	return s, err
}

// GetStageScopedTx loads a stage by id constrained to one project and stage
// type. A stage from another project or of another type reads as absent,
// which is what makes cross-project and cross-type placement impossible.
func (r Repo) GetStageScopedTx(ctx context.Context, tx *sql.Tx, id, projectID, stageType string) (domain.Stage, error) {
	var s domain.Stage
	var color sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,project_id,name,color,ord,stage_type,created_at FROM stages WHERE id=? AND project_id=? AND stage_type=?`,
		id, projectID, stageType).
		Scan(&s.ID, &s.ProjectID, &s.Name, &color, &s.Order, &s.StageType, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if color.Valid {
		s.Color = color.String
	}
	return s, err
}

// ListStages returns a project's stages ascending by order, each annotated
// with attached task and incident counts. stageType filters when non-empty.
func (r Repo) ListStages(ctx context.Context, projectID, stageType string) ([]StageWithCounts, error) {
	query := `SELECT s.id, s.project_id, s.name, s.color, s.ord, s.stage_type, s.created_at,
	(SELECT count(*) FROM tasks t WHERE t.stage_id=s.id) AS task_count,
	(SELECT count(*) FROM incidents i WHERE i.stage_id=s.id) AS incident_count
FROM stages s WHERE s.project_id=?`
	args := []any{projectID}
	if stageType != "" {
		query += ` AND s.stage_type=?`
		args = append(args, stageType)
	}
	query += ` ORDER BY s.ord ASC, s.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []StageWithCounts
	for rows.Next() {
		var s StageWithCounts
		var color sql.NullString
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &color, &s.Order, &s.StageType, &s.CreatedAt, &s.TaskCount, &s.IncidentCount); err != nil {
			return nil, err
		}
		if color.Valid {
			s.Color = color.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
