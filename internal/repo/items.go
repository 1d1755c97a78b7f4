package repo

import (
	"context"
	"database/sql"
	"fmt"

	"opsboard/internal/domain"
)

// Placement is the slice of an item the move operation cares about.
type Placement struct {
	Kind      domain.ItemKind
	ID        string
	ProjectID string
	StageID   *string
	Status    string
	Notes     string
}

func itemTable(kind domain.ItemKind) (string, error) {
	switch kind {
	case domain.KindTask:
		return "tasks", nil
	case domain.KindIncident:
		return "incidents", nil
	case domain.KindResourceRequest:
		return "resource_requests", nil
	}
	return "", fmt.Errorf("unknown item kind %q", kind)
}

// GetPlacementTx fetches an item's placement by (id, project). The project
// constraint in the WHERE clause is what scopes lookups: an id that exists
// under another project reads as absent.
func (r Repo) GetPlacementTx(ctx context.Context, tx *sql.Tx, kind domain.ItemKind, projectID, itemID string) (Placement, error) {
	table, err := itemTable(kind)
	if err != nil {
		return Placement{}, err
	}
	p := Placement{Kind: kind}
	var stageID, notes sql.NullString
	query := fmt.Sprintf(`SELECT id, project_id, stage_id, status FROM %s WHERE id=? AND project_id=?`, table)
	if kind == domain.KindResourceRequest {
		query = `SELECT id, project_id, stage_id, status, notes FROM resource_requests WHERE id=? AND project_id=?`
		err = tx.QueryRowContext(ctx, query, itemID, projectID).Scan(&p.ID, &p.ProjectID, &stageID, &p.Status, &notes)
	} else {
		err = tx.QueryRowContext(ctx, query, itemID, projectID).Scan(&p.ID, &p.ProjectID, &stageID, &p.Status)
	}
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if stageID.Valid {
		p.StageID = &stageID.String
	}
	if notes.Valid {
		p.Notes = notes.String
	}
	return p, nil
}

// SetStageTx updates an item's stage pointer (nil detaches it) and bumps
// updated_at.
func (r Repo) SetStageTx(ctx context.Context, tx *sql.Tx, kind domain.ItemKind, itemID string, stageID *string, now string) error {
	table, err := itemTable(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET stage_id=?, updated_at=? WHERE id=?`, table)
	res, err := tx.ExecContext(ctx, query, nullableStringPtr(stageID), now, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- tasks ---

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,stage_id,title,description,status,assignee_id,due_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullableStringPtr(t.StageID), t.Title, nullable(t.Description), t.Status,
		nullableStringPtr(t.AssigneeID), nullableStringPtr(t.DueDate), t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var stageID, desc, assignee, due sql.NullString
	err := row.Scan(&t.ID, &t.ProjectID, &stageID, &t.Title, &desc, &t.Status, &assignee, &due, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if stageID.Valid {
		t.StageID = &stageID.String
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	if due.Valid {
		t.DueDate = &due.String
	}
	return t, nil
}

const taskCols = `id,project_id,stage_id,title,description,status,assignee_id,due_date,created_at,updated_at`

func (r Repo) GetTask(ctx context.Context, projectID, id string) (domain.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=? AND project_id=?`, id, projectID))
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, projectID, id, status, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=? AND project_id=?`, status, now, id, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- incidents ---

func (r Repo) InsertIncident(ctx context.Context, tx *sql.Tx, in domain.Incident) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO incidents(id,project_id,stage_id,title,description,status,reporter_id,assignee_id,related_task_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.ProjectID, nullableStringPtr(in.StageID), in.Title, nullable(in.Description), in.Status,
		in.ReporterID, nullableStringPtr(in.AssigneeID), nullableStringPtr(in.RelatedTaskID), in.CreatedAt, in.UpdatedAt)
	return err
}

func scanIncident(row interface{ Scan(...any) error }) (domain.Incident, error) {
	var in domain.Incident
	var stageID, desc, assignee, related sql.NullString
	err := row.Scan(&in.ID, &in.ProjectID, &stageID, &in.Title, &desc, &in.Status, &in.ReporterID, &assignee, &related, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return in, err
	}
	if stageID.Valid {
		in.StageID = &stageID.String
	}
	if desc.Valid {
		in.Description = desc.String
	}
	if assignee.Valid {
		in.AssigneeID = &assignee.String
	}
	if related.Valid {
		in.RelatedTaskID = &related.String
	}
	return in, nil
}

const incidentCols = `id,project_id,stage_id,title,description,status,reporter_id,assignee_id,related_task_id,created_at,updated_at`

func (r Repo) GetIncident(ctx context.Context, projectID, id string) (domain.Incident, error) {
	in, err := scanIncident(r.DB.QueryRowContext(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id=? AND project_id=?`, id, projectID))
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	return in, err
}

func (r Repo) ListIncidents(ctx context.Context, projectID string) ([]domain.Incident, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+incidentCols+` FROM incidents WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Incident
	for rows.Next() {
		in, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIncidentStatus(ctx context.Context, tx *sql.Tx, projectID, id, status, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE incidents SET status=?, updated_at=? WHERE id=? AND project_id=?`, status, now, id, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- resource requests ---

func (r Repo) InsertResourceRequest(ctx context.Context, tx *sql.Tx, rr domain.ResourceRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO resource_requests(id,project_id,stage_id,title,requester_id,approver_id,task_id,incident_id,status,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		rr.ID, rr.ProjectID, nullableStringPtr(rr.StageID), nullable(rr.Title), rr.RequesterID,
		nullableStringPtr(rr.ApproverID), nullableStringPtr(rr.TaskID), nullableStringPtr(rr.IncidentID),
		rr.Status, nullable(rr.Notes), rr.CreatedAt, rr.UpdatedAt)
	return err
}

func scanResourceRequest(row interface{ Scan(...any) error }) (domain.ResourceRequest, error) {
	var rr domain.ResourceRequest
	var stageID, title, approver, taskID, incidentID, notes sql.NullString
	err := row.Scan(&rr.ID, &rr.ProjectID, &stageID, &title, &rr.RequesterID, &approver, &taskID, &incidentID, &rr.Status, &notes, &rr.CreatedAt, &rr.UpdatedAt)
	if err != nil {
		return rr, err
	}
	if stageID.Valid {
		rr.StageID = &stageID.String
	}
	if title.Valid {
		rr.Title = title.String
	}
	if approver.Valid {
		rr.ApproverID = &approver.String
	}
	if taskID.Valid {
		rr.TaskID = &taskID.String
	}
	if incidentID.Valid {
		rr.IncidentID = &incidentID.String
	}
	if notes.Valid {
		rr.Notes = notes.String
	}
	return rr, nil
}

const requestCols = `id,project_id,stage_id,title,requester_id,approver_id,task_id,incident_id,status,notes,created_at,updated_at`

func (r Repo) GetResourceRequest(ctx context.Context, projectID, id string) (domain.ResourceRequest, error) {
	rr, err := scanResourceRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestCols+` FROM resource_requests WHERE id=? AND project_id=?`, id, projectID))
	if err == sql.ErrNoRows {
		return rr, ErrNotFound
	}
	return rr, err
}

func (r Repo) ListResourceRequests(ctx context.Context, projectID string) ([]domain.ResourceRequest, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestCols+` FROM resource_requests WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ResourceRequest
	for rows.Next() {
		rr, err := scanResourceRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rr)
	}
	return res, rows.Err()
}

func (r Repo) UpdateResourceRequestStatus(ctx context.Context, tx *sql.Tx, projectID, id, status string, approverID *string, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE resource_requests SET status=?, approver_id=COALESCE(?, approver_id), updated_at=? WHERE id=? AND project_id=?`,
		status, nullableStringPtr(approverID), now, id, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
