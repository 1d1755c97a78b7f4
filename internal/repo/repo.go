package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsboard/internal/config"
	"opsboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- users ---

func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if u.ID == "" {
		return errors.New("user id required")
	}
	if u.Role == "" {
		u.Role = domain.RoleEmployee
	}
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT OR IGNORE INTO users(id,name,role,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Name, u.Role, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,role,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,role,created_at FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,owner_id,created_by,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, p.OwnerID, p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,owner_id,created_by,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,owner_id,created_by,created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

// --- members ---

func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	if m.Role == "" {
		m.Role = domain.RoleEmployee
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,user_id,role,created_at) VALUES (?,?,?,?)`,
		m.ProjectID, m.UserID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,user_id,role,created_at FROM project_members WHERE project_id=? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM project_members WHERE project_id=? AND user_id=? LIMIT 1`, projectID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// --- project configs ---

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}

// --- activities ---

type ActivityFilters struct {
	ProjectID string
	Type      string
	ItemKind  string
	ItemID    string
	Limit     int
	Cursor    int64
}

// ListActivities returns activity rows newest-first, paginated by id cursor.
func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.ItemKind != "" {
		clauses = append(clauses, "item_kind=?")
		args = append(args, f.ItemKind)
	}
	if f.ItemID != "" {
		clauses = append(clauses, "item_id=?")
		args = append(args, f.ItemID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,item_kind,item_id,user_id,payload_json FROM activities %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var projectID, itemID, payload sql.NullString
		if err := rows.Scan(&a.ID, &a.TS, &a.Type, &projectID, &a.ItemKind, &itemID, &a.UserID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			a.ProjectID = projectID.String
		}
		if itemID.Valid {
			a.ItemID = itemID.String
		}
		if payload.Valid {
			a.Payload = payload.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ActivitiesAfter returns activity rows with IDs greater than the cursor in
// ascending order, for webhook delivery.
func (r Repo) ActivitiesAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,item_kind,item_id,user_id,payload_json FROM activities %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var projectID, itemID, payload sql.NullString
		if err := rows.Scan(&a.ID, &a.TS, &a.Type, &projectID, &a.ItemKind, &itemID, &a.UserID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			a.ProjectID = projectID.String
		}
		if itemID.Valid {
			a.ItemID = itemID.String
		}
		if payload.Valid {
			a.Payload = payload.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LatestActivityID returns the highest activity id, 0 when the log is
// empty. An empty projectID spans all projects.
func (r Repo) LatestActivityID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM activities`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	row := r.DB.QueryRowContext(ctx, query, args...)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// CountActivitiesForItem reports audit rows for one item.
func (r Repo) CountActivitiesForItem(ctx context.Context, kind domain.ItemKind, itemID string) (int, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM activities WHERE item_kind=? AND item_id=?`, string(kind), itemID)
	var n int
	err := row.Scan(&n)
	return n, err
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
