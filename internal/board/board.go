package board

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsboard/internal/auth"
	"opsboard/internal/config"
	"opsboard/internal/domain"
	"opsboard/internal/events"
	"opsboard/internal/repo"
)

// ValidationError marks caller mistakes so transports can answer 400
// instead of 500.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Board struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Now    func() time.Time
}

func New(db *sql.DB) Board {
	return Board{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Now:    time.Now,
	}
}

func (b Board) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Board) nowRFC3339() string {
	return b.now().UTC().Format(time.RFC3339)
}

// events returns the audit writer with the board's clock, so an injected
// Now reaches audit timestamps without callers wiring the writer separately.
func (b Board) events() events.Writer {
	w := b.Events
	if w.Now == nil {
		w.Now = b.Now
	}
	return w
}

// InitProject creates a project, enrolls the owner as its first member and
// persists the default board config. Stage columns are NOT created here;
// a fresh project has an empty board until stages are added or seeded.
func (b Board) InitProject(ctx context.Context, id, name, ownerID string) (domain.Project, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Project{}, invalid("project name is required")
	}
	if ownerID == "" {
		return domain.Project{}, invalid("owner is required")
	}
	now := b.nowRFC3339()
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:        id,
		Name:      strings.TrimSpace(name),
		OwnerID:   ownerID,
		CreatedBy: ownerID,
		CreatedAt: now,
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := b.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := b.Repo.AddMember(ctx, tx, domain.Member{ProjectID: p.ID, UserID: ownerID, Role: domain.RoleManager, CreatedAt: now}); err != nil {
		return domain.Project{}, fmt.Errorf("add owner member: %w", err)
	}
	if err := b.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, config.Default(p.ID)); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// --- stages ---

type StageCreateOptions struct {
	ProjectID string
	Name      string
	Color     string
	StageType string
	UserID    string
	Role      string
}

// CreateStage appends a stage column to the board. Order is assigned inside
// the transaction as max(order)+1 within (project, stageType) so two
// concurrent creates cannot land on the same slot. Stage creation is not
// audited.
func (b Board) CreateStage(ctx context.Context, opts StageCreateOptions) (domain.Stage, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Stage{}, invalid("stage name is required")
	}
	if opts.StageType == "" {
		opts.StageType = domain.StageTypeTask
	}
	switch opts.StageType {
	case domain.StageTypeTask, domain.StageTypeIncident, domain.StageTypeResource:
	default:
		return domain.Stage{}, invalid("unknown stage type %s", opts.StageType)
	}
	if _, err := b.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Stage{}, err
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stage{}, err
	}
	defer tx.Rollback()

	if err := b.Auth.RequireMemberTx(ctx, tx, opts.ProjectID, opts.UserID, opts.Role, "create stages"); err != nil {
		return domain.Stage{}, err
	}
	ord, err := b.Repo.NextStageOrderTx(ctx, tx, opts.ProjectID, opts.StageType)
	if err != nil {
		return domain.Stage{}, err
	}
	s := domain.Stage{
		ID:        uuid.New().String(),
		ProjectID: opts.ProjectID,
		Name:      name,
		Color:     opts.Color,
		Order:     ord,
		StageType: opts.StageType,
		CreatedAt: b.nowRFC3339(),
	}
	if err := b.Repo.InsertStage(ctx, tx, s); err != nil {
		return domain.Stage{}, fmt.Errorf("insert stage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Stage{}, err
	}
	return s, nil
}

// ListStages returns a project's ordered stages with item counts.
func (b Board) ListStages(ctx context.Context, projectID, stageType string) ([]repo.StageWithCounts, error) {
	if _, err := b.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if stageType != "" {
		switch stageType {
		case domain.StageTypeTask, domain.StageTypeIncident, domain.StageTypeResource:
		default:
			return nil, invalid("unknown stage type %s", stageType)
		}
	}
	return b.Repo.ListStages(ctx, projectID, stageType)
}

// SeedStages creates stage columns from the project's config templates. It
// only appends: already-present columns keep their positions and the seeded
// ones slot in after them.
func (b Board) SeedStages(ctx context.Context, projectID, userID, role string) ([]domain.Stage, error) {
	cfg, err := b.Repo.GetProjectConfig(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var created []domain.Stage
	for _, stageType := range []string{domain.StageTypeTask, domain.StageTypeIncident, domain.StageTypeResource} {
		for _, tmpl := range cfg.Board.Templates[stageType] {
			s, err := b.CreateStage(ctx, StageCreateOptions{
				ProjectID: projectID,
				Name:      tmpl.Name,
				Color:     tmpl.Color,
				StageType: stageType,
				UserID:    userID,
				Role:      role,
			})
			if err != nil {
				return created, err
			}
			created = append(created, s)
		}
	}
	return created, nil
}

// --- item creation ---

type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	AssigneeID  string
	DueDate     string
	UserID      string
	Role        string
}

func (b Board) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, invalid("title is required")
	}
	if _, err := b.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Task{}, err
	}
	now := b.nowRFC3339()
	t := domain.Task{
		ID:          uuid.New().String(),
		ProjectID:   opts.ProjectID,
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Status:      "TODO",
		AssigneeID:  optionalString(opts.AssigneeID),
		DueDate:     optionalString(opts.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := b.Auth.RequireMemberTx(ctx, tx, opts.ProjectID, opts.UserID, opts.Role, "create tasks"); err != nil {
		return domain.Task{}, err
	}
	if err := b.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

type IncidentCreateOptions struct {
	ProjectID     string
	Title         string
	Description   string
	AssigneeID    string
	RelatedTaskID string
	UserID        string
	Role          string
}

func (b Board) CreateIncident(ctx context.Context, opts IncidentCreateOptions) (domain.Incident, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Incident{}, invalid("title is required")
	}
	if opts.UserID == "" {
		return domain.Incident{}, invalid("reporter is required")
	}
	if _, err := b.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Incident{}, err
	}
	if opts.RelatedTaskID != "" {
		if _, err := b.Repo.GetTask(ctx, opts.ProjectID, opts.RelatedTaskID); err != nil {
			return domain.Incident{}, err
		}
	}
	now := b.nowRFC3339()
	in := domain.Incident{
		ID:            uuid.New().String(),
		ProjectID:     opts.ProjectID,
		Title:         strings.TrimSpace(opts.Title),
		Description:   opts.Description,
		Status:        "OPEN",
		ReporterID:    opts.UserID,
		AssigneeID:    optionalString(opts.AssigneeID),
		RelatedTaskID: optionalString(opts.RelatedTaskID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Incident{}, err
	}
	defer tx.Rollback()
	if err := b.Auth.RequireMemberTx(ctx, tx, opts.ProjectID, opts.UserID, opts.Role, "report incidents"); err != nil {
		return domain.Incident{}, err
	}
	if err := b.Repo.InsertIncident(ctx, tx, in); err != nil {
		return domain.Incident{}, fmt.Errorf("insert incident: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Incident{}, err
	}
	return in, nil
}

type RequestCreateOptions struct {
	ProjectID  string
	Title      string
	Notes      string
	TaskID     string
	IncidentID string
	UserID     string
	Role       string
}

func (b Board) CreateResourceRequest(ctx context.Context, opts RequestCreateOptions) (domain.ResourceRequest, error) {
	if opts.UserID == "" {
		return domain.ResourceRequest{}, invalid("requester is required")
	}
	if _, err := b.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.ResourceRequest{}, err
	}
	if opts.TaskID != "" {
		if _, err := b.Repo.GetTask(ctx, opts.ProjectID, opts.TaskID); err != nil {
			return domain.ResourceRequest{}, err
		}
	}
	if opts.IncidentID != "" {
		if _, err := b.Repo.GetIncident(ctx, opts.ProjectID, opts.IncidentID); err != nil {
			return domain.ResourceRequest{}, err
		}
	}
	now := b.nowRFC3339()
	rr := domain.ResourceRequest{
		ID:          uuid.New().String(),
		ProjectID:   opts.ProjectID,
		Title:       strings.TrimSpace(opts.Title),
		RequesterID: opts.UserID,
		TaskID:      optionalString(opts.TaskID),
		IncidentID:  optionalString(opts.IncidentID),
		Status:      "PENDING",
		Notes:       opts.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ResourceRequest{}, err
	}
	defer tx.Rollback()
	if err := b.Auth.RequireMemberTx(ctx, tx, opts.ProjectID, opts.UserID, opts.Role, "create resource requests"); err != nil {
		return domain.ResourceRequest{}, err
	}
	if err := b.Repo.InsertResourceRequest(ctx, tx, rr); err != nil {
		return domain.ResourceRequest{}, fmt.Errorf("insert resource request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ResourceRequest{}, err
	}
	return rr, nil
}

// --- move ---

type MoveOptions struct {
	ProjectID string
	Kind      domain.ItemKind
	ItemID    string
	StageID   *string // nil detaches the item from its stage
	UserID    string
	Role      string
}

// Move places an item on a stage, or off the board when StageID is nil.
// The item lookup is scoped by (id, projectId) and the stage lookup by
// (id, projectId, stageType), so items and stages from other projects, and
// stages of another type, read as absent or invalid. The stage update and
// its single audit row commit in one transaction: a reader can never
// observe the new placement without the audit row or the row without the
// placement. Moving to the current stage is a no-op on state but still
// writes an audit row.
func (b Board) Move(ctx context.Context, opts MoveOptions) error {
	if !opts.Kind.Valid() {
		return invalid("unknown item kind %s", opts.Kind)
	}
	if _, err := b.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return err
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := b.Auth.RequireMemberTx(ctx, tx, opts.ProjectID, opts.UserID, opts.Role, "move items"); err != nil {
		return err
	}
	item, err := b.Repo.GetPlacementTx(ctx, tx, opts.Kind, opts.ProjectID, opts.ItemID)
	if err != nil {
		return err
	}

	var message string
	var stageID *string
	if opts.StageID != nil && *opts.StageID != "" {
		stage, err := b.Repo.GetStageScopedTx(ctx, tx, *opts.StageID, opts.ProjectID, opts.Kind.StageType())
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return invalid("invalid stage for this project")
			}
			return err
		}
		stageID = &stage.ID
		message = "Moved to stage: " + stage.Name
	} else {
		message = "Removed from stage"
	}

	now := b.nowRFC3339()
	if err := b.Repo.SetStageTx(ctx, tx, opts.Kind, item.ID, stageID, now); err != nil {
		return err
	}

	switch opts.Kind {
	case domain.KindResourceRequest:
		err = b.events().Append(ctx, tx, events.TypeRequestUpdate, opts.ProjectID, string(opts.Kind), item.ID, opts.UserID,
			events.Payload{"status": item.Status, "notes": message})
	default:
		err = b.events().Append(ctx, tx, events.TypeStatusChange, opts.ProjectID, string(opts.Kind), item.ID, opts.UserID,
			events.Payload{"message": message})
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// --- status updates ---

func (b Board) UpdateTaskStatus(ctx context.Context, projectID, taskID, status, userID, role string) (domain.Task, error) {
	switch status {
	case "TODO", "IN_PROGRESS", "DONE":
	default:
		return domain.Task{}, invalid("unknown task status %s", status)
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := b.Auth.RequireMemberTx(ctx, tx, projectID, userID, role, "update tasks"); err != nil {
		return domain.Task{}, err
	}
	if err := b.Repo.UpdateTaskStatus(ctx, tx, projectID, taskID, status, b.nowRFC3339()); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return b.Repo.GetTask(ctx, projectID, taskID)
}

func (b Board) UpdateIncidentStatus(ctx context.Context, projectID, incidentID, status, userID, role string) (domain.Incident, error) {
	switch status {
	case "OPEN", "INVESTIGATING", "RESOLVED", "CLOSED":
	default:
		return domain.Incident{}, invalid("unknown incident status %s", status)
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Incident{}, err
	}
	defer tx.Rollback()
	if err := b.Auth.RequireMemberTx(ctx, tx, projectID, userID, role, "update incidents"); err != nil {
		return domain.Incident{}, err
	}
	if err := b.Repo.UpdateIncidentStatus(ctx, tx, projectID, incidentID, status, b.nowRFC3339()); err != nil {
		return domain.Incident{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Incident{}, err
	}
	return b.Repo.GetIncident(ctx, projectID, incidentID)
}

func (b Board) UpdateRequestStatus(ctx context.Context, projectID, requestID, status, userID, role string) (domain.ResourceRequest, error) {
	switch status {
	case "PENDING", "APPROVED", "REJECTED", "FULFILLED":
	default:
		return domain.ResourceRequest{}, invalid("unknown request status %s", status)
	}
	var approver *string
	if status == "APPROVED" || status == "REJECTED" {
		approver = &userID
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ResourceRequest{}, err
	}
	defer tx.Rollback()
	if err := b.Auth.RequireMemberTx(ctx, tx, projectID, userID, role, "update resource requests"); err != nil {
		return domain.ResourceRequest{}, err
	}
	if err := b.Repo.UpdateResourceRequestStatus(ctx, tx, projectID, requestID, status, approver, b.nowRFC3339()); err != nil {
		return domain.ResourceRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ResourceRequest{}, err
	}
	return b.Repo.GetResourceRequest(ctx, projectID, requestID)
}

// --- comments ---

type CommentCreateOptions struct {
	ProjectID string
	RequestID string
	Content   string
	UserID    string
	Role      string
}

func (b Board) CreateComment(ctx context.Context, opts CommentCreateOptions) (domain.Comment, error) {
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return domain.Comment{}, invalid("content is required")
	}
	if _, err := b.Repo.GetResourceRequest(ctx, opts.ProjectID, opts.RequestID); err != nil {
		return domain.Comment{}, err
	}
	now := b.nowRFC3339()
	c := domain.Comment{
		ID:        uuid.New().String(),
		RequestID: opts.RequestID,
		UserID:    opts.UserID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := b.Auth.RequireMemberTx(ctx, tx, opts.ProjectID, opts.UserID, opts.Role, "comment"); err != nil {
		return domain.Comment{}, err
	}
	if err := b.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (b Board) ListComments(ctx context.Context, projectID, requestID string) ([]domain.Comment, error) {
	if _, err := b.Repo.GetResourceRequest(ctx, projectID, requestID); err != nil {
		return nil, err
	}
	return b.Repo.ListComments(ctx, requestID)
}

type CommentEditOptions struct {
	ProjectID string
	RequestID string
	CommentID string
	Content   string
	UserID    string
	Role      string
}

// UpdateComment replaces a comment's content. The comment is resolved
// through its resource request's project, so a valid id under the wrong
// project answers NotFound, never Forbidden. Only the author or an
// elevated role may edit.
func (b Board) UpdateComment(ctx context.Context, opts CommentEditOptions) (domain.Comment, error) {
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return domain.Comment{}, invalid("content is required")
	}
	c, err := b.Repo.GetCommentScoped(ctx, opts.ProjectID, opts.RequestID, opts.CommentID)
	if err != nil {
		return domain.Comment{}, err
	}
	if !auth.CanModerateComment(opts.UserID, opts.Role, c) {
		return domain.Comment{}, auth.ForbiddenError{Action: "edit this comment"}
	}
	now := b.nowRFC3339()
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := b.Repo.UpdateCommentContent(ctx, tx, c.ID, content, now); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	c.Content = content
	c.UpdatedAt = now
	return c, nil
}

// DeleteComment removes a comment permanently. No audit row is written.
func (b Board) DeleteComment(ctx context.Context, opts CommentEditOptions) error {
	c, err := b.Repo.GetCommentScoped(ctx, opts.ProjectID, opts.RequestID, opts.CommentID)
	if err != nil {
		return err
	}
	if !auth.CanModerateComment(opts.UserID, opts.Role, c) {
		return auth.ForbiddenError{Action: "delete this comment"}
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := b.Repo.DeleteComment(ctx, tx, c.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- activity ---

func (b Board) Activities(ctx context.Context, f repo.ActivityFilters) ([]domain.Activity, error) {
	if f.ProjectID != "" {
		if _, err := b.Repo.GetProject(ctx, f.ProjectID); err != nil {
			return nil, err
		}
	}
	return b.Repo.ListActivities(ctx, f)
}

// --- members ---

func (b Board) AddMember(ctx context.Context, projectID, userID, memberRole, actorID, actorRole string) (domain.Member, error) {
	if userID == "" {
		return domain.Member{}, invalid("user is required")
	}
	if memberRole == "" {
		memberRole = domain.RoleEmployee
	}
	p, err := b.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Member{}, err
	}
	if !auth.Elevated(actorRole) && p.OwnerID != actorID {
		return domain.Member{}, auth.ForbiddenError{Action: "manage members"}
	}
	m := domain.Member{ProjectID: projectID, UserID: userID, Role: memberRole, CreatedAt: b.nowRFC3339()}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	if err := b.Repo.AddMember(ctx, tx, m); err != nil {
		return domain.Member{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func (b Board) RemoveMember(ctx context.Context, projectID, userID, actorID, actorRole string) error {
	p, err := b.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !auth.Elevated(actorRole) && p.OwnerID != actorID {
		return auth.ForbiddenError{Action: "manage members"}
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := b.Repo.RemoveMember(ctx, tx, projectID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
