package domain

// Roles carried by a session principal. SUPER_ADMIN and ADMIN are the
// elevated roles that may moderate any comment.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RoleEmployee   = "EMPLOYEE"
)

// Stage types; a stage only accepts items of the matching kind.
const (
	StageTypeTask     = "TASK"
	StageTypeIncident = "INCIDENT"
	StageTypeResource = "RESOURCE"
)

// ItemKind tags the three movable item variants. All kinds share the same
// placement shape (project + optional stage) and one move implementation.
type ItemKind string

const (
	KindTask            ItemKind = "task"
	KindIncident        ItemKind = "incident"
	KindResourceRequest ItemKind = "resource_request"
)

// StageType returns the stage type an item of this kind may be placed on.
func (k ItemKind) StageType() string {
	switch k {
	case KindTask:
		return StageTypeTask
	case KindIncident:
		return StageTypeIncident
	case KindResourceRequest:
		return StageTypeResource
	}
	return ""
}

func (k ItemKind) Valid() bool {
	return k.StageType() != ""
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role" enum:"SUPER_ADMIN,ADMIN,MANAGER,EMPLOYEE"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	CreatedBy string `json:"createdBy"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type Member struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

// Stage is an ordered, typed column on a project board. Order is a stable
// sort key assigned as max(order)+1 within (project, stageType).
type Stage struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Order     int    `json:"order"`
	StageType string `json:"stageType" enum:"TASK,INCIDENT,RESOURCE"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	StageID     *string `json:"stageId,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"TODO,IN_PROGRESS,DONE"`
	AssigneeID  *string `json:"assigneeId,omitempty"`
	DueDate     *string `json:"dueDate,omitempty" format:"date-time"`
	CreatedAt   string  `json:"createdAt" format:"date-time"`
	UpdatedAt   string  `json:"updatedAt" format:"date-time"`
}

type Incident struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"projectId"`
	StageID       *string `json:"stageId,omitempty"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Status        string  `json:"status" enum:"OPEN,INVESTIGATING,RESOLVED,CLOSED"`
	ReporterID    string  `json:"reporterId"`
	AssigneeID    *string `json:"assigneeId,omitempty"`
	RelatedTaskID *string `json:"relatedTaskId,omitempty"`
	CreatedAt     string  `json:"createdAt" format:"date-time"`
	UpdatedAt     string  `json:"updatedAt" format:"date-time"`
}

type ResourceRequest struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	StageID     *string `json:"stageId,omitempty"`
	Title       string  `json:"title,omitempty"`
	RequesterID string  `json:"requesterId"`
	ApproverID  *string `json:"approverId,omitempty"`
	TaskID      *string `json:"taskId,omitempty"`
	IncidentID  *string `json:"incidentId,omitempty"`
	Status      string  `json:"status" enum:"PENDING,APPROVED,REJECTED,FULFILLED"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"createdAt" format:"date-time"`
	UpdatedAt   string  `json:"updatedAt" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt" format:"date-time"`
	UpdatedAt string `json:"updatedAt" format:"date-time"`
}

// Activity is one append-only audit row. Move operations write exactly one;
// rows are never updated or deleted.
type Activity struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
	ItemKind  string `json:"itemKind"`
	ItemID    string `json:"itemId,omitempty"`
	UserID    string `json:"userId"`
	Payload   string `json:"payloadJson"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"keyHash"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}
