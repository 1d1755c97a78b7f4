package server

import (
	"encoding/json"

	"opsboard/internal/domain"
	"opsboard/internal/repo"
)

// Request payloads

type CreateProjectRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type CreateStageRequest struct {
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	StageType string `json:"stageType,omitempty" enum:"TASK,INCIDENT,RESOURCE"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssigneeID  string `json:"assigneeId,omitempty"`
	DueDate     string `json:"dueDate,omitempty" format:"date-time"`
}

type CreateIncidentRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	AssigneeID    string `json:"assigneeId,omitempty"`
	RelatedTaskID string `json:"relatedTaskId,omitempty"`
}

type CreateResourceRequestRequest struct {
	Title      string `json:"title,omitempty"`
	Notes      string `json:"notes,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
	IncidentID string `json:"incidentId,omitempty"`
}

// MoveRequest targets a stage; a null or absent stageId detaches the item
// from its current stage.
type MoveRequest struct {
	StageID *string `json:"stageId"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

type AddMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty" enum:"SUPER_ADMIN,ADMIN,MANAGER,EMPLOYEE"`
}

// Response payloads

type StageCounts struct {
	Tasks     int `json:"tasks"`
	Incidents int `json:"incidents"`
}

// StageResponse mirrors a stage plus the `_count` annotation the board UI
// renders in column headers.
type StageResponse struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectId"`
	Name      string       `json:"name"`
	Color     string       `json:"color,omitempty"`
	Order     int          `json:"order"`
	StageType string       `json:"stageType" enum:"TASK,INCIDENT,RESOURCE"`
	CreatedAt string       `json:"createdAt" format:"date-time"`
	Count     *StageCounts `json:"_count,omitempty"`
}

func stageResponse(s domain.Stage) StageResponse {
	return StageResponse{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Name:      s.Name,
		Color:     s.Color,
		Order:     s.Order,
		StageType: s.StageType,
		CreatedAt: s.CreatedAt,
	}
}

func stageWithCountsResponse(s repo.StageWithCounts) StageResponse {
	out := stageResponse(s.Stage)
	out.Count = &StageCounts{Tasks: s.TaskCount, Incidents: s.IncidentCount}
	return out
}

func mapStages(items []repo.StageWithCounts) []StageResponse {
	out := make([]StageResponse, 0, len(items))
	for _, s := range items {
		out = append(out, stageWithCountsResponse(s))
	}
	return out
}

type ActivityResponse struct {
	ID        int64           `json:"id"`
	TS        string          `json:"ts" format:"date-time"`
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	ItemKind  string          `json:"itemKind"`
	ItemID    string          `json:"itemId,omitempty"`
	UserID    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload"`
}

func activityResponse(a domain.Activity) ActivityResponse {
	payload := json.RawMessage([]byte("{}"))
	if a.Payload != "" && json.Valid([]byte(a.Payload)) {
		payload = json.RawMessage([]byte(a.Payload))
	}
	return ActivityResponse{
		ID:        a.ID,
		TS:        a.TS,
		Type:      a.Type,
		ProjectID: a.ProjectID,
		ItemKind:  a.ItemKind,
		ItemID:    a.ItemID,
		UserID:    a.UserID,
		Payload:   payload,
	}
}

func mapActivities(items []domain.Activity) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, activityResponse(a))
	}
	return out
}
