package server

import (
	"encoding/json"

	"intakeline/internal/domain"
)

// Request payloads

type CreateClientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

type CreateEmployeeRequest struct {
	Name                string   `json:"name"`
	Department          string   `json:"department,omitempty"`
	Role                string   `json:"role" enum:"employee,manager"`
	Skills              []string `json:"skills,omitempty"`
	ApprovesDepartments []string `json:"approves_departments,omitempty"`
}

type CreateRequestRequest struct {
	RequestType  string   `json:"request_type" enum:"web_dev,app_dev,prototype,research"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
}

type UpdateRequestRequest struct {
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
}

type WorkTaskUpdateRequest struct {
	Key            string   `json:"key"`
	Name           *string  `json:"name,omitempty"`
	Team           *string  `json:"team,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
}

type ModifyWorkflowRequest struct {
	Tasks             []WorkTaskUpdateRequest `json:"tasks,omitempty"`
	EstimatedDuration *string                 `json:"estimated_duration,omitempty"`
	ReviewNotes       *string                 `json:"review_notes,omitempty"`
}

type AssignEmployeesRequest struct {
	Assignments map[string][]string `json:"assignments"`
}

type DepartmentDecisionRequest struct {
	Department string `json:"department,omitempty"`
}

type RejectRequestRequest struct {
	Notes string `json:"notes,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type RequestResponse struct {
	ID                  string             `json:"id"`
	ClientID            string             `json:"client_id"`
	RequestType         string             `json:"request_type" enum:"web_dev,app_dev,prototype,research"`
	Title               string             `json:"title"`
	Description         string             `json:"description,omitempty"`
	Requirements        []string           `json:"requirements,omitempty"`
	Status              string             `json:"status" enum:"submitted,workflow_generated,under_review,approved,converted,rejected"`
	EstimatedDuration   string             `json:"estimated_duration,omitempty"`
	RequiredDepartments []string           `json:"required_departments,omitempty"`
	Workflow            []domain.WorkTask  `json:"workflow,omitempty"`
	Approvals           []domain.Approval  `json:"approvals,omitempty"`
	Assignments         domain.Assignments `json:"assignments,omitempty"`
	ReviewNotes         string             `json:"review_notes,omitempty"`
	ConvertedProjectID  *string            `json:"converted_project_id,omitempty"`
	CreatedAt           string             `json:"created_at" format:"date-time"`
	UpdatedAt           string             `json:"updated_at" format:"date-time"`
}

type ConversionResponse struct {
	Request RequestResponse `json:"request"`
	Project domain.Project  `json:"project"`
}

type SprintAdvanceResponse struct {
	Project domain.Project `json:"project"`
	Message string         `json:"message"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Kind    string `json:"kind" enum:"client,employee,unknown"`
	Role    string `json:"role,omitempty"`
	Source  string `json:"source,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedRequests struct {
	Items []RequestResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func requestResponse(r domain.Request) RequestResponse {
	return RequestResponse(r)
}

func mapRequests(items []domain.Request) []RequestResponse {
	res := make([]RequestResponse, 0, len(items))
	for _, r := range items {
		res = append(res, requestResponse(r))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
