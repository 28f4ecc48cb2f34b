package domain

// Request statuses.
const (
	StatusSubmitted         = "submitted"
	StatusWorkflowGenerated = "workflow_generated"
	StatusUnderReview       = "under_review"
	StatusApproved          = "approved"
	StatusConverted         = "converted"
	StatusRejected          = "rejected"
)

// Request types.
const (
	TypeWebDev    = "web_dev"
	TypeAppDev    = "app_dev"
	TypePrototype = "prototype"
	TypeResearch  = "research"
)

type Client struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Company   string `json:"company,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Employee struct {
	ID                  string   `json:"id"`
	Number              int64    `json:"number"`
	Name                string   `json:"name"`
	Department          string   `json:"department"`
	Role                string   `json:"role" enum:"employee,manager"`
	Skills              []string `json:"skills,omitempty"`
	ApprovesDepartments []string `json:"approves_departments,omitempty"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
}

type Request struct {
	ID                  string      `json:"id"`
	ClientID            string      `json:"client_id"`
	RequestType         string      `json:"request_type" enum:"web_dev,app_dev,prototype,research"`
	Title               string      `json:"title"`
	Description         string      `json:"description,omitempty"`
	Requirements        []string    `json:"requirements,omitempty"`
	Status              string      `json:"status" enum:"submitted,workflow_generated,under_review,approved,converted,rejected"`
	EstimatedDuration   string      `json:"estimated_duration,omitempty"`
	RequiredDepartments []string    `json:"required_departments,omitempty"`
	Workflow            []WorkTask  `json:"workflow,omitempty"`
	Approvals           []Approval  `json:"approvals,omitempty"`
	Assignments         Assignments `json:"assignments,omitempty"`
	ReviewNotes         string      `json:"review_notes,omitempty"`
	ConvertedProjectID  *string     `json:"converted_project_id,omitempty"`
	CreatedAt           string      `json:"created_at" format:"date-time"`
	UpdatedAt           string      `json:"updated_at" format:"date-time"`
}

// WorkTask is one entry in a request's generated task breakdown. Team keeps
// the label exactly as the planner produced it; normalization happens only at
// comparison time.
type WorkTask struct {
	Key            string      `json:"key"`
	Position       int         `json:"position"`
	Name           string      `json:"name"`
	Team           string      `json:"team"`
	EstimatedHours float64     `json:"estimated_hours,omitempty"`
	RequiredSkills []string    `json:"required_skills,omitempty"`
	Suggested      []Candidate `json:"suggested,omitempty"`
}

// Candidate is a ranked staffing suggestion. Informational only.
type Candidate struct {
	EmployeeID string  `json:"employee_id"`
	Name       string  `json:"name,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Approval is one ledger entry per required department. Department holds the
// free-text label as it first appeared in the workflow; CanonKey is the
// normalized key the entry is stored under. At most one of Approved/Rejected
// is true at any time.
type Approval struct {
	RequestID  string  `json:"request_id"`
	CanonKey   string  `json:"canon_key"`
	Department string  `json:"department"`
	Approved   bool    `json:"approved"`
	Rejected   bool    `json:"rejected"`
	ApprovedBy *string `json:"approved_by,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty" format:"date-time"`
	RejectedBy *string `json:"rejected_by,omitempty"`
	RejectedAt *string `json:"rejected_at,omitempty" format:"date-time"`
}

// Assignments maps workflow task keys to staffed employee ids. A missing key
// and an empty list both mean unassigned.
type Assignments map[string][]string

type Project struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ClientID        string `json:"client_id"`
	Category        string `json:"category"`
	Status          string `json:"status" enum:"Approved,Completed"`
	Framework       string `json:"framework"`
	Requirements    string `json:"requirements,omitempty"`
	ActiveSprint    int    `json:"active_sprint"`
	TotalSprints    int    `json:"total_sprints"`
	SourceRequestID string `json:"source_request_id,omitempty"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

// Task is a project task materialized at conversion. Num identifiers come
// from one shared base per conversion so DependsOn arithmetic stays stable.
type Task struct {
	Num          int64   `json:"num"`
	ProjectID    string  `json:"project_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	AssignedTo   []int64 `json:"assigned_to,omitempty"`
	SprintNumber int     `json:"sprint_number"`
	Status       string  `json:"status" enum:"Pending,In Progress,Done,Completed"`
	Priority     string  `json:"priority" enum:"high,medium"`
	DependsOn    *int64  `json:"depends_on,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CategoryFor maps a request type to its project category at conversion.
func CategoryFor(requestType string) string {
	switch requestType {
	case TypeWebDev:
		return "Web Dev"
	case TypeAppDev:
		return "App Dev"
	case TypePrototype:
		return "Prototyping"
	default:
		return "Research"
	}
}
