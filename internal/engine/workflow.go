package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"intakeline/internal/dept"
	"intakeline/internal/domain"
	"intakeline/internal/engine/authz"
	"intakeline/internal/events"
)

// GenerateWorkflow runs the planner over a submitted request, persists the
// task breakdown, derives the required-departments set and seeds one ledger
// entry per department. One-shot: a second call is rejected.
func (e Engine) GenerateWorkflow(ctx context.Context, requestID, actorID string) (domain.Request, error) {
	actor, err := e.requireManager(ctx, actorID)
	if err != nil {
		return domain.Request{}, err
	}
	req, err := e.Repo.GetRequestRow(ctx, nil, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if req.Status != domain.StatusSubmitted {
		return domain.Request{}, authz.InvalidStateError{Reason: "workflow already generated"}
	}

	// Planner work happens outside the transaction; staffing suggestions
	// read the employee directory and may be slow.
	tasks, err := e.Planner.GenerateWorkflow(ctx, req.RequestType, req.Description, req.Requirements)
	if err != nil {
		return domain.Request{}, err
	}
	required := requiredDepartments(tasks)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	// Re-check under the transaction so two concurrent generations cannot
	// both seed the ledger.
	cur, err := e.Repo.GetRequestRow(ctx, tx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if cur.Status != domain.StatusSubmitted {
		return domain.Request{}, authz.InvalidStateError{Reason: "workflow already generated"}
	}
	for _, t := range tasks {
		if err := e.Repo.InsertWorkTask(ctx, tx, requestID, t); err != nil {
			return domain.Request{}, err
		}
	}
	now := e.nowStr()
	labels := make([]string, 0, len(required))
	for _, d := range required {
		labels = append(labels, d.label)
		if err := e.Repo.InsertApproval(ctx, tx, domain.Approval{
			RequestID:  requestID,
			CanonKey:   d.key,
			Department: d.label,
		}); err != nil {
			return domain.Request{}, err
		}
	}
	duration := estimateDuration(tasks, e.tasksPerSprint())
	if err := e.Repo.SetRequestGenerated(ctx, tx, requestID, labels, duration, now); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "workflow.generated", "request", requestID, actor.ID, events.EventPayload{
		"tasks":                len(tasks),
		"required_departments": labels,
	}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return e.Repo.GetRequest(ctx, requestID)
}

type deptEntry struct {
	key   string // normalized ledger key
	label string // first-seen raw label
}

// requiredDepartments collapses the workflow's team labels into an ordered
// distinct set keyed by normalized form, keeping the first raw spelling.
func requiredDepartments(tasks []domain.WorkTask) []deptEntry {
	seen := map[string]bool{}
	var out []deptEntry
	for _, t := range tasks {
		key := dept.Normalize(t.Team)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, deptEntry{key: key, label: t.Team})
	}
	return out
}

func estimateDuration(tasks []domain.WorkTask, perSprint int) string {
	if len(tasks) == 0 || perSprint <= 0 {
		return ""
	}
	sprints := (len(tasks) + perSprint - 1) / perSprint
	var hours float64
	for _, t := range tasks {
		hours += t.EstimatedHours
	}
	if hours > 0 {
		return fmt.Sprintf("%d sprints (%.0f hours)", sprints, hours)
	}
	return fmt.Sprintf("%d sprints", sprints)
}

// TaskUpdate carries a partial edit to one workflow task. Nil fields keep
// the stored value.
type TaskUpdate struct {
	Key            string
	Name           *string
	Team           *string
	EstimatedHours *float64
	RequiredSkills []string
	SkillsSet      bool
}

type ModifyWorkflowOptions struct {
	RequestID         string
	ActorID           string
	Tasks             []TaskUpdate
	EstimatedDuration *string
	ReviewNotes       *string
}

// ModifyWorkflow merges manager edits into the stored breakdown and moves the
// request to under_review. Edits never touch the approval ledger, even when a
// task's team label changes.
func (e Engine) ModifyWorkflow(ctx context.Context, opts ModifyWorkflowOptions) (domain.Request, error) {
	actor, err := e.requireManager(ctx, opts.ActorID)
	if err != nil {
		return domain.Request{}, err
	}
	req, err := e.Repo.GetRequest(ctx, opts.RequestID)
	if err != nil {
		return domain.Request{}, err
	}
	if err := requireReviewable(req); err != nil {
		return domain.Request{}, err
	}
	byKey := make(map[string]domain.WorkTask, len(req.Workflow))
	for _, t := range req.Workflow {
		byKey[t.Key] = t
	}
	for _, u := range opts.Tasks {
		if _, ok := byKey[u.Key]; !ok {
			return domain.Request{}, authz.InvalidInputError{Field: "tasks", Reason: "unknown task key " + u.Key}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	edited := make([]string, 0, len(opts.Tasks))
	for _, u := range opts.Tasks {
		t := byKey[u.Key]
		if u.Name != nil {
			t.Name = *u.Name
		}
		if u.Team != nil {
			t.Team = *u.Team
		}
		if u.EstimatedHours != nil {
			t.EstimatedHours = *u.EstimatedHours
		}
		if u.SkillsSet {
			t.RequiredSkills = u.RequiredSkills
		}
		if err := e.Repo.UpdateWorkTask(ctx, tx, req.ID, t); err != nil {
			return domain.Request{}, err
		}
		edited = append(edited, u.Key)
	}
	now := e.nowStr()
	if opts.EstimatedDuration != nil {
		if err := e.Repo.SetRequestEstimatedDuration(ctx, tx, req.ID, *opts.EstimatedDuration, now); err != nil {
			return domain.Request{}, err
		}
	}
	if opts.ReviewNotes != nil {
		if err := e.Repo.SetRequestReviewNotes(ctx, tx, req.ID, *opts.ReviewNotes, now); err != nil {
			return domain.Request{}, err
		}
	}
	if err := e.Repo.SetRequestStatus(ctx, tx, req.ID, domain.StatusUnderReview, now); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "workflow.modified", "request", req.ID, actor.ID, events.EventPayload{
		"edited_tasks": edited,
	}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return e.Repo.GetRequest(ctx, req.ID)
}

type AssignEmployeesOptions struct {
	RequestID   string
	ActorID     string
	Assignments map[string][]string
}

// AssignEmployees merges staffing picks into the assignment map. The acting
// manager needs department authority over every task they touch; keys they
// leave out are untouched, so disjoint assignments by different managers
// accumulate.
func (e Engine) AssignEmployees(ctx context.Context, opts AssignEmployeesOptions) (domain.Request, error) {
	actor, err := e.requireManager(ctx, opts.ActorID)
	if err != nil {
		return domain.Request{}, err
	}
	req, err := e.Repo.GetRequest(ctx, opts.RequestID)
	if err != nil {
		return domain.Request{}, err
	}
	if err := requireReviewable(req); err != nil {
		return domain.Request{}, err
	}
	byKey := make(map[string]domain.WorkTask, len(req.Workflow))
	for _, t := range req.Workflow {
		byKey[t.Key] = t
	}
	var unknown, denied []string
	for key := range opts.Assignments {
		t, ok := byKey[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if !dept.MatchesAny(t.Team, actor.ApprovesDepartments()) {
			denied = append(denied, t.Team)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return domain.Request{}, authz.InvalidInputError{Field: "assignments", Reason: "unknown task keys: " + strings.Join(unknown, ", ")}
	}
	if len(denied) > 0 {
		sort.Strings(denied)
		return domain.Request{}, authz.ForbiddenError{Departments: denied, Reason: "no authority over teams: " + strings.Join(denied, ", ")}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	keys := make([]string, 0, len(opts.Assignments))
	for key, ids := range opts.Assignments {
		if err := e.Repo.UpsertAssignment(ctx, tx, req.ID, key, ids); err != nil {
			return domain.Request{}, err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if err := e.Repo.SetRequestStatus(ctx, tx, req.ID, domain.StatusUnderReview, e.nowStr()); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "employees.assigned", "request", req.ID, actor.ID, events.EventPayload{
		"task_keys": keys,
	}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return e.Repo.GetRequest(ctx, req.ID)
}

// requireReviewable gates the review-stage operations: a workflow must exist
// and the request must not be terminal.
func requireReviewable(req domain.Request) error {
	switch req.Status {
	case domain.StatusSubmitted:
		return authz.InvalidStateError{Reason: "workflow not generated yet"}
	case domain.StatusConverted:
		return authz.InvalidStateError{Reason: "request already converted"}
	case domain.StatusRejected:
		return authz.InvalidStateError{Reason: "request already rejected"}
	}
	return nil
}
