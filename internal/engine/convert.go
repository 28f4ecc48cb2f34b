package engine

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/google/uuid"

	"intakeline/internal/domain"
	"intakeline/internal/events"
)

// convert materializes an approved request into a project plus one task per
// workflow entry, inside the caller's transaction. Task numbers come from one
// contiguous block so the dependency chain is plain arithmetic: task i
// depends on task i-1. Sprint numbers pack tasks in workflow order.
func (e Engine) convert(ctx context.Context, tx *sql.Tx, req domain.Request, actor Actor, now string) (domain.Project, error) {
	tasks := append([]domain.WorkTask(nil), req.Workflow...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
	perSprint := e.tasksPerSprint()
	totalSprints := (len(tasks) + perSprint - 1) / perSprint
	if totalSprints < 1 {
		totalSprints = 1
	}

	project := domain.Project{
		ID:              uuid.New().String(),
		Title:           req.Title,
		ClientID:        req.ClientID,
		Category:        domain.CategoryFor(req.RequestType),
		Status:          "Approved",
		Framework:       "Agile",
		Requirements:    strings.Join(req.Requirements, "; "),
		ActiveSprint:    1,
		TotalSprints:    totalSprints,
		SourceRequestID: req.ID,
		CreatedAt:       now,
	}
	if err := e.Repo.InsertProject(ctx, tx, project); err != nil {
		return domain.Project{}, err
	}

	base, err := e.Repo.ReserveTaskNums(ctx, tx, len(tasks))
	if err != nil {
		return domain.Project{}, err
	}
	for i, wt := range tasks {
		t := domain.Task{
			Num:          base + int64(i),
			ProjectID:    project.ID,
			Name:         wt.Name,
			Description:  "From request " + req.Title + " (" + wt.Team + ")",
			AssignedTo:   e.resolveAssignees(ctx, tx, req.Assignments[wt.Key]),
			SprintNumber: i/perSprint + 1,
			Status:       "Pending",
			Priority:     "medium",
			CreatedAt:    now,
		}
		if i == 0 {
			t.Priority = "high"
		} else {
			dep := base + int64(i) - 1
			t.DependsOn = &dep
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return domain.Project{}, err
		}
	}

	if err := e.Repo.MarkRequestConverted(ctx, tx, req.ID, project.ID, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.converted", "project", project.ID, actor.ID, events.EventPayload{
		"request_id":    req.ID,
		"tasks":         len(tasks),
		"total_sprints": totalSprints,
	}); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// resolveAssignees maps directory ids to external employee numbers. Ids that
// no longer resolve are dropped rather than failing the conversion.
func (e Engine) resolveAssignees(ctx context.Context, tx *sql.Tx, ids []string) []int64 {
	var out []int64
	for _, id := range ids {
		emp, err := e.Repo.GetEmployeeTx(ctx, tx, id)
		if err != nil {
			continue
		}
		out = append(out, emp.Number)
	}
	return out
}
