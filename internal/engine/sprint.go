package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"intakeline/internal/dept"
	"intakeline/internal/domain"
	"intakeline/internal/engine/authz"
	"intakeline/internal/events"
	"intakeline/internal/repo"
)

type SprintAdvance struct {
	Project domain.Project
	Message string
}

// AdvanceSprint moves a project to its next sprint once every task in the
// active sprint is done. Authority comes from the departments of the sprint's
// assignees: the acting manager needs to cover at least one of them. When no
// assignee department resolves, the check is skipped rather than deadlocking
// the project.
func (e Engine) AdvanceSprint(ctx context.Context, projectID, actorID string) (SprintAdvance, error) {
	actor, err := e.requireManager(ctx, actorID)
	if err != nil {
		return SprintAdvance{}, err
	}
	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return SprintAdvance{}, err
	}
	if project.Status == "Completed" {
		return SprintAdvance{}, authz.InvalidStateError{Reason: "project already completed"}
	}

	tasks, err := e.Repo.ListTasks(ctx, repo.ProjectTaskFilters{ProjectID: projectID, SprintNumber: project.ActiveSprint})
	if err != nil {
		return SprintAdvance{}, err
	}
	if len(tasks) == 0 {
		return SprintAdvance{}, fmt.Errorf("sprint %d has no tasks: %w", project.ActiveSprint, repo.ErrNotFound)
	}

	var openNums []string
	for _, t := range tasks {
		if t.Status != "Done" && t.Status != "Completed" {
			openNums = append(openNums, fmt.Sprintf("#%d", t.Num))
		}
	}
	if len(openNums) > 0 {
		return SprintAdvance{}, authz.InvalidStateError{
			Reason: fmt.Sprintf("%d tasks still open in sprint %d: %s",
				len(openNums), project.ActiveSprint, strings.Join(openNums, ", ")),
		}
	}

	if depts := e.sprintDepartments(ctx, tasks); len(depts) > 0 {
		if !anyMatch(depts, actor.ApprovesDepartments()) {
			sort.Strings(depts)
			return SprintAdvance{}, authz.ForbiddenError{
				Departments: depts,
				Reason:      "no authority over sprint departments: " + strings.Join(depts, ", "),
			}
		}
	}

	next := project.ActiveSprint + 1
	status := "Approved"
	finished := next > project.TotalSprints
	if finished {
		status = "Completed"
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SprintAdvance{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.AdvanceProjectSprint(ctx, tx, projectID, project.ActiveSprint, status); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return SprintAdvance{}, authz.InvalidStateError{Reason: "sprint already advanced by another manager"}
		}
		return SprintAdvance{}, err
	}
	evtType := "sprint.advanced"
	msg := fmt.Sprintf("Sprint %d complete. Active sprint is now %d of %d.", project.ActiveSprint, next, project.TotalSprints)
	if finished {
		evtType = "project.completed"
		msg = fmt.Sprintf("Sprint %d complete. All %d sprints finished; project completed.", project.ActiveSprint, project.TotalSprints)
	}
	if err := e.Events.Append(ctx, tx, evtType, "project", projectID, actor.ID, events.EventPayload{
		"from_sprint": project.ActiveSprint,
		"to_sprint":   next,
	}); err != nil {
		return SprintAdvance{}, err
	}
	if err := tx.Commit(); err != nil {
		return SprintAdvance{}, err
	}
	out, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return SprintAdvance{}, err
	}
	return SprintAdvance{Project: out, Message: msg}, nil
}

// sprintDepartments collects the distinct departments of every employee
// assigned in the given tasks. Assignees that no longer resolve contribute
// nothing.
func (e Engine) sprintDepartments(ctx context.Context, tasks []domain.Task) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tasks {
		for _, num := range t.AssignedTo {
			emp, err := e.Repo.GetEmployeeByNumber(ctx, num)
			if err != nil {
				continue
			}
			key := dept.Normalize(emp.Department)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, emp.Department)
		}
	}
	return out
}

func anyMatch(labels, approves []string) bool {
	for _, l := range labels {
		if dept.MatchesAny(l, approves) {
			return true
		}
	}
	return false
}
