// Package planner is the collaborator that drafts a request's task breakdown
// and staffing suggestions. The engine treats its output as opaque data; only
// the team labels matter for department derivation.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"intakeline/internal/dept"
	"intakeline/internal/domain"
	"intakeline/internal/repo"
)

// Planner produces workflow drafts. Implementations may be slow; callers
// should apply their own timeout via ctx.
type Planner interface {
	GenerateWorkflow(ctx context.Context, requestType, description string, requirements []string) ([]domain.WorkTask, error)
	SuggestEmployees(ctx context.Context, task domain.WorkTask) ([]domain.Candidate, error)
}

// Rulebook is the default rule-based planner. It derives a breakdown from the
// request type and ranks candidates from the employee directory by department
// and skill overlap.
type Rulebook struct {
	Repo repo.Repo
}

var breakdowns = map[string][]domain.WorkTask{
	domain.TypeWebDev: {
		{Name: "UI mockups and page flow", Team: "Design", EstimatedHours: 16, RequiredSkills: []string{"figma", "ux"}},
		{Name: "Frontend implementation", Team: "Development", EstimatedHours: 40, RequiredSkills: []string{"javascript", "css"}},
		{Name: "Backend API and persistence", Team: "Development", EstimatedHours: 40, RequiredSkills: []string{"go", "sql"}},
		{Name: "Cross-browser and regression testing", Team: "QA", EstimatedHours: 16, RequiredSkills: []string{"test automation"}},
	},
	domain.TypeAppDev: {
		{Name: "App screens and navigation design", Team: "Design", EstimatedHours: 20, RequiredSkills: []string{"figma", "mobile ux"}},
		{Name: "Mobile client implementation", Team: "Mobile", EstimatedHours: 60, RequiredSkills: []string{"kotlin", "swift"}},
		{Name: "Backend services", Team: "Development", EstimatedHours: 40, RequiredSkills: []string{"go", "sql"}},
		{Name: "Device and release testing", Team: "QA", EstimatedHours: 20, RequiredSkills: []string{"test automation"}},
	},
	domain.TypePrototype: {
		{Name: "Concept sketches", Team: "Design", EstimatedHours: 12, RequiredSkills: []string{"sketching"}},
		{Name: "Throwaway prototype build", Team: "Development", EstimatedHours: 24, RequiredSkills: []string{"rapid prototyping"}},
	},
	domain.TypeResearch: {
		{Name: "Literature and landscape review", Team: "Research", EstimatedHours: 24, RequiredSkills: []string{"analysis"}},
		{Name: "Feasibility experiments", Team: "Research", EstimatedHours: 32, RequiredSkills: []string{"prototyping"}},
		{Name: "Findings writeup", Team: "Research", EstimatedHours: 8, RequiredSkills: []string{"writing"}},
	},
}

func (p Rulebook) GenerateWorkflow(ctx context.Context, requestType, description string, requirements []string) ([]domain.WorkTask, error) {
	base, ok := breakdowns[requestType]
	if !ok {
		base = breakdowns[domain.TypeResearch]
	}
	tasks := make([]domain.WorkTask, len(base))
	copy(tasks, base)
	// One extra task per explicit requirement, staffed by the lead team.
	leadTeam := base[min(1, len(base)-1)].Team
	for _, req := range requirements {
		tasks = append(tasks, domain.WorkTask{
			Name:           fmt.Sprintf("Requirement: %s", truncate(req, 80)),
			Team:           leadTeam,
			EstimatedHours: 8,
		})
	}
	for i := range tasks {
		tasks[i].Key = fmt.Sprintf("wt-%d", i+1)
		tasks[i].Position = i
		suggested, err := p.SuggestEmployees(ctx, tasks[i])
		if err != nil {
			return nil, err
		}
		tasks[i].Suggested = suggested
	}
	return tasks, nil
}

func (p Rulebook) SuggestEmployees(ctx context.Context, task domain.WorkTask) ([]domain.Candidate, error) {
	employees, err := p.Repo.ListEmployees(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []domain.Candidate
	for _, e := range employees {
		score := scoreEmployee(e, task)
		if score <= 0 {
			continue
		}
		out = append(out, domain.Candidate{EmployeeID: e.ID, Name: e.Name, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > 3 {
		out = out[:3]
	}
	return out, nil
}

func scoreEmployee(e domain.Employee, task domain.WorkTask) float64 {
	var score float64
	if dept.Matches(e.Department, task.Team) {
		score += 10
	}
	for _, skill := range task.RequiredSkills {
		for _, have := range e.Skills {
			if strings.EqualFold(skill, have) {
				score += 2
			}
		}
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
