package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"intakeline/internal/config"
	"intakeline/internal/db"
	"intakeline/internal/domain"
	"intakeline/internal/engine"
	"intakeline/internal/engine/authz"
	"intakeline/internal/migrate"
	"intakeline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Client domain.Client
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("test-portal"))
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	client, err := eng.CreateClient(ctx, "Acme Corp", "ops@acme.test", "Acme")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Client: client}
}

func (env testEnv) manager(t *testing.T, name string, approves ...string) domain.Employee {
	t.Helper()
	emp, err := env.Engine.CreateEmployee(env.Ctx, engine.CreateEmployeeOptions{
		Name:                name,
		Department:          first(approves),
		Role:                "manager",
		ApprovesDepartments: approves,
	})
	if err != nil {
		t.Fatalf("create manager %s: %v", name, err)
	}
	return emp
}

func (env testEnv) employee(t *testing.T, name, department string, skills ...string) domain.Employee {
	t.Helper()
	emp, err := env.Engine.CreateEmployee(env.Ctx, engine.CreateEmployeeOptions{
		Name:       name,
		Department: department,
		Role:       "employee",
		Skills:     skills,
	})
	if err != nil {
		t.Fatalf("create employee %s: %v", name, err)
	}
	return emp
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func (env testEnv) submit(t *testing.T, requestType string) domain.Request {
	t.Helper()
	req, err := env.Engine.CreateRequest(env.Ctx, engine.CreateRequestOptions{
		ActorID:     env.Client.ID,
		RequestType: requestType,
		Title:       "Customer portal",
		Description: "A portal for customers",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func TestCreateRequestRequiresClient(t *testing.T) {
	env := newTestEnv(t)
	mgr := env.manager(t, "Mona", "Development")
	_, err := env.Engine.CreateRequest(env.Ctx, engine.CreateRequestOptions{
		ActorID:     mgr.ID,
		RequestType: domain.TypeWebDev,
		Title:       "Nope",
	})
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestGenerateWorkflowSeedsLedger(t *testing.T) {
	env := newTestEnv(t)
	mgr := env.manager(t, "Mona", "Development")
	req := env.submit(t, domain.TypeWebDev)

	req, err := env.Engine.GenerateWorkflow(env.Ctx, req.ID, mgr.ID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if req.Status != domain.StatusWorkflowGenerated {
		t.Fatalf("status = %s", req.Status)
	}
	if len(req.Workflow) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(req.Workflow))
	}
	// Design, Development, QA — Development appears twice in the breakdown
	// but collapses to one ledger entry.
	if len(req.RequiredDepartments) != 3 || len(req.Approvals) != 3 {
		t.Fatalf("expected 3 required departments and ledger entries, got %d / %d",
			len(req.RequiredDepartments), len(req.Approvals))
	}
	for _, a := range req.Approvals {
		if a.Approved || a.Rejected {
			t.Fatalf("ledger entry %s should start unset", a.Department)
		}
	}
	// one-shot
	_, err = env.Engine.GenerateWorkflow(env.Ctx, req.ID, mgr.ID)
	var invalid authz.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state on second generate, got %v", err)
	}
}

func TestUpdateRequestOnlyWhileSubmitted(t *testing.T) {
	env := newTestEnv(t)
	mgr := env.manager(t, "Mona", "Development")
	req := env.submit(t, domain.TypeWebDev)

	title := "Revised portal"
	got, err := env.Engine.UpdateRequest(env.Ctx, engine.UpdateRequestOptions{
		ID: req.ID, ActorID: env.Client.ID, Title: &title,
	})
	if err != nil || got.Title != title {
		t.Fatalf("update while submitted: %v", err)
	}

	other, err := env.Engine.CreateClient(env.Ctx, "Rival Inc", "", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.UpdateRequest(env.Ctx, engine.UpdateRequestOptions{ID: req.ID, ActorID: other.ID, Title: &title})
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	if _, err := env.Engine.GenerateWorkflow(env.Ctx, req.ID, mgr.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.UpdateRequest(env.Ctx, engine.UpdateRequestOptions{ID: req.ID, ActorID: env.Client.ID, Title: &title})
	var invalid authz.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state after generation, got %v", err)
	}
}

func TestModifyWorkflowMergesAndMovesToReview(t *testing.T) {
	env := newTestEnv(t)
	mgr := env.manager(t, "Mona", "Development")
	req := env.submit(t, domain.TypeWebDev)
	req, _ = env.Engine.GenerateWorkflow(env.Ctx, req.ID, mgr.ID)

	origName := req.Workflow[0].Name
	hours := 24.0
	got, err := env.Engine.ModifyWorkflow(env.Ctx, engine.ModifyWorkflowOptions{
		RequestID: req.ID,
		ActorID:   mgr.ID,
		Tasks:     []engine.TaskUpdate{{Key: "wt-1", EstimatedHours: &hours}},
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if got.Status != domain.StatusUnderReview {
		t.Fatalf("status = %s", got.Status)
	}
	for _, wt := range got.Workflow {
		if wt.Key == "wt-1" {
			if wt.EstimatedHours != hours {
				t.Fatalf("hours not updated")
			}
			if wt.Name != origName {
				t.Fatalf("unspecified field clobbered: %q", wt.Name)
			}
		}
	}

	_, err = env.Engine.ModifyWorkflow(env.Ctx, engine.ModifyWorkflowOptions{
		RequestID: req.ID, ActorID: mgr.ID,
		Tasks: []engine.TaskUpdate{{Key: "wt-99"}},
	})
	var invalid authz.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid input for unknown key, got %v", err)
	}
}

func TestLedgerApproveRejectExclusive(t *testing.T) {
	env := newTestEnv(t)
	gen := env.manager(t, "Mona", "Development")
	designMgr := env.manager(t, "Dana", "Design")
	req := env.submit(t, domain.TypeWebDev)
	req, _ = env.Engine.GenerateWorkflow(env.Ctx, req.ID, gen.ID)

	req, err := env.Engine.DepartmentApprove(env.Ctx, req.ID, "Design", designMgr.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if req.Status != domain.StatusUnderReview {
		t.Fatalf("first ledger touch should move to under_review, got %s", req.Status)
	}
	entry := ledgerEntry(t, req, "Design")
	if !entry.Approved || entry.ApprovedBy == nil || *entry.ApprovedBy != designMgr.ID {
		t.Fatalf("approval not recorded: %+v", entry)
	}

	req, err = env.Engine.DepartmentReject(env.Ctx, req.ID, "Design", designMgr.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	entry = ledgerEntry(t, req, "Design")
	if entry.Approved || entry.ApprovedBy != nil || entry.ApprovedAt != nil {
		t.Fatalf("approval flag not cleared on reject: %+v", entry)
	}
	if !entry.Rejected || entry.RejectedBy == nil {
		t.Fatalf("rejection not recorded: %+v", entry)
	}

	// Aliases reach the same entry: "UX" resolves to the Design ledger row.
	req, err = env.Engine.DepartmentApprove(env.Ctx, req.ID, "UX", designMgr.ID)
	if err != nil {
		t.Fatalf("approve via alias: %v", err)
	}
	entry = ledgerEntry(t, req, "Design")
	if !entry.Approved || entry.Rejected || entry.RejectedBy != nil {
		t.Fatalf("rejection flag not cleared on approve: %+v", entry)
	}
}

func ledgerEntry(t *testing.T, req domain.Request, department string) domain.Approval {
	t.Helper()
	for _, a := range req.Approvals {
		if a.Department == department {
			return a
		}
	}
	t.Fatalf("no ledger entry for %s", department)
	return domain.Approval{}
}

func TestLedgerAuthorityAndResolution(t *testing.T) {
	env := newTestEnv(t)
	gen := env.manager(t, "Mona", "Development")
	qaMgr := env.manager(t, "Quinn", "Testing") // alias of QA
	wide := env.manager(t, "Wanda", "Design", "QA")
	req := env.submit(t, domain.TypeWebDev)
	req, _ = env.Engine.GenerateWorkflow(env.Ctx, req.ID, gen.ID)

	// no authority over Design
	_, err := env.Engine.DepartmentApprove(env.Ctx, req.ID, "Design", qaMgr.ID)
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// two eligible entries and no explicit department is ambiguous
	_, err = env.Engine.DepartmentApprove(env.Ctx, req.ID, "", wide.ID)
	var ambiguous authz.AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected ambiguous, got %v", err)
	}

	// omitted department with one eligible entry auto-resolves via alias
	req, err = env.Engine.DepartmentApprove(env.Ctx, req.ID, "", qaMgr.ID)
	if err != nil {
		t.Fatalf("auto-resolve: %v", err)
	}
	if e := ledgerEntry(t, req, "QA"); !e.Approved {
		t.Fatalf("QA entry not approved via alias authority")
	}

	// a department outside the required set is invalid input
	_, err = env.Engine.DepartmentApprove(env.Ctx, req.ID, "Marketing", wide.ID)
	var invalid authz.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAssignmentsMergeAcrossManagers(t *testing.T) {
	env := newTestEnv(t)
	gen := env.manager(t, "Mona", "Development")
	designMgr := env.manager(t, "Dana", "Design")
	dev := env.employee(t, "Devon", "Development", "go")
	des := env.employee(t, "Daisy", "Design", "figma")
	req := env.submit(t, domain.TypeWebDev)
	req, _ = env.Engine.GenerateWorkflow(env.Ctx, req.ID, gen.ID)

	// wt-1 is Design: the Development manager has no authority there.
	_, err := env.Engine.AssignEmployees(env.Ctx, engine.AssignEmployeesOptions{
		RequestID:   req.ID,
		ActorID:     gen.ID,
		Assignments: map[string][]string{"wt-1": {des.ID}},
	})
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	_, err = env.Engine.AssignEmployees(env.Ctx, engine.AssignEmployeesOptions{
		RequestID:   req.ID,
		ActorID:     gen.ID,
		Assignments: map[string][]string{"wt-42": {dev.ID}},
	})
	var invalid authz.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid input for unknown key, got %v", err)
	}

	if _, err := env.Engine.AssignEmployees(env.Ctx, engine.AssignEmployeesOptions{
		RequestID:   req.ID,
		ActorID:     designMgr.ID,
		Assignments: map[string][]string{"wt-1": {des.ID}},
	}); err != nil {
		t.Fatalf("design assign: %v", err)
	}
	got, err := env.Engine.AssignEmployees(env.Ctx, engine.AssignEmployeesOptions{
		RequestID:   req.ID,
		ActorID:     gen.ID,
		Assignments: map[string][]string{"wt-2": {dev.ID}, "wt-3": {dev.ID}},
	})
	if err != nil {
		t.Fatalf("dev assign: %v", err)
	}
	if len(got.Assignments["wt-1"]) != 1 || len(got.Assignments["wt-2"]) != 1 || len(got.Assignments["wt-3"]) != 1 {
		t.Fatalf("disjoint assignments did not accumulate: %v", got.Assignments)
	}
	if got.Status != domain.StatusUnderReview {
		t.Fatalf("status = %s", got.Status)
	}
}

// fullyStage drives a web_dev request to the point where final approval is
// legal: all departments approved, all tasks staffed.
func fullyStage(t *testing.T, env testEnv) (domain.Request, domain.Employee) {
	t.Helper()
	super := env.manager(t, "Sam", "Design", "Development", "QA")
	dev := env.employee(t, "Devon", "Development", "go")
	des := env.employee(t, "Daisy", "Design", "figma")
	qa := env.employee(t, "Quincy", "QA", "test automation")

	req := env.submit(t, domain.TypeWebDev)
	req, err := env.Engine.GenerateWorkflow(env.Ctx, req.ID, super.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{"Design", "Development", "QA"} {
		if req, err = env.Engine.DepartmentApprove(env.Ctx, req.ID, d, super.ID); err != nil {
			t.Fatalf("approve %s: %v", d, err)
		}
	}
	req, err = env.Engine.AssignEmployees(env.Ctx, engine.AssignEmployeesOptions{
		RequestID: req.ID,
		ActorID:   super.ID,
		Assignments: map[string][]string{
			"wt-1": {des.ID},
			"wt-2": {dev.ID},
			"wt-3": {dev.ID},
			"wt-4": {qa.ID},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return req, super
}

func TestApproveGates(t *testing.T) {
	env := newTestEnv(t)
	super := env.manager(t, "Sam", "Design", "Development", "QA")
	outsider := env.manager(t, "Olly", "Marketing")
	dev := env.employee(t, "Devon", "Development", "go")

	req := env.submit(t, domain.TypeWebDev)
	req, _ = env.Engine.GenerateWorkflow(env.Ctx, req.ID, super.ID)

	// authority gate
	_, _, err := env.Engine.ApproveRequest(env.Ctx, req.ID, outsider.ID)
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// all but one department approved
	req, _ = env.Engine.DepartmentApprove(env.Ctx, req.ID, "Design", super.ID)
	req, _ = env.Engine.DepartmentApprove(env.Ctx, req.ID, "Development", super.ID)
	_, _, err = env.Engine.ApproveRequest(env.Ctx, req.ID, super.ID)
	var invalid authz.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected pending-department error, got %v", err)
	}

	// all approved but tasks unstaffed
	req, _ = env.Engine.DepartmentApprove(env.Ctx, req.ID, "QA", super.ID)
	_, _ = env.Engine.AssignEmployees(env.Ctx, engine.AssignEmployeesOptions{
		RequestID:   req.ID,
		ActorID:     super.ID,
		Assignments: map[string][]string{"wt-2": {dev.ID}},
	})
	_, _, err = env.Engine.ApproveRequest(env.Ctx, req.ID, super.ID)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected unstaffed-task error, got %v", err)
	}
}

func TestConversionShape(t *testing.T) {
	env := newTestEnv(t)
	req, super := fullyStage(t, env)

	req, project, err := env.Engine.ApproveRequest(env.Ctx, req.ID, super.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if req.Status != domain.StatusConverted {
		t.Fatalf("status = %s", req.Status)
	}
	if req.ConvertedProjectID == nil || *req.ConvertedProjectID != project.ID {
		t.Fatalf("converted project link missing")
	}
	if project.Category != "Web Dev" || project.Framework != "Agile" || project.Status != "Approved" {
		t.Fatalf("unexpected project header: %+v", project)
	}
	if project.ActiveSprint != 1 || project.TotalSprints != 2 {
		t.Fatalf("sprints = %d/%d", project.ActiveSprint, project.TotalSprints)
	}

	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.ProjectTaskFilters{ProjectID: project.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}
	base := tasks[0].Num
	for i, task := range tasks {
		if task.Num != base+int64(i) {
			t.Fatalf("task numbers not contiguous: %d at index %d", task.Num, i)
		}
		wantSprint := i/2 + 1
		if task.SprintNumber != wantSprint {
			t.Fatalf("task %d sprint = %d, want %d", task.Num, task.SprintNumber, wantSprint)
		}
		if len(task.AssignedTo) == 0 {
			t.Fatalf("task %d has no assignees", task.Num)
		}
		if i == 0 {
			if task.Priority != "high" || task.DependsOn != nil {
				t.Fatalf("first task should be high priority with no dependency: %+v", task)
			}
		} else {
			if task.Priority != "medium" || task.DependsOn == nil || *task.DependsOn != task.Num-1 {
				t.Fatalf("task %d dependency chain broken: %+v", task.Num, task)
			}
		}
	}

	// terminal: no further transitions
	_, _, err = env.Engine.ApproveRequest(env.Ctx, req.ID, super.ID)
	var invalid authz.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state after conversion, got %v", err)
	}
	_, err = env.Engine.RejectRequest(env.Ctx, req.ID, "", super.ID)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state rejecting converted, got %v", err)
	}
}

func TestRejectUsesDefaultNoteAndKeepsLedger(t *testing.T) {
	env := newTestEnv(t)
	gen := env.manager(t, "Mona", "Development")
	req := env.submit(t, domain.TypeWebDev)
	req, _ = env.Engine.GenerateWorkflow(env.Ctx, req.ID, gen.ID)
	req, _ = env.Engine.DepartmentApprove(env.Ctx, req.ID, "Development", gen.ID)

	got, err := env.Engine.RejectRequest(env.Ctx, req.ID, "", gen.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != domain.StatusRejected {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ReviewNotes == "" {
		t.Fatalf("expected default review note")
	}
	if len(got.Approvals) != 3 {
		t.Fatalf("ledger should survive rejection, got %d entries", len(got.Approvals))
	}
	if e := ledgerEntry(t, got, "Development"); !e.Approved {
		t.Fatalf("recorded approval should survive rejection")
	}
}

func TestAdvanceSprint(t *testing.T) {
	env := newTestEnv(t)
	req, super := fullyStage(t, env)
	_, project, err := env.Engine.ApproveRequest(env.Ctx, req.ID, super.ID)
	if err != nil {
		t.Fatal(err)
	}

	// open tasks block the advance
	_, err = env.Engine.AdvanceSprint(env.Ctx, project.ID, super.ID)
	var invalid authz.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected open-task error, got %v", err)
	}

	finishSprint(t, env, project.ID, 1)
	adv, err := env.Engine.AdvanceSprint(env.Ctx, project.ID, super.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if adv.Project.ActiveSprint != 2 || adv.Project.Status != "Approved" {
		t.Fatalf("after sprint 1: %+v", adv.Project)
	}

	finishSprint(t, env, project.ID, 2)
	adv, err = env.Engine.AdvanceSprint(env.Ctx, project.ID, super.ID)
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if adv.Project.Status != "Completed" {
		t.Fatalf("expected completed project, got %+v", adv.Project)
	}

	_, err = env.Engine.AdvanceSprint(env.Ctx, project.ID, super.ID)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state on finished project, got %v", err)
	}
}

func TestAdvanceSprintAuthority(t *testing.T) {
	env := newTestEnv(t)
	req, super := fullyStage(t, env)
	_, project, err := env.Engine.ApproveRequest(env.Ctx, req.ID, super.ID)
	if err != nil {
		t.Fatal(err)
	}
	finishSprint(t, env, project.ID, 1)

	// Sprint 1 is staffed by Design and Development; a Marketing-only
	// manager has no authority over either.
	outsider := env.manager(t, "Olly", "Marketing")
	_, err = env.Engine.AdvanceSprint(env.Ctx, project.ID, outsider.ID)
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// "Engineering" is an alias of Development, so this manager may advance.
	aliasMgr := env.manager(t, "Eve", "Engineering")
	if _, err := env.Engine.AdvanceSprint(env.Ctx, project.ID, aliasMgr.ID); err != nil {
		t.Fatalf("alias authority advance: %v", err)
	}
}

func finishSprint(t *testing.T, env testEnv, projectID string, sprint int) {
	t.Helper()
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, repo.ProjectTaskFilters{ProjectID: projectID, SprintNumber: sprint})
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if err := env.Engine.Repo.SetTaskStatus(env.Ctx, nil, task.Num, "Done"); err != nil {
			t.Fatalf("finish task %d: %v", task.Num, err)
		}
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	req, super := fullyStage(t, env)
	if _, _, err := env.Engine.ApproveRequest(env.Ctx, req.ID, super.ID); err != nil {
		t.Fatal(err)
	}
	for _, evtType := range []string{"request.created", "workflow.generated", "department.approved", "employees.assigned", "request.approved", "request.converted"} {
		evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, evtType, "", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(evts) == 0 {
			t.Fatalf("no %s events recorded", evtType)
		}
	}
}
