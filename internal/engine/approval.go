package engine

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"intakeline/internal/dept"
	"intakeline/internal/domain"
	"intakeline/internal/engine/authz"
	"intakeline/internal/events"
)

// DepartmentApprove records one department's sign-off in the ledger. With an
// empty department the entry is resolved from the manager's authority, which
// must pick exactly one eligible entry.
func (e Engine) DepartmentApprove(ctx context.Context, requestID, department, actorID string) (domain.Request, error) {
	return e.flipLedger(ctx, requestID, department, actorID, authz.ActionApprove)
}

// DepartmentReject records one department's objection. Rejecting an entry a
// department previously approved clears the approval; the two flags never
// hold together.
func (e Engine) DepartmentReject(ctx context.Context, requestID, department, actorID string) (domain.Request, error) {
	return e.flipLedger(ctx, requestID, department, actorID, authz.ActionReject)
}

func (e Engine) flipLedger(ctx context.Context, requestID, department, actorID string, action authz.LedgerAction) (domain.Request, error) {
	actor, err := e.requireManager(ctx, actorID)
	if err != nil {
		return domain.Request{}, err
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	if err := requireReviewable(req); err != nil {
		return domain.Request{}, err
	}
	entry, err := authz.ResolveDepartment(req.Approvals, actor.ApprovesDepartments(), department, action)
	if err != nil {
		return domain.Request{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	now := e.nowStr()
	evtType := "department.approved"
	if action == authz.ActionApprove {
		err = e.Repo.SetApprovalApproved(ctx, tx, req.ID, entry.CanonKey, actor.ID, now)
	} else {
		evtType = "department.rejected"
		err = e.Repo.SetApprovalRejected(ctx, tx, req.ID, entry.CanonKey, actor.ID, now)
	}
	if err != nil {
		return domain.Request{}, err
	}
	// First ledger touch moves the request into review.
	if req.Status == domain.StatusWorkflowGenerated {
		if err := e.Repo.SetRequestStatus(ctx, tx, req.ID, domain.StatusUnderReview, now); err != nil {
			return domain.Request{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, evtType, "request", req.ID, actor.ID, events.EventPayload{
		"department": entry.Department,
		"canon_key":  entry.CanonKey,
	}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return e.Repo.GetRequest(ctx, req.ID)
}

// ApproveRequest is the terminal gate: the acting manager must hold authority
// over at least one required department, every ledger entry must be approved,
// and every workflow task must be staffed. On success the request converts
// into a project with its task set in one transaction.
func (e Engine) ApproveRequest(ctx context.Context, requestID, actorID string) (domain.Request, domain.Project, error) {
	actor, err := e.requireManager(ctx, actorID)
	if err != nil {
		return domain.Request{}, domain.Project{}, err
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return domain.Request{}, domain.Project{}, err
	}
	if err := requireReviewable(req); err != nil {
		return domain.Request{}, domain.Project{}, err
	}
	if !intersectsLedger(req.Approvals, actor.ApprovesDepartments()) {
		return domain.Request{}, domain.Project{}, authz.ForbiddenError{
			Departments: actor.ApprovesDepartments(),
			Reason:      "no authority over any required department",
		}
	}
	if pending := pendingDepartments(req.Approvals); len(pending) > 0 {
		return domain.Request{}, domain.Project{}, authz.InvalidStateError{
			Reason: "departments pending approval: " + strings.Join(pending, ", "),
		}
	}
	if n := unassignedCount(req); n > 0 {
		return domain.Request{}, domain.Project{}, authz.InvalidStateError{
			Reason: strconv.Itoa(n) + " workflow tasks have no assigned employees",
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, domain.Project{}, err
	}
	defer tx.Rollback()
	now := e.nowStr()
	if err := e.Repo.SetRequestStatus(ctx, tx, req.ID, domain.StatusApproved, now); err != nil {
		return domain.Request{}, domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.approved", "request", req.ID, actor.ID, nil); err != nil {
		return domain.Request{}, domain.Project{}, err
	}
	project, err := e.convert(ctx, tx, req, actor, now)
	if err != nil {
		return domain.Request{}, domain.Project{}, authz.FatalError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, domain.Project{}, authz.FatalError{Err: err}
	}
	out, err := e.Repo.GetRequest(ctx, req.ID)
	if err != nil {
		return domain.Request{}, domain.Project{}, err
	}
	return out, project, nil
}

func intersectsLedger(ledger []domain.Approval, approves []string) bool {
	for _, entry := range ledger {
		if dept.MatchesAny(entry.Department, approves) {
			return true
		}
	}
	return false
}

func pendingDepartments(ledger []domain.Approval) []string {
	var out []string
	for _, entry := range ledger {
		if !entry.Approved {
			out = append(out, entry.Department)
		}
	}
	sort.Strings(out)
	return out
}

func unassignedCount(req domain.Request) int {
	n := 0
	for _, t := range req.Workflow {
		if len(req.Assignments[t.Key]) == 0 {
			n++
		}
	}
	return n
}
