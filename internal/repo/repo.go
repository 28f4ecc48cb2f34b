package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"intakeline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier lets the same scan helpers run inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

// --- requests ---

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	reqs, err := marshalStrings(req.Requirements)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO requests(id,client_id,request_type,title,description,requirements_json,status,estimated_duration,required_departments_json,review_notes,converted_project_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.ClientID, req.RequestType, req.Title, nullable(req.Description), reqs,
		req.Status, nullable(req.EstimatedDuration), nil, nullable(req.ReviewNotes), nil,
		req.CreatedAt, req.UpdatedAt)
	return err
}

func scanRequest(row *sql.Row) (domain.Request, error) {
	var req domain.Request
	var description, requirements, estimated, requiredDeps, notes, converted sql.NullString
	err := row.Scan(&req.ID, &req.ClientID, &req.RequestType, &req.Title, &description, &requirements,
		&req.Status, &estimated, &requiredDeps, &notes, &converted, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	req.Description = description.String
	req.EstimatedDuration = estimated.String
	req.ReviewNotes = notes.String
	if converted.Valid {
		req.ConvertedProjectID = &converted.String
	}
	if requirements.Valid && requirements.String != "" {
		_ = json.Unmarshal([]byte(requirements.String), &req.Requirements)
	}
	if requiredDeps.Valid && requiredDeps.String != "" {
		_ = json.Unmarshal([]byte(requiredDeps.String), &req.RequiredDepartments)
	}
	return req, nil
}

const requestCols = `id,client_id,request_type,title,description,requirements_json,status,estimated_duration,required_departments_json,review_notes,converted_project_id,created_at,updated_at`

// GetRequestRow returns a request without workflow, approvals or assignments.
func (r Repo) GetRequestRow(ctx context.Context, tx *sql.Tx, id string) (domain.Request, error) {
	return scanRequest(r.q(tx).QueryRowContext(ctx, `SELECT `+requestCols+` FROM requests WHERE id=?`, id))
}

// GetRequest returns a fully hydrated request.
func (r Repo) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	return r.getRequest(ctx, nil, id)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.Request, error) {
	return r.getRequest(ctx, tx, id)
}

func (r Repo) getRequest(ctx context.Context, tx *sql.Tx, id string) (domain.Request, error) {
	req, err := r.GetRequestRow(ctx, tx, id)
	if err != nil {
		return req, err
	}
	if req.Workflow, err = r.ListWorkTasks(ctx, tx, id); err != nil {
		return req, err
	}
	if req.Approvals, err = r.ListApprovals(ctx, tx, id); err != nil {
		return req, err
	}
	if req.Assignments, err = r.GetAssignments(ctx, tx, id); err != nil {
		return req, err
	}
	return req, nil
}

type RequestFilters struct {
	ClientID string
	Status   string
	Limit    int
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.Request, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestCols + ` FROM requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Request
	for rows.Next() {
		var req domain.Request
		var description, requirements, estimated, requiredDeps, notes, converted sql.NullString
		if err := rows.Scan(&req.ID, &req.ClientID, &req.RequestType, &req.Title, &description, &requirements,
			&req.Status, &estimated, &requiredDeps, &notes, &converted, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.Description = description.String
		req.EstimatedDuration = estimated.String
		req.ReviewNotes = notes.String
		if converted.Valid {
			req.ConvertedProjectID = &converted.String
		}
		if requirements.Valid && requirements.String != "" {
			_ = json.Unmarshal([]byte(requirements.String), &req.Requirements)
		}
		if requiredDeps.Valid && requiredDeps.String != "" {
			_ = json.Unmarshal([]byte(requiredDeps.String), &req.RequiredDepartments)
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// UpdateRequestFields overwrites the client-editable fields.
func (r Repo) UpdateRequestFields(ctx context.Context, tx *sql.Tx, id string, title, description *string, requirements []string, requirementsSet bool, updatedAt string) error {
	var fields []string
	var args []any
	if title != nil {
		fields = append(fields, "title=?")
		args = append(args, *title)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if requirementsSet {
		reqs, err := marshalStrings(requirements)
		if err != nil {
			return err
		}
		fields = append(fields, "requirements_json=?")
		args = append(args, reqs)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE requests SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetRequestStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE requests SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRequestGenerated records the derived department set alongside the status
// change after workflow generation.
func (r Repo) SetRequestGenerated(ctx context.Context, tx *sql.Tx, id string, requiredDepartments []string, estimatedDuration, updatedAt string) error {
	deps, err := marshalStrings(requiredDepartments)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `UPDATE requests SET status=?, required_departments_json=?, estimated_duration=?, updated_at=? WHERE id=?`,
		domain.StatusWorkflowGenerated, deps, nullable(estimatedDuration), updatedAt, id)
	return err
}

func (r Repo) SetRequestEstimatedDuration(ctx context.Context, tx *sql.Tx, id, estimatedDuration, updatedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE requests SET estimated_duration=?, updated_at=? WHERE id=?`, estimatedDuration, updatedAt, id)
	return err
}

func (r Repo) SetRequestReviewNotes(ctx context.Context, tx *sql.Tx, id, notes, updatedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE requests SET review_notes=?, updated_at=? WHERE id=?`, nullable(notes), updatedAt, id)
	return err
}

func (r Repo) MarkRequestRejected(ctx context.Context, tx *sql.Tx, id, notes, updatedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE requests SET status=?, review_notes=?, updated_at=? WHERE id=?`,
		domain.StatusRejected, nullable(notes), updatedAt, id)
	return err
}

func (r Repo) MarkRequestConverted(ctx context.Context, tx *sql.Tx, id, projectID, updatedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE requests SET status=?, converted_project_id=?, updated_at=? WHERE id=?`,
		domain.StatusConverted, projectID, updatedAt, id)
	return err
}

// --- workflow tasks ---

func (r Repo) InsertWorkTask(ctx context.Context, tx *sql.Tx, requestID string, t domain.WorkTask) error {
	skills, err := marshalStrings(t.RequiredSkills)
	if err != nil {
		return err
	}
	suggested, err := marshalCandidates(t.Suggested)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO workflow_tasks(request_id,task_key,position,task_name,team,estimated_hours,required_skills_json,suggested_json)
VALUES (?,?,?,?,?,?,?,?)`,
		requestID, t.Key, t.Position, t.Name, t.Team, t.EstimatedHours, skills, suggested)
	return err
}

func (r Repo) UpdateWorkTask(ctx context.Context, tx *sql.Tx, requestID string, t domain.WorkTask) error {
	skills, err := marshalStrings(t.RequiredSkills)
	if err != nil {
		return err
	}
	suggested, err := marshalCandidates(t.Suggested)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE workflow_tasks SET task_name=?, team=?, estimated_hours=?, required_skills_json=?, suggested_json=? WHERE request_id=? AND task_key=?`,
		t.Name, t.Team, t.EstimatedHours, skills, suggested, requestID, t.Key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListWorkTasks(ctx context.Context, tx *sql.Tx, requestID string) ([]domain.WorkTask, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT task_key,position,task_name,team,COALESCE(estimated_hours,0),required_skills_json,suggested_json
FROM workflow_tasks WHERE request_id=? ORDER BY position ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkTask
	for rows.Next() {
		var t domain.WorkTask
		var skills, suggested sql.NullString
		if err := rows.Scan(&t.Key, &t.Position, &t.Name, &t.Team, &t.EstimatedHours, &skills, &suggested); err != nil {
			return nil, err
		}
		if skills.Valid && skills.String != "" {
			_ = json.Unmarshal([]byte(skills.String), &t.RequiredSkills)
		}
		if suggested.Valid && suggested.String != "" {
			_ = json.Unmarshal([]byte(suggested.String), &t.Suggested)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- approval ledger ---

func (r Repo) InsertApproval(ctx context.Context, tx *sql.Tx, a domain.Approval) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO request_approvals(request_id,canon_key,department,approved,rejected) VALUES (?,?,?,0,0)`,
		a.RequestID, a.CanonKey, a.Department)
	return err
}

func (r Repo) ListApprovals(ctx context.Context, tx *sql.Tx, requestID string) ([]domain.Approval, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT request_id,canon_key,department,approved,rejected,approved_by,approved_at,rejected_by,rejected_at
FROM request_approvals WHERE request_id=? ORDER BY canon_key ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Approval
	for rows.Next() {
		var a domain.Approval
		var approvedBy, approvedAt, rejectedBy, rejectedAt sql.NullString
		if err := rows.Scan(&a.RequestID, &a.CanonKey, &a.Department, &a.Approved, &a.Rejected,
			&approvedBy, &approvedAt, &rejectedBy, &rejectedAt); err != nil {
			return nil, err
		}
		if approvedBy.Valid {
			a.ApprovedBy = &approvedBy.String
		}
		if approvedAt.Valid {
			a.ApprovedAt = &approvedAt.String
		}
		if rejectedBy.Valid {
			a.RejectedBy = &rejectedBy.String
		}
		if rejectedAt.Valid {
			a.RejectedAt = &rejectedAt.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// SetApprovalApproved flips a single ledger entry to approved, clearing the
// rejected flag and its actor/timestamp in the same statement. Keyed updates
// keep concurrent flips on different departments from clobbering each other.
func (r Repo) SetApprovalApproved(ctx context.Context, tx *sql.Tx, requestID, canonKey, actorID, ts string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE request_approvals
SET approved=1, rejected=0, approved_by=?, approved_at=?, rejected_by=NULL, rejected_at=NULL
WHERE request_id=? AND canon_key=?`, actorID, ts, requestID, canonKey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetApprovalRejected is the mirror of SetApprovalApproved.
func (r Repo) SetApprovalRejected(ctx context.Context, tx *sql.Tx, requestID, canonKey, actorID, ts string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE request_approvals
SET approved=0, rejected=1, rejected_by=?, rejected_at=?, approved_by=NULL, approved_at=NULL
WHERE request_id=? AND canon_key=?`, actorID, ts, requestID, canonKey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- assignment map ---

func (r Repo) GetAssignments(ctx context.Context, tx *sql.Tx, requestID string) (domain.Assignments, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT task_key, employee_ids_json FROM request_assignments WHERE request_id=?`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := domain.Assignments{}
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		var ids []string
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &ids)
		}
		res[key] = ids
	}
	return res, rows.Err()
}

// UpsertAssignment writes one task's staffing list. Other keys are untouched,
// so concurrent merges for different tasks never lose each other's entries.
func (r Repo) UpsertAssignment(ctx context.Context, tx *sql.Tx, requestID, taskKey string, employeeIDs []string) error {
	data, err := json.Marshal(employeeIDs)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO request_assignments(request_id,task_key,employee_ids_json) VALUES (?,?,?)
ON CONFLICT(request_id,task_key) DO UPDATE SET employee_ids_json=excluded.employee_ids_json`,
		requestID, taskKey, string(data))
	return err
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.scanEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.scanEvents(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) scanEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func marshalStrings(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalCandidates(in []domain.Candidate) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
