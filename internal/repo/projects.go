package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"intakeline/internal/domain"
)

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,title,client_id,category,status,framework,requirements,active_sprint,total_sprints,source_request_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.ClientID, p.Category, p.Status, p.Framework, nullable(p.Requirements),
		p.ActiveSprint, p.TotalSprints, nullable(p.SourceRequestID), p.CreatedAt)
	return err
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var requirements, source sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.ClientID, &p.Category, &p.Status, &p.Framework,
		&requirements, &p.ActiveSprint, &p.TotalSprints, &source, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Requirements = requirements.String
	p.SourceRequestID = source.String
	return p, err
}

const projectCols = `id,title,client_id,category,status,framework,requirements,active_sprint,total_sprints,source_request_id,created_at`

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context, clientID string) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id=?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var requirements, source sql.NullString
		if err := rows.Scan(&p.ID, &p.Title, &p.ClientID, &p.Category, &p.Status, &p.Framework,
			&requirements, &p.ActiveSprint, &p.TotalSprints, &source, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Requirements = requirements.String
		p.SourceRequestID = source.String
		res = append(res, p)
	}
	return res, rows.Err()
}

// AdvanceProjectSprint bumps the sprint counter with an optimistic guard on
// the value the caller observed. Returns ErrNotFound when another advance got
// there first, so two managers can never double-increment one sprint.
func (r Repo) AdvanceProjectSprint(ctx context.Context, tx *sql.Tx, projectID string, fromSprint int, status string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET active_sprint=?, status=? WHERE id=? AND active_sprint=?`,
		fromSprint+1, status, projectID, fromSprint)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateProjectSprints(ctx context.Context, tx *sql.Tx, projectID string, activeSprint, totalSprints int) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET active_sprint=?, total_sprints=? WHERE id=?`,
		activeSprint, totalSprints, projectID)
	return err
}

// --- project tasks ---

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	assigned, err := marshalInt64s(t.AssignedTo)
	if err != nil {
		return err
	}
	var dependsOn any
	if t.DependsOn != nil {
		dependsOn = *t.DependsOn
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO tasks(num,project_id,name,description,assigned_to_json,sprint_number,status,priority,depends_on,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.Num, t.ProjectID, t.Name, nullable(t.Description), assigned, t.SprintNumber, t.Status, t.Priority, dependsOn, t.CreatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, num int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT num,project_id,name,description,assigned_to_json,sprint_number,status,priority,depends_on,created_at FROM tasks WHERE num=?`, num)
	return scanTask(row)
}

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	var description, assigned sql.NullString
	var dependsOn sql.NullInt64
	err := row.Scan(&t.Num, &t.ProjectID, &t.Name, &description, &assigned, &t.SprintNumber, &t.Status, &t.Priority, &dependsOn, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = description.String
	if assigned.Valid && assigned.String != "" {
		_ = json.Unmarshal([]byte(assigned.String), &t.AssignedTo)
	}
	if dependsOn.Valid {
		t.DependsOn = &dependsOn.Int64
	}
	return t, nil
}

type ProjectTaskFilters struct {
	ProjectID    string
	SprintNumber int
	Status       string
}

func (r Repo) ListTasks(ctx context.Context, f ProjectTaskFilters) ([]domain.Task, error) {
	query := `SELECT num,project_id,name,description,assigned_to_json,sprint_number,status,priority,depends_on,created_at FROM tasks WHERE project_id=?`
	args := []any{f.ProjectID}
	if f.SprintNumber > 0 {
		query += ` AND sprint_number=?`
		args = append(args, f.SprintNumber)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY num ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var description, assigned sql.NullString
		var dependsOn sql.NullInt64
		if err := rows.Scan(&t.Num, &t.ProjectID, &t.Name, &description, &assigned, &t.SprintNumber, &t.Status, &t.Priority, &dependsOn, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Description = description.String
		if assigned.Valid && assigned.String != "" {
			_ = json.Unmarshal([]byte(assigned.String), &t.AssignedTo)
		}
		if dependsOn.Valid {
			t.DependsOn = &dependsOn.Int64
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) SetTaskStatus(ctx context.Context, tx *sql.Tx, num int64, status string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET status=? WHERE num=?`, status, num)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReserveTaskNums claims a contiguous block of n task numbers from the shared
// sequence. Reservation happens inside the conversion transaction, so the
// base+index arithmetic the dependency chain relies on cannot collide across
// concurrent conversions.
func (r Repo) ReserveTaskNums(ctx context.Context, tx *sql.Tx, n int) (int64, error) {
	var base int64
	if err := tx.QueryRowContext(ctx, `SELECT next_num FROM task_num_seq WHERE id=1`).Scan(&base); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE task_num_seq SET next_num=? WHERE id=1`, base+int64(n)); err != nil {
		return 0, err
	}
	return base, nil
}

func marshalInt64s(in []int64) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
