package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"intakeline/internal/domain"
)

// Directory lookups for clients and employees. The engine resolves acting
// users and assignment targets through these; it never reads auth headers.

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO clients(id,name,email,company,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Email), nullable(c.Company), c.CreatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	var email, company sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,company,created_at FROM clients WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &email, &company, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.Email = email.String
	c.Company = company.String
	return c, err
}

func (r Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,company,created_at FROM clients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		var c domain.Client
		var email, company sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &email, &company, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Email = email.String
		c.Company = company.String
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertEmployee(ctx context.Context, tx *sql.Tx, e domain.Employee) error {
	skills, err := marshalStrings(e.Skills)
	if err != nil {
		return err
	}
	approves, err := marshalStrings(e.ApprovesDepartments)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO employees(id,number,name,department,role,skills_json,approves_departments_json,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Number, e.Name, e.Department, e.Role, skills, approves, e.CreatedAt)
	return err
}

func scanEmployee(row *sql.Row) (domain.Employee, error) {
	var e domain.Employee
	var skills, approves sql.NullString
	err := row.Scan(&e.ID, &e.Number, &e.Name, &e.Department, &e.Role, &skills, &approves, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if skills.Valid && skills.String != "" {
		_ = json.Unmarshal([]byte(skills.String), &e.Skills)
	}
	if approves.Valid && approves.String != "" {
		_ = json.Unmarshal([]byte(approves.String), &e.ApprovesDepartments)
	}
	return e, nil
}

const employeeCols = `id,number,name,department,role,skills_json,approves_departments_json,created_at`

func (r Repo) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE id=?`, id))
}

func (r Repo) GetEmployeeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Employee, error) {
	return scanEmployee(r.q(tx).QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE id=?`, id))
}

// GetEmployeeByNumber resolves the external numeric identifier.
func (r Repo) GetEmployeeByNumber(ctx context.Context, number int64) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, `SELECT `+employeeCols+` FROM employees WHERE number=?`, number))
}

func (r Repo) ListEmployees(ctx context.Context, department string) ([]domain.Employee, error) {
	query := `SELECT ` + employeeCols + ` FROM employees`
	var args []any
	if department != "" {
		query += ` WHERE department=?`
		args = append(args, department)
	}
	query += ` ORDER BY number ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employee
	for rows.Next() {
		var e domain.Employee
		var skills, approves sql.NullString
		if err := rows.Scan(&e.ID, &e.Number, &e.Name, &e.Department, &e.Role, &skills, &approves, &e.CreatedAt); err != nil {
			return nil, err
		}
		if skills.Valid && skills.String != "" {
			_ = json.Unmarshal([]byte(skills.String), &e.Skills)
		}
		if approves.Valid && approves.String != "" {
			_ = json.Unmarshal([]byte(approves.String), &e.ApprovesDepartments)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// NextEmployeeNumber returns one past the highest assigned employee number.
func (r Repo) NextEmployeeNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(number),1000) FROM employees`).Scan(&n); err != nil {
		return 0, err
	}
	return n + 1, nil
}
