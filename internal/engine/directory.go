package engine

import (
	"context"

	"github.com/google/uuid"

	"intakeline/internal/domain"
	"intakeline/internal/engine/authz"
	"intakeline/internal/events"
)

// CreateClient registers a client in the directory.
func (e Engine) CreateClient(ctx context.Context, name, email, company string) (domain.Client, error) {
	if name == "" {
		return domain.Client{}, authz.InvalidInputError{Field: "name", Reason: "name is required"}
	}
	c := domain.Client{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Company:   company,
		CreatedAt: e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if err := e.Events.Append(ctx, tx, "client.created", "client", c.ID, c.ID, nil); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

type CreateEmployeeOptions struct {
	Name                string
	Department          string
	Role                string
	Skills              []string
	ApprovesDepartments []string
}

// CreateEmployee registers an employee and hands out the next external
// employee number.
func (e Engine) CreateEmployee(ctx context.Context, opts CreateEmployeeOptions) (domain.Employee, error) {
	if opts.Name == "" {
		return domain.Employee{}, authz.InvalidInputError{Field: "name", Reason: "name is required"}
	}
	if opts.Role != "employee" && opts.Role != "manager" {
		return domain.Employee{}, authz.InvalidInputError{Field: "role", Reason: "role must be employee or manager"}
	}
	number, err := e.Repo.NextEmployeeNumber(ctx)
	if err != nil {
		return domain.Employee{}, err
	}
	emp := domain.Employee{
		ID:                  uuid.New().String(),
		Number:              number,
		Name:                opts.Name,
		Department:          opts.Department,
		Role:                opts.Role,
		Skills:              opts.Skills,
		ApprovesDepartments: opts.ApprovesDepartments,
		CreatedAt:           e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Employee{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEmployee(ctx, tx, emp); err != nil {
		return domain.Employee{}, err
	}
	if err := e.Events.Append(ctx, tx, "employee.created", "employee", emp.ID, emp.ID, events.EventPayload{
		"number": emp.Number,
		"role":   emp.Role,
	}); err != nil {
		return domain.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Employee{}, err
	}
	return emp, nil
}
