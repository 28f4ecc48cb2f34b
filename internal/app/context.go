package app

import (
	"context"
	"database/sql"
	"fmt"

	"intakeline/internal/config"
	"intakeline/internal/db"
	"intakeline/internal/engine"
	"intakeline/internal/migrate"
)

// Open prepares the workspace: database created and migrated, config loaded
// from intakeline.yml or defaulted when the file is absent.
func Open(workspace string) (*sql.DB, *config.Config, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if cfg == nil {
		cfg = config.Default("intakeline")
	}
	return conn, cfg, nil
}

// DemoDirectory holds the ids seeded by SeedDemo.
type DemoDirectory struct {
	ClientID  string
	ManagerID string
	Employees []string
}

// SeedDemo populates an empty directory with a client, a manager holding
// authority over the common departments, and one employee per department.
// Safe to describe in getting-started docs; no-op when clients already exist.
func SeedDemo(ctx context.Context, e engine.Engine) (DemoDirectory, error) {
	existing, err := e.Repo.ListClients(ctx)
	if err != nil {
		return DemoDirectory{}, err
	}
	if len(existing) > 0 {
		return DemoDirectory{}, fmt.Errorf("directory not empty; refusing to seed demo data")
	}
	var out DemoDirectory
	client, err := e.CreateClient(ctx, "Acme Corp", "ops@acme.example", "Acme")
	if err != nil {
		return DemoDirectory{}, err
	}
	out.ClientID = client.ID
	manager, err := e.CreateEmployee(ctx, engine.CreateEmployeeOptions{
		Name:                "Morgan Lee",
		Department:          "Development",
		Role:                "manager",
		ApprovesDepartments: []string{"Design", "Development", "QA", "Research", "Mobile"},
	})
	if err != nil {
		return DemoDirectory{}, err
	}
	out.ManagerID = manager.ID
	staff := []engine.CreateEmployeeOptions{
		{Name: "Dana Fox", Department: "Design", Role: "employee", Skills: []string{"figma", "ux"}},
		{Name: "Devon Reyes", Department: "Development", Role: "employee", Skills: []string{"go", "sql", "javascript"}},
		{Name: "Quinn Patel", Department: "QA", Role: "employee", Skills: []string{"test automation"}},
		{Name: "Riley Chen", Department: "Research", Role: "employee", Skills: []string{"analysis", "writing"}},
	}
	for _, opts := range staff {
		emp, err := e.CreateEmployee(ctx, opts)
		if err != nil {
			return DemoDirectory{}, err
		}
		out.Employees = append(out.Employees, emp.ID)
	}
	return out, nil
}
