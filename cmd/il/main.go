package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intakeline/internal/app"
	"intakeline/internal/config"
	"intakeline/internal/db"
	"intakeline/internal/domain"
	"intakeline/internal/engine"
	"intakeline/internal/repo"
	"intakeline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "il",
	Short: "Intakeline CLI",
	Long: `Intakeline runs a client-request intake and delivery-tracking portal.
Clients submit requests; a planner breaks each request into a workflow of
tasks per department; department managers approve, staff, and finally convert
the request into a project that advances sprint by sprint.
State machine: submitted -> workflow_generated -> under_review -> approved ->
converted, with rejected as the terminal exit at any pre-conversion stage.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("INTAKELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting client or employee id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var demo bool
	var portal string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, cfg, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(portal)), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			if demo {
				e := engine.New(conn, cfg)
				dir, err := app.SeedDemo(cmd.Context(), e)
				if err != nil {
					return err
				}
				return printJSONOrTable(dir)
			}
			fmt.Println("workspace ready at", db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "seed a demo client and employee directory")
	cmd.Flags().StringVar(&portal, "portal", "intakeline", "portal name written to intakeline.yml")
	return cmd
}

func clientCmd() *cobra.Command {
	c := &cobra.Command{Use: "client", Short: "Manage clients"}
	c.AddCommand(clientCreateCmd())
	c.AddCommand(clientListCmd())
	return c
}

func clientCreateCmd() *cobra.Command {
	var name, email, company string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateClient(ctx, name, email, company)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "client name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func clientListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListClients(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Company", "Email"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Company, c.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func employeeCmd() *cobra.Command {
	c := &cobra.Command{Use: "employee", Short: "Manage the employee directory"}
	c.AddCommand(employeeCreateCmd())
	c.AddCommand(employeeListCmd())
	return c
}

func employeeCreateCmd() *cobra.Command {
	var name, department, role string
	var skills, approves []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				emp, err := e.CreateEmployee(ctx, engine.CreateEmployeeOptions{
					Name:                name,
					Department:          department,
					Role:                role,
					Skills:              skills,
					ApprovesDepartments: approves,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(emp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "employee name")
	cmd.Flags().StringVar(&department, "department", "", "home department")
	cmd.Flags().StringVar(&role, "role", "employee", "employee or manager")
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "skill (repeatable)")
	cmd.Flags().StringArrayVar(&approves, "approves", []string{}, "department the employee approves for (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func employeeListCmd() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListEmployees(ctx, department)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "#", "Name", "Department", "Role", "Approves"})
				for _, emp := range items {
					tw.AppendRow(table.Row{emp.ID, emp.Number, emp.Name, emp.Department, emp.Role, strings.Join(emp.ApprovesDepartments, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department filter")
	return cmd
}

func requestCmd() *cobra.Command {
	c := &cobra.Command{Use: "request", Short: "Manage intake requests"}
	c.AddCommand(requestCreateCmd())
	c.AddCommand(requestListCmd())
	c.AddCommand(requestShowCmd())
	c.AddCommand(requestGenerateCmd())
	c.AddCommand(requestAssignCmd())
	c.AddCommand(requestDeptCmd("approve-dept", "Record a department approval"))
	c.AddCommand(requestDeptCmd("reject-dept", "Record a department rejection"))
	c.AddCommand(requestApproveCmd())
	c.AddCommand(requestRejectCmd())
	return c
}

func requestCreateCmd() *cobra.Command {
	var reqType, title, description string
	var requirements []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.CreateRequest(ctx, engine.CreateRequestOptions{
					ActorID:      actorID(),
					RequestType:  reqType,
					Title:        title,
					Description:  description,
					Requirements: requirements,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&reqType, "type", "web_dev", "request type (web_dev, app_dev, prototype, research)")
	cmd.Flags().StringVar(&title, "title", "", "request title")
	cmd.Flags().StringVar(&description, "description", "", "request description")
	cmd.Flags().StringArrayVar(&requirements, "requirement", []string{}, "explicit requirement (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Departments"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Title, r.RequestType, r.Status, strings.Join(r.RequiredDepartments, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a request with workflow, ledger and assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.Repo.GetRequest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func requestGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <request-id>",
		Short: "Generate the workflow breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.GenerateWorkflow(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func requestAssignCmd() *cobra.Command {
	var task string
	var employees []string
	cmd := &cobra.Command{
		Use:   "assign <request-id>",
		Short: "Assign employees to one workflow task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.AssignEmployees(ctx, engine.AssignEmployeesOptions{
					RequestID:   args[0],
					ActorID:     actorID(),
					Assignments: map[string][]string{task: employees},
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(req.Assignments)
			})
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "workflow task key (wt-1, wt-2, ...)")
	cmd.Flags().StringArrayVar(&employees, "employee", []string{}, "employee id (repeatable)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func requestDeptCmd(use, short string) *cobra.Command {
	var department string
	approve := use == "approve-dept"
	cmd := &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var req domain.Request
				var err error
				if approve {
					req, err = e.DepartmentApprove(ctx, args[0], department, actorID())
				} else {
					req, err = e.DepartmentReject(ctx, args[0], department, actorID())
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(req.Approvals)
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department (omit to auto-resolve from your authority)")
	return cmd
}

func requestApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Final approval: convert the request into a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				_, project, err := e.ApproveRequest(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(project)
			})
		},
		Args: cobra.ExactArgs(1),
	}
	return cmd
}

func requestRejectCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.RejectRequest(ctx, args[0], notes, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "review notes (config default when omitted)")
	return cmd
}

func projectCmd() *cobra.Command {
	c := &cobra.Command{Use: "project", Short: "Track converted projects"}
	c.AddCommand(projectListCmd())
	c.AddCommand(projectShowCmd())
	c.AddCommand(projectTasksCmd())
	c.AddCommand(projectAdvanceCmd())
	return c
}

func projectListCmd() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, clientID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Sprint"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Category, p.Status, fmt.Sprintf("%d/%d", p.ActiveSprint, p.TotalSprints)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectTasksCmd() *cobra.Command {
	var sprint int
	var status string
	cmd := &cobra.Command{
		Use:   "tasks <project-id>",
		Short: "List project tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTasks(ctx, repo.ProjectTaskFilters{
					ProjectID:    args[0],
					SprintNumber: sprint,
					Status:       status,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Num", "Name", "Sprint", "Status", "Priority", "Depends", "Assigned"})
				for _, t := range items {
					depends := ""
					if t.DependsOn != nil {
						depends = strconv.FormatInt(*t.DependsOn, 10)
					}
					assigned := make([]string, 0, len(t.AssignedTo))
					for _, n := range t.AssignedTo {
						assigned = append(assigned, strconv.FormatInt(n, 10))
					}
					tw.AppendRow(table.Row{t.Num, t.Name, t.SprintNumber, t.Status, t.Priority, depends, strings.Join(assigned, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&sprint, "sprint", 0, "sprint filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func projectAdvanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <project-id>",
		Short: "Advance the active sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adv, err := e.AdvanceSprint(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				fmt.Println(adv.Message)
				return printJSONOrTable(adv.Project)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	c := &cobra.Command{Use: "task", Short: "Work with project tasks"}
	var status string
	set := &cobra.Command{
		Use:   "set-status <task-num>",
		Short: "Update a task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				num, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid task number %q", args[0])
				}
				if err := e.Repo.SetTaskStatus(ctx, nil, num, status); err != nil {
					return err
				}
				t, err := e.Repo.GetTask(ctx, num)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	set.Flags().StringVar(&status, "status", "Done", "new status (Pending, In Progress, Done, Completed)")
	c.AddCommand(set)
	return c
}

func apikeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	c.AddCommand(apikeyCreateCmd())
	c.AddCommand(apikeyListCmd())
	c.AddCommand(apikeyRevokeCmd())
	return c
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := actorID()
				if actor == "" {
					return fmt.Errorf("--actor-id required")
				}
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "ik_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				// The secret is shown once and never stored.
				fmt.Println(secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	c := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	c.AddCommand(tail)
	return c
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, cfg, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			e := engine.New(conn, cfg)
			secret := os.Getenv("INTAKELINE_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("INTAKELINE_JWT_SECRET or auth.jwt_secret is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Intakeline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func actorID() string {
	return viper.GetString("actor-id")
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, cfg, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
