package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"intakeline/internal/config"
	"intakeline/internal/domain"
	"intakeline/internal/engine/authz"
	"intakeline/internal/events"
	"intakeline/internal/planner"
	"intakeline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Planner planner.Planner
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		Events:  events.Writer{DB: db},
		Planner: planner.Rulebook{Repo: r},
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Actor is the resolved acting user: exactly one of Client or Employee is set.
type Actor struct {
	ID       string
	Client   *domain.Client
	Employee *domain.Employee
}

func (a Actor) IsManager() bool {
	return a.Employee != nil && a.Employee.Role == "manager"
}

func (a Actor) ApprovesDepartments() []string {
	if a.Employee == nil {
		return nil
	}
	return a.Employee.ApprovesDepartments
}

// resolveActor looks the acting id up in the employee directory first, then
// the client directory.
func (e Engine) resolveActor(ctx context.Context, actorID string) (Actor, error) {
	if actorID == "" {
		return Actor{}, authz.InvalidInputError{Field: "actor", Reason: "actor id required"}
	}
	if emp, err := e.Repo.GetEmployee(ctx, actorID); err == nil {
		return Actor{ID: actorID, Employee: &emp}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Actor{}, err
	}
	if c, err := e.Repo.GetClient(ctx, actorID); err == nil {
		return Actor{ID: actorID, Client: &c}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Actor{}, err
	}
	return Actor{}, repo.ErrNotFound
}

// requireManager resolves the actor and checks the manager role.
func (e Engine) requireManager(ctx context.Context, actorID string) (Actor, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsManager() {
		return Actor{}, authz.ForbiddenError{Reason: "manager role required"}
	}
	return actor, nil
}

type CreateRequestOptions struct {
	ActorID      string
	RequestType  string
	Title        string
	Description  string
	Requirements []string
}

// CreateRequest submits a new request for the acting client.
func (e Engine) CreateRequest(ctx context.Context, opts CreateRequestOptions) (domain.Request, error) {
	if opts.Title == "" {
		return domain.Request{}, authz.InvalidInputError{Field: "title", Reason: "title is required"}
	}
	if !e.allowedType(opts.RequestType) {
		return domain.Request{}, authz.InvalidInputError{Field: "request_type", Reason: "unknown request type " + opts.RequestType}
	}
	actor, err := e.resolveActor(ctx, opts.ActorID)
	if err != nil {
		return domain.Request{}, err
	}
	if actor.Client == nil {
		return domain.Request{}, authz.ForbiddenError{Reason: "only clients submit requests"}
	}
	now := e.nowStr()
	req := domain.Request{
		ID:           uuid.New().String(),
		ClientID:     actor.Client.ID,
		RequestType:  opts.RequestType,
		Title:        opts.Title,
		Description:  opts.Description,
		Requirements: opts.Requirements,
		Status:       domain.StatusSubmitted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.created", "request", req.ID, actor.ID, events.EventPayload{
		"request_type": req.RequestType,
		"title":        req.Title,
	}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

func (e Engine) allowedType(t string) bool {
	if e.Config == nil || len(e.Config.Requests.AllowedTypes) == 0 {
		return t == domain.TypeWebDev || t == domain.TypeAppDev || t == domain.TypePrototype || t == domain.TypeResearch
	}
	for _, a := range e.Config.Requests.AllowedTypes {
		if a == t {
			return true
		}
	}
	return false
}

type UpdateRequestOptions struct {
	ID              string
	ActorID         string
	Title           *string
	Description     *string
	Requirements    []string
	RequirementsSet bool
}

// UpdateRequest edits the client-editable fields. Legal only while the
// request is still submitted and only for the owning client.
func (e Engine) UpdateRequest(ctx context.Context, opts UpdateRequestOptions) (domain.Request, error) {
	req, err := e.Repo.GetRequestRow(ctx, nil, opts.ID)
	if err != nil {
		return domain.Request{}, err
	}
	actor, err := e.resolveActor(ctx, opts.ActorID)
	if err != nil {
		return domain.Request{}, err
	}
	if actor.Client == nil || actor.Client.ID != req.ClientID {
		return domain.Request{}, authz.ForbiddenError{Reason: "only the owning client may edit a request"}
	}
	if req.Status != domain.StatusSubmitted {
		return domain.Request{}, authz.InvalidStateError{Reason: "request is no longer editable (status " + req.Status + ")"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRequestFields(ctx, tx, req.ID, opts.Title, opts.Description, opts.Requirements, opts.RequirementsSet, e.nowStr()); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.updated", "request", req.ID, actor.ID, nil); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return e.Repo.GetRequest(ctx, req.ID)
}

// RejectRequest rejects a pre-conversion request. The ledger and assignment
// map are left intact for audit.
func (e Engine) RejectRequest(ctx context.Context, requestID, reviewNotes, actorID string) (domain.Request, error) {
	actor, err := e.requireManager(ctx, actorID)
	if err != nil {
		return domain.Request{}, err
	}
	req, err := e.Repo.GetRequestRow(ctx, nil, requestID)
	if err != nil {
		return domain.Request{}, err
	}
	switch req.Status {
	case domain.StatusConverted:
		return domain.Request{}, authz.InvalidStateError{Reason: "request already converted"}
	case domain.StatusRejected:
		return domain.Request{}, authz.InvalidStateError{Reason: "request already rejected"}
	}
	if reviewNotes == "" {
		reviewNotes = e.defaultRejectNote()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkRequestRejected(ctx, tx, req.ID, reviewNotes, e.nowStr()); err != nil {
		return domain.Request{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.rejected", "request", req.ID, actor.ID, events.EventPayload{
		"from_status": req.Status,
		"notes":       reviewNotes,
	}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return e.Repo.GetRequest(ctx, req.ID)
}

func (e Engine) defaultRejectNote() string {
	if e.Config != nil && e.Config.Requests.DefaultRejectNote != "" {
		return e.Config.Requests.DefaultRejectNote
	}
	return "Request rejected by manager review."
}

func (e Engine) tasksPerSprint() int {
	if e.Config != nil && e.Config.Sprints.TasksPerSprint > 0 {
		return e.Config.Sprints.TasksPerSprint
	}
	return 2
}
