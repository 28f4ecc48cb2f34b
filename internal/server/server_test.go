package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"intakeline/internal/config"
	"intakeline/internal/db"
	"intakeline/internal/domain"
	"intakeline/internal/engine"
	"intakeline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("intakeline")
	cfg.Auth.JWTSecret = "test-secret"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              cfg.Auth.JWTSecret,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, actorID string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func mustStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("status %d, want %d: %s", res.StatusCode, want, string(data))
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/clients", map[string]any{
		"name": "Acme Corp", "company": "Acme",
	}, "setup")
	mustStatus(t, res, data, http.StatusCreated)
	var acme domain.Client
	_ = json.Unmarshal(data, &acme)

	res, data = doJSON(t, client, http.MethodPost, base+"/employees", map[string]any{
		"name":                 "Sam",
		"role":                 "manager",
		"department":           "Development",
		"approves_departments": []string{"Design", "Development", "QA"},
	}, "setup")
	mustStatus(t, res, data, http.StatusCreated)
	var manager domain.Employee
	_ = json.Unmarshal(data, &manager)

	var devon, daisy, quincy domain.Employee
	for _, spec := range []struct {
		out  *domain.Employee
		name string
		dept string
	}{
		{&devon, "Devon", "Development"},
		{&daisy, "Daisy", "Design"},
		{&quincy, "Quincy", "QA"},
	} {
		res, data = doJSON(t, client, http.MethodPost, base+"/employees", map[string]any{
			"name": spec.name, "role": "employee", "department": spec.dept,
		}, "setup")
		mustStatus(t, res, data, http.StatusCreated)
		_ = json.Unmarshal(data, spec.out)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/requests", map[string]any{
		"request_type": "web_dev",
		"title":        "Customer portal",
		"description":  "A portal for customers",
	}, acme.ID)
	mustStatus(t, res, data, http.StatusCreated)
	var req RequestResponse
	_ = json.Unmarshal(data, &req)
	if req.Status != "submitted" {
		t.Fatalf("status = %s", req.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+req.ID+"/workflow", nil, manager.ID)
	mustStatus(t, res, data, http.StatusOK)
	_ = json.Unmarshal(data, &req)
	if len(req.Workflow) != 4 || len(req.Approvals) != 3 {
		t.Fatalf("workflow %d approvals %d", len(req.Workflow), len(req.Approvals))
	}

	for _, dept := range []string{"Design", "Development", "QA"} {
		res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+req.ID+"/approvals/approve", map[string]any{
			"department": dept,
		}, manager.ID)
		mustStatus(t, res, data, http.StatusOK)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+req.ID+"/assignments", map[string]any{
		"assignments": map[string][]string{
			"wt-1": {daisy.ID},
			"wt-2": {devon.ID},
			"wt-3": {devon.ID},
			"wt-4": {quincy.ID},
		},
	}, manager.ID)
	mustStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+req.ID+"/approve", nil, manager.ID)
	mustStatus(t, res, data, http.StatusOK)
	var conv ConversionResponse
	_ = json.Unmarshal(data, &conv)
	if conv.Request.Status != "converted" {
		t.Fatalf("request status = %s", conv.Request.Status)
	}
	if conv.Project.TotalSprints != 2 || conv.Project.ActiveSprint != 1 {
		t.Fatalf("project sprints %d/%d", conv.Project.ActiveSprint, conv.Project.TotalSprints)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/projects/"+conv.Project.ID+"/tasks?sprint=1", nil, manager.ID)
	mustStatus(t, res, data, http.StatusOK)
	var sprint1 []domain.Task
	_ = json.Unmarshal(data, &sprint1)
	if len(sprint1) != 2 {
		t.Fatalf("sprint 1 has %d tasks", len(sprint1))
	}
	for _, task := range sprint1 {
		res, data = doJSON(t, client, http.MethodPatch, base+fmt.Sprintf("/tasks/%d", task.Num), map[string]any{
			"status": "Done",
		}, manager.ID)
		mustStatus(t, res, data, http.StatusOK)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/projects/"+conv.Project.ID+"/sprint/advance", nil, manager.ID)
	mustStatus(t, res, data, http.StatusOK)
	var adv SprintAdvanceResponse
	_ = json.Unmarshal(data, &adv)
	if adv.Project.ActiveSprint != 2 {
		t.Fatalf("active sprint = %d", adv.Project.ActiveSprint)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	// no credentials at all
	res, data := doJSON(t, client, http.MethodGet, base+"/requests", nil, "")
	mustStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, client, http.MethodGet, base+"/requests/nope", nil, "setup")
	mustStatus(t, res, data, http.StatusNotFound)
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}

	// state machine violation surfaces as invalid_state
	cl, err := srv.Engine.CreateClient(context.Background(), "C", "", "")
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := srv.Engine.CreateEmployee(context.Background(), engine.CreateEmployeeOptions{
		Name: "M", Role: "manager", Department: "Development",
		ApprovesDepartments: []string{"Development"},
	})
	if err != nil {
		t.Fatal(err)
	}
	req, err := srv.Engine.CreateRequest(context.Background(), engine.CreateRequestOptions{
		ActorID: cl.ID, RequestType: "web_dev", Title: "T",
	})
	if err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+req.ID+"/approvals/approve", map[string]any{}, mgr.ID)
	mustStatus(t, res, data, http.StatusConflict)
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "invalid_state" {
		t.Fatalf("unexpected envelope: %s", string(data))
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1"

	emp, err := srv.Engine.CreateEmployee(context.Background(), engine.CreateEmployeeOptions{
		Name: "Sam", Role: "manager", Department: "Development",
	})
	if err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, client, http.MethodPost, base+"/auth/dev/login", map[string]any{
		"actor_id": emp.ID,
	}, "")
	mustStatus(t, res, data, http.StatusOK)
	var login DevLoginResponse
	_ = json.Unmarshal(data, &login)
	if login.Token == "" {
		t.Fatalf("empty token")
	}

	httpReq, err := http.NewRequest(http.MethodGet, base+"/me", nil)
	if err != nil {
		t.Fatal(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+login.Token)
	meRes, err := client.Do(httpReq)
	if err != nil {
		t.Fatal(err)
	}
	defer meRes.Body.Close()
	body, _ := io.ReadAll(meRes.Body)
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", meRes.StatusCode, string(body))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(body, &who)
	if who.ActorID != emp.ID || who.Kind != "employee" || who.Role != "manager" {
		t.Fatalf("unexpected whoami: %+v", who)
	}
}
