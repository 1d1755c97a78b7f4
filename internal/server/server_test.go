package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"opsboard/internal/board"
	"opsboard/internal/config"
	"opsboard/internal/db"
	"opsboard/internal/domain"
	"opsboard/internal/migrate"
)

const testJWTSecret = "opsboard-test-secret"

type testServer struct {
	URL    string
	Board  board.Board
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b := board.New(conn)
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "alice", Name: "Alice", Role: domain.RoleManager},
		{ID: "bob", Name: "Bob", Role: domain.RoleEmployee},
		{ID: "root", Name: "Root", Role: domain.RoleSuperAdmin},
	} {
		if err := b.Repo.EnsureUser(ctx, nil, u); err != nil {
			t.Fatalf("ensure user %s: %v", u.ID, err)
		}
	}
	handler, err := New(Config{Board: b, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testJWTSecret}})
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
		Board:  b,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func authHeader(t *testing.T, userID, role string) map[string]string {
	t.Helper()
	token, err := IssueToken(testJWTSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
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

func createProject(t *testing.T, srv *testServer, name string, headers map[string]string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name": name,
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Project domain.Project `json:"project"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return envelope.Project.ID
}

func TestRequiresAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	healthRes, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", healthRes.StatusCode)
	}
}

func TestIncidentBoardFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	alice := authHeader(t, "alice", domain.RoleManager)

	projectID := createProject(t, srv, "Ops", alice)
	base := srv.URL + "/v0/projects/" + projectID

	// Fresh project: no stages at all.
	listRes, listBody := doJSON(t, client, http.MethodGet, base+"/stages", nil, alice)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list stages: %d %s", listRes.StatusCode, string(listBody))
	}
	var listed struct {
		Stages []StageResponse `json:"stages"`
	}
	if err := json.Unmarshal(listBody, &listed); err != nil {
		t.Fatalf("unmarshal stages: %v", err)
	}
	if len(listed.Stages) != 0 {
		t.Fatalf("expected empty board, got %d stages", len(listed.Stages))
	}

	var backlog, done StageResponse
	for i, name := range []string{"Backlog", "Done"} {
		res, body := doJSON(t, client, http.MethodPost, base+"/stages", map[string]any{
			"name":      name,
			"stageType": "INCIDENT",
		}, alice)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create stage %s: %d %s", name, res.StatusCode, string(body))
		}
		var envelope struct {
			Stage StageResponse `json:"stage"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			t.Fatalf("unmarshal stage: %v", err)
		}
		if envelope.Stage.Order != i {
			t.Fatalf("stage %s order = %d, want %d", name, envelope.Stage.Order, i)
		}
		if i == 0 {
			backlog = envelope.Stage
		} else {
			done = envelope.Stage
		}
	}
	_ = done

	res, body := doJSON(t, client, http.MethodPost, base+"/incidents", map[string]any{
		"title": "DB down",
	}, alice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create incident: %d %s", res.StatusCode, string(body))
	}
	var created struct {
		Incident domain.Incident `json:"incident"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal incident: %v", err)
	}
	if created.Incident.StageID != nil {
		t.Fatalf("new incident should be unstaged")
	}

	moveRes, moveBody := doJSON(t, client, http.MethodPost, base+"/incidents/"+created.Incident.ID+"/move", map[string]any{
		"stageId": backlog.ID,
	}, alice)
	if moveRes.StatusCode != http.StatusOK {
		t.Fatalf("move incident: %d %s", moveRes.StatusCode, string(moveBody))
	}
	var moved struct {
		Incident domain.Incident `json:"incident"`
	}
	if err := json.Unmarshal(moveBody, &moved); err != nil {
		t.Fatalf("unmarshal moved incident: %v", err)
	}
	if moved.Incident.StageID == nil || *moved.Incident.StageID != backlog.ID {
		t.Fatalf("incident not placed on backlog: %+v", moved.Incident)
	}

	actRes, actBody := doJSON(t, client, http.MethodGet, base+"/activity?itemId="+created.Incident.ID, nil, alice)
	if actRes.StatusCode != http.StatusOK {
		t.Fatalf("list activity: %d %s", actRes.StatusCode, string(actBody))
	}
	var acts struct {
		Activities []ActivityResponse `json:"activities"`
	}
	if err := json.Unmarshal(actBody, &acts); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	if len(acts.Activities) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(acts.Activities))
	}
	if acts.Activities[0].Type != "STATUS_CHANGE" || acts.Activities[0].UserID != "alice" {
		t.Fatalf("unexpected audit row: %+v", acts.Activities[0])
	}
	var payload map[string]any
	if err := json.Unmarshal(acts.Activities[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["message"] != "Moved to stage: Backlog" {
		t.Fatalf("unexpected audit message: %v", payload["message"])
	}

	// A TASK stage in the same project is not a valid incident target.
	taskStageRes, taskStageBody := doJSON(t, client, http.MethodPost, base+"/stages", map[string]any{
		"name":      "To Do",
		"stageType": "TASK",
	}, alice)
	if taskStageRes.StatusCode != http.StatusCreated {
		t.Fatalf("create task stage: %d %s", taskStageRes.StatusCode, string(taskStageBody))
	}
	var taskStage struct {
		Stage StageResponse `json:"stage"`
	}
	_ = json.Unmarshal(taskStageBody, &taskStage)

	badRes, badBody := doJSON(t, client, http.MethodPost, base+"/incidents/"+created.Incident.ID+"/move", map[string]any{
		"stageId": taskStage.Stage.ID,
	}, alice)
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for cross-type move, got %d %s", badRes.StatusCode, string(badBody))
	}
	stillRes, stillBody := doJSON(t, client, http.MethodGet, base+"/incidents/"+created.Incident.ID, nil, alice)
	if stillRes.StatusCode != http.StatusOK {
		t.Fatalf("get incident: %d", stillRes.StatusCode)
	}
	var still struct {
		Incident domain.Incident `json:"incident"`
	}
	_ = json.Unmarshal(stillBody, &still)
	if still.Incident.StageID == nil || *still.Incident.StageID != backlog.ID {
		t.Fatalf("failed move must not change placement: %+v", still.Incident)
	}

	// A stage from another project is equally invalid, even with a
	// matching type.
	otherProject := createProject(t, srv, "Other", alice)
	otherRes, otherBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+otherProject+"/stages", map[string]any{
		"name":      "Elsewhere",
		"stageType": "INCIDENT",
	}, alice)
	if otherRes.StatusCode != http.StatusCreated {
		t.Fatalf("create foreign stage: %d %s", otherRes.StatusCode, string(otherBody))
	}
	var foreign struct {
		Stage StageResponse `json:"stage"`
	}
	_ = json.Unmarshal(otherBody, &foreign)

	crossRes, crossBody := doJSON(t, client, http.MethodPost, base+"/incidents/"+created.Incident.ID+"/move", map[string]any{
		"stageId": foreign.Stage.ID,
	}, alice)
	if crossRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for cross-project move, got %d %s", crossRes.StatusCode, string(crossBody))
	}

	// Stage listing counts the placed incident.
	countRes, countBody := doJSON(t, client, http.MethodGet, base+"/stages", nil, alice)
	if countRes.StatusCode != http.StatusOK {
		t.Fatalf("list stages: %d", countRes.StatusCode)
	}
	var counted struct {
		Stages []StageResponse `json:"stages"`
	}
	if err := json.Unmarshal(countBody, &counted); err != nil {
		t.Fatalf("unmarshal stages: %v", err)
	}
	for _, s := range counted.Stages {
		if s.ID == backlog.ID {
			if s.Count == nil || s.Count.Incidents != 1 {
				t.Fatalf("backlog count wrong: %+v", s.Count)
			}
		}
	}
}

func TestInternalErrorEnvelopeIsGeneric(t *testing.T) {
	statusErr := handleError(errors.New("sqlite: disk I/O error on /var/db"))
	apiErr, ok := statusErr.(*apiError)
	if !ok {
		t.Fatalf("expected apiError, got %T", statusErr)
	}
	if apiErr.GetStatus() != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", apiErr.GetStatus())
	}
	if apiErr.Body.Message != "internal error" {
		t.Fatalf("client message must stay generic, got %q", apiErr.Body.Message)
	}
	if apiErr.Body.Details != nil {
		t.Fatalf("store detail must not reach the client: %v", apiErr.Body.Details)
	}
}

func TestWebhookSkipsHistoricalActivity(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	b := srv.Board
	ctx := context.Background()

	p, err := b.InitProject(ctx, "", "Ops", "alice")
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	stage, err := b.CreateStage(ctx, board.StageCreateOptions{
		ProjectID: p.ID, Name: "Backlog", StageType: domain.StageTypeIncident,
		UserID: "alice", Role: domain.RoleManager,
	})
	if err != nil {
		t.Fatalf("create stage: %v", err)
	}
	inc, err := b.CreateIncident(ctx, board.IncidentCreateOptions{
		ProjectID: p.ID, Title: "DB down", UserID: "alice", Role: domain.RoleManager,
	})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	// One audit row exists before the dispatcher ever runs.
	if err := b.Move(ctx, board.MoveOptions{
		ProjectID: p.ID, Kind: domain.KindIncident, ItemID: inc.ID,
		StageID: &stage.ID, UserID: "alice", Role: domain.RoleManager,
	}); err != nil {
		t.Fatalf("move: %v", err)
	}

	var mu sync.Mutex
	var deliveries []string
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deliveries = append(deliveries, r.Header.Get("X-Opsboard-Delivery"))
		mu.Unlock()
	}))
	defer sink.Close()

	d := &webhookDispatcher{
		board:    b,
		webhooks: []config.Webhook{{URL: sink.URL}},
		client:   sink.Client(),
		cursors:  make(map[int]int64),
	}

	// First pass seeds the cursor at the newest row; history is not replayed.
	d.dispatchAll()
	mu.Lock()
	replayed := len(deliveries)
	mu.Unlock()
	if replayed != 0 {
		t.Fatalf("historical rows replayed to the sink: %v", deliveries)
	}

	if err := b.Move(ctx, board.MoveOptions{
		ProjectID: p.ID, Kind: domain.KindIncident, ItemID: inc.ID,
		StageID: nil, UserID: "alice", Role: domain.RoleManager,
	}); err != nil {
		t.Fatalf("second move: %v", err)
	}
	latest, err := b.Repo.LatestActivityID(ctx, "")
	if err != nil {
		t.Fatalf("latest activity id: %v", err)
	}

	d.dispatchAll()
	mu.Lock()
	defer mu.Unlock()
	if len(deliveries) != 1 {
		t.Fatalf("expected exactly the post-startup row, got %v", deliveries)
	}
	if deliveries[0] != strconv.FormatInt(latest, 10) {
		t.Fatalf("delivery %s, want %d", deliveries[0], latest)
	}
}

func TestCommentModeration(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	alice := authHeader(t, "alice", domain.RoleManager)
	bob := authHeader(t, "bob", domain.RoleEmployee)
	root := authHeader(t, "root", domain.RoleSuperAdmin)

	projectID := createProject(t, srv, "Ops", alice)
	base := srv.URL + "/v0/projects/" + projectID

	// Bob joins the project so he can comment at all.
	memberRes, memberBody := doJSON(t, client, http.MethodPost, base+"/members", map[string]any{
		"userId": "bob",
	}, alice)
	if memberRes.StatusCode != http.StatusCreated {
		t.Fatalf("add member: %d %s", memberRes.StatusCode, string(memberBody))
	}

	reqRes, reqBody := doJSON(t, client, http.MethodPost, base+"/resource-requests", map[string]any{
		"title": "Need a staging VM",
	}, alice)
	if reqRes.StatusCode != http.StatusCreated {
		t.Fatalf("create request: %d %s", reqRes.StatusCode, string(reqBody))
	}
	var request struct {
		ResourceRequest domain.ResourceRequest `json:"resourceRequest"`
	}
	if err := json.Unmarshal(reqBody, &request); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	commentsURL := base + "/resource-requests/" + request.ResourceRequest.ID + "/comments"

	comRes, comBody := doJSON(t, client, http.MethodPost, commentsURL, map[string]any{
		"content": "approved by infra",
	}, alice)
	if comRes.StatusCode != http.StatusCreated {
		t.Fatalf("create comment: %d %s", comRes.StatusCode, string(comBody))
	}
	var comment struct {
		Comment domain.Comment `json:"comment"`
	}
	if err := json.Unmarshal(comBody, &comment); err != nil {
		t.Fatalf("unmarshal comment: %v", err)
	}
	commentURL := commentsURL + "/" + comment.Comment.ID

	// Non-author, non-elevated: forbidden.
	editRes, editBody := doJSON(t, client, http.MethodPut, commentURL, map[string]any{
		"content": "hijacked",
	}, bob)
	if editRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for bob, got %d %s", editRes.StatusCode, string(editBody))
	}
	delRes, delBody := doJSON(t, client, http.MethodDelete, commentURL, nil, bob)
	if delRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for bob delete, got %d %s", delRes.StatusCode, string(delBody))
	}

	// Empty content after trim: validation error.
	emptyRes, emptyBody := doJSON(t, client, http.MethodPut, commentURL, map[string]any{
		"content": "   ",
	}, alice)
	if emptyRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content, got %d %s", emptyRes.StatusCode, string(emptyBody))
	}

	// Author may edit.
	okRes, okBody := doJSON(t, client, http.MethodPut, commentURL, map[string]any{
		"content": "approved by infra (updated)",
	}, alice)
	if okRes.StatusCode != http.StatusOK {
		t.Fatalf("author edit: %d %s", okRes.StatusCode, string(okBody))
	}
	var updated struct {
		Comment domain.Comment `json:"comment"`
	}
	if err := json.Unmarshal(okBody, &updated); err != nil {
		t.Fatalf("unmarshal updated comment: %v", err)
	}
	if updated.Comment.Content != "approved by infra (updated)" {
		t.Fatalf("content not updated: %q", updated.Comment.Content)
	}

	// Wrong project scope: 404, never 403.
	otherProject := createProject(t, srv, "Other", alice)
	wrongURL := srv.URL + "/v0/projects/" + otherProject + "/resource-requests/" + request.ResourceRequest.ID + "/comments/" + comment.Comment.ID
	wrongRes, wrongBody := doJSON(t, client, http.MethodPut, wrongURL, map[string]any{
		"content": "out of scope",
	}, bob)
	if wrongRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong project, got %d %s", wrongRes.StatusCode, string(wrongBody))
	}

	// Elevated role may delete someone else's comment.
	rootDelRes, rootDelBody := doJSON(t, client, http.MethodDelete, commentURL, nil, root)
	if rootDelRes.StatusCode != http.StatusOK {
		t.Fatalf("elevated delete: %d %s", rootDelRes.StatusCode, string(rootDelBody))
	}
	var deleted struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rootDelBody, &deleted); err != nil {
		t.Fatalf("unmarshal delete response: %v", err)
	}
	if !deleted.Success {
		t.Fatalf("expected success true")
	}

	goneRes, _ := doJSON(t, client, http.MethodDelete, commentURL, nil, root)
	if goneRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted comment, got %d", goneRes.StatusCode)
	}
}
