package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/internal/server"
	"github.com/thinkstack/apiserver/internal/store/memstore"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cfg := config.Config{
		CORSOrigins: []string{"http://localhost:3000"},
		Auth:        config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Policy:      config.PolicyConfig{PointsMode: "score", FlatPoints: 10, AdminSecret: "letmein"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svcs := server.NewServices(memstore.New(), cfg.Policy, nil, logger, clock)
	srv := httptest.NewServer(server.NewRouter(svcs, cfg, logger, clock))
	t.Cleanup(srv.Close)
	return &apiClient{t: t, server: srv}
}

func (c *apiClient) do(method, path, token string, body any) (int, map[string]any, []byte) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.server.URL+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded, raw
}

func (c *apiClient) expect(method, path, token string, body any, status int) map[string]any {
	c.t.Helper()
	got, decoded, raw := c.do(method, path, token, body)
	if got != status {
		c.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, status, got, raw)
	}
	return decoded
}

func (c *apiClient) register(name, role string) (string, int64) {
	c.t.Helper()
	resp := c.expect(http.MethodPost, "/auth/register", "", map[string]string{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret1",
		"role":     role,
	}, http.StatusCreated)
	return resp["token"].(string), int64(resp["user"].(map[string]any)["id"].(float64))
}

func TestHealthz(t *testing.T) {
	api := newAPI(t)
	resp := api.expect(http.MethodGet, "/healthz", "", nil, http.StatusOK)
	if resp["status"] != "ok" {
		t.Fatalf("unexpected body %v", resp)
	}
}

func TestAuthFlow(t *testing.T) {
	api := newAPI(t)
	token, id := api.register("alice", "solver")

	me := api.expect(http.MethodGet, "/auth/me", token, nil, http.StatusOK)
	if int64(me["id"].(float64)) != id || me["role"] != "SOLVER" {
		t.Fatalf("unexpected me %v", me)
	}
	if _, ok := me["PasswordHash"]; ok {
		t.Fatal("password hash leaked")
	}

	resp := api.expect(http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Alice", "email": "ALICE@example.com", "password": "secret1",
	}, http.StatusConflict)
	if resp["code"] != "DUPLICATE_EMAIL" {
		t.Fatalf("unexpected error %v", resp)
	}

	resp = api.expect(http.MethodPost, "/auth/register", "", map[string]string{
		"name": "mallory", "email": "mallory@example.com", "password": "secret1", "role": "ADMIN",
	}, http.StatusForbidden)
	if resp["code"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected error %v", resp)
	}

	api.expect(http.MethodPost, "/auth/register", "", map[string]string{
		"name": "bob", "email": "bob@example.com", "password": "12345",
	}, http.StatusBadRequest)

	api.expect(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	}, http.StatusUnauthorized)
	login := api.expect(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "Alice@Example.com", "password": "secret1",
	}, http.StatusOK)
	if login["token"] == "" {
		t.Fatalf("expected a token, got %v", login)
	}

	api.expect(http.MethodGet, "/auth/me", "", nil, http.StatusUnauthorized)
	api.expect(http.MethodGet, "/auth/me", "not-a-jwt", nil, http.StatusUnauthorized)

	api.expect(http.MethodPost, "/auth/admin-register", "", map[string]string{
		"name": "root", "email": "root@example.com", "password": "secret1", "admin_secret": "nope",
	}, http.StatusForbidden)
	admin := api.expect(http.MethodPost, "/auth/admin-register", "", map[string]string{
		"name": "root", "email": "root@example.com", "password": "secret1", "admin_secret": "letmein",
	}, http.StatusCreated)
	if admin["user"].(map[string]any)["role"] != "ADMIN" {
		t.Fatalf("unexpected admin %v", admin)
	}

	api.expect(http.MethodPost, "/auth/login", "", map[string]any{"email": "x@example.com", "extra": 1}, http.StatusBadRequest)
}

func TestChallengeLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)
	owner, _ := api.register("carol", "challenger")
	solver, solverID := api.register("alice", "solver")
	admin := api.expect(http.MethodPost, "/auth/admin-register", "", map[string]string{
		"name": "root", "email": "root@example.com", "password": "secret1", "admin_secret": "letmein",
	}, http.StatusCreated)["token"].(string)

	challenge := map[string]any{
		"title":             "Build a ranker",
		"description":       "Rank things deterministically.",
		"category":          "Algorithms",
		"participationType": "individual",
		"cashPrize":         50,
		"deadline":          "2026-10-08T12:00:00Z",
	}
	api.expect(http.MethodPost, "/challenges", solver, challenge, http.StatusForbidden)
	api.expect(http.MethodPost, "/challenges", "", challenge, http.StatusUnauthorized)

	status, created, raw := api.do(http.MethodPost, "/challenges", owner, challenge)
	if status != http.StatusCreated {
		t.Fatalf("create challenge: %d %s", status, raw)
	}
	if created["status"] != "PENDING" || created["createdBy"] != "carol" || created["daysRemaining"] != float64(7) {
		t.Fatalf("unexpected challenge %v", created)
	}
	if !strings.Contains(string(raw), `"cashPrize":50.00`) {
		t.Fatalf("expected a two-digit decimal prize, got %s", raw)
	}
	id := int64(created["id"].(float64))
	path := fmt.Sprintf("/challenges/%d", id)

	api.expect(http.MethodPost, "/solutions", solver, map[string]any{"challenge_id": id, "content": "early"}, http.StatusConflict)

	api.expect(http.MethodPatch, path+"/status", owner, map[string]string{"status": "APPROVED"}, http.StatusForbidden)
	api.expect(http.MethodPatch, path+"/status", admin, map[string]string{"status": "COMPLETED"}, http.StatusConflict)
	api.expect(http.MethodPatch, path+"/status", admin, map[string]string{"status": "approved"}, http.StatusOK)
	active := api.expect(http.MethodPatch, path+"/status", admin, map[string]string{"status": "ACTIVE"}, http.StatusOK)
	if active["status"] != "ACTIVE" {
		t.Fatalf("unexpected challenge %v", active)
	}

	submitted := api.expect(http.MethodPost, "/solutions", solver, map[string]any{
		"challenge_id": id,
		"content":      "my ranker",
		"attachments":  "https://github.com/alice/ranker",
	}, http.StatusCreated)
	solutionPath := fmt.Sprintf("/solutions/%d", int64(submitted["id"].(float64)))
	if submitted["status"] != "SUBMITTED" {
		t.Fatalf("unexpected solution %v", submitted)
	}

	resp := api.expect(http.MethodPost, "/solutions", solver, map[string]any{"challenge_id": id, "content": "again"}, http.StatusConflict)
	if resp["code"] != "DUPLICATE_SUBMISSION" {
		t.Fatalf("unexpected error %v", resp)
	}

	resp = api.expect(http.MethodPut, path, owner, map[string]any{"title": "Build a better ranker"}, http.StatusConflict)
	if resp["code"] != "IMMUTABLE" {
		t.Fatalf("unexpected error %v", resp)
	}
	api.expect(http.MethodDelete, path, owner, nil, http.StatusConflict)

	api.expect(http.MethodGet, solutionPath, owner, nil, http.StatusOK)
	api.expect(http.MethodPost, solutionPath+"/grade", owner, map[string]int{"score": 80}, http.StatusForbidden)
	api.expect(http.MethodPost, solutionPath+"/grade", admin, map[string]int{"score": -1}, http.StatusBadRequest)
	api.expect(http.MethodPost, solutionPath+"/grade", admin, map[string]any{}, http.StatusBadRequest)
	graded := api.expect(http.MethodPost, solutionPath+"/grade", admin, map[string]int{"score": 80}, http.StatusOK)
	if graded["status"] != "GRADED" || graded["score"] != float64(80) {
		t.Fatalf("unexpected solution %v", graded)
	}
	api.expect(http.MethodPost, solutionPath+"/grade", admin, map[string]int{"score": 90}, http.StatusConflict)

	_, _, raw = api.do(http.MethodGet, "/leaderboard", "", nil)
	var ranked []map[string]any
	if err := json.Unmarshal(raw, &ranked); err != nil {
		t.Fatalf("decode leaderboard: %v (%s)", err, raw)
	}
	if len(ranked) != 1 || ranked[0]["user_name"] != "alice" || ranked[0]["score"] != float64(80) {
		t.Fatalf("unexpected leaderboard %s", raw)
	}
	entry := api.expect(http.MethodGet, fmt.Sprintf("/leaderboard/users/%d", solverID), "", nil, http.StatusOK)
	if entry["challenges_completed"] != float64(1) {
		t.Fatalf("unexpected entry %v", entry)
	}

	list := api.expect(http.MethodGet, "/challenges?status=active&category=Algorithms", "", nil, http.StatusOK)
	items := list["items"].([]any)
	if list["total"] != float64(1) || len(items) != 1 || items[0].(map[string]any)["solutionCount"] != float64(1) {
		t.Fatalf("unexpected list %v", list)
	}
	api.expect(http.MethodGet, "/challenges?status=LIVE", "", nil, http.StatusBadRequest)
	api.expect(http.MethodGet, "/challenges?page=0", "", nil, http.StatusBadRequest)

	_, _, raw = api.do(http.MethodGet, "/challenges/categories", "", nil)
	if strings.TrimSpace(string(raw)) != `["Algorithms"]` {
		t.Fatalf("unexpected categories %s", raw)
	}

	api.expect(http.MethodGet, "/challenges/999", "", nil, http.StatusNotFound)
	api.expect(http.MethodGet, "/challenges/abc", "", nil, http.StatusBadRequest)
}

func TestChallengeListingHidesUnpublished(t *testing.T) {
	api := newAPI(t)
	owner, ownerID := api.register("carol", "challenger")
	solver, _ := api.register("alice", "solver")
	admin := api.expect(http.MethodPost, "/auth/admin-register", "", map[string]string{
		"name": "root", "email": "root@example.com", "password": "secret1", "admin_secret": "letmein",
	}, http.StatusCreated)["token"].(string)

	var ids []int64
	for _, title := range []string{"Pending one", "Approved one"} {
		created := api.expect(http.MethodPost, "/challenges", owner, map[string]any{
			"title":             title,
			"description":       "Listing visibility.",
			"participationType": "INDIVIDUAL",
			"cashPrize":         10,
			"deadline":          "2026-10-08T12:00:00Z",
		}, http.StatusCreated)
		ids = append(ids, int64(created["id"].(float64)))
	}
	api.expect(http.MethodPatch, fmt.Sprintf("/challenges/%d/status", ids[1]), admin, map[string]string{"status": "APPROVED"}, http.StatusOK)

	total := func(path, token string) float64 {
		t.Helper()
		return api.expect(http.MethodGet, path, token, nil, http.StatusOK)["total"].(float64)
	}
	mine := fmt.Sprintf("/challenges?owner=%d", ownerID)

	if got := total("/challenges", ""); got != 1 {
		t.Fatalf("anonymous listing: expected 1, got %v", got)
	}
	if got := total("/challenges?status=PENDING", ""); got != 0 {
		t.Fatalf("anonymous pending listing: expected 0, got %v", got)
	}
	if got := total(mine, solver); got != 1 {
		t.Fatalf("solver listing carol: expected 1, got %v", got)
	}
	if got := total(mine, owner); got != 2 {
		t.Fatalf("carol listing her own: expected 2, got %v", got)
	}
	if got := total("/challenges", admin); got != 2 {
		t.Fatalf("admin listing: expected 2, got %v", got)
	}
	api.expect(http.MethodGet, "/challenges", "not-a-jwt", nil, http.StatusUnauthorized)
}

func TestAdminRoutes(t *testing.T) {
	api := newAPI(t)
	solver, solverID := api.register("alice", "solver")
	admin := api.expect(http.MethodPost, "/auth/admin-register", "", map[string]string{
		"name": "root", "email": "root@example.com", "password": "secret1", "admin_secret": "letmein",
	}, http.StatusCreated)["token"].(string)

	api.expect(http.MethodPost, "/admin/challenges/expire", solver, nil, http.StatusForbidden)
	expired := api.expect(http.MethodPost, "/admin/challenges/expire", admin, nil, http.StatusOK)
	if completed := expired["completed"].([]any); len(completed) != 0 {
		t.Fatalf("unexpected expiry %v", expired)
	}

	userPath := fmt.Sprintf("/admin/users/%d", solverID)
	adjusted := api.expect(http.MethodPut, fmt.Sprintf("/admin/leaderboard/users/%d", solverID), admin, map[string]int{
		"score": 15, "challenges_completed": 2,
	}, http.StatusOK)
	if adjusted["score"] != float64(15) {
		t.Fatalf("unexpected entry %v", adjusted)
	}

	user := api.expect(http.MethodPatch, userPath, admin, map[string]bool{"verified": true}, http.StatusOK)
	if user["is_verified"] != true {
		t.Fatalf("unexpected user %v", user)
	}
	api.expect(http.MethodPatch, userPath, admin, map[string]string{"role": "wizard"}, http.StatusBadRequest)
	api.expect(http.MethodPatch, userPath, admin, map[string]bool{"suspended": true}, http.StatusOK)

	resp := api.expect(http.MethodGet, "/auth/me", solver, nil, http.StatusUnauthorized)
	if resp["code"] != "ACCOUNT_SUSPENDED" {
		t.Fatalf("unexpected error %v", resp)
	}
	api.expect(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	}, http.StatusUnauthorized)
}

func TestTeamRoutes(t *testing.T) {
	api := newAPI(t)
	alice, _ := api.register("alice", "solver")
	bob, bobID := api.register("bob", "solver")

	api.expect(http.MethodPost, "/teams", "", map[string]string{"name": "Pathfinders"}, http.StatusUnauthorized)
	team := api.expect(http.MethodPost, "/teams", alice, map[string]string{"name": "Pathfinders"}, http.StatusCreated)
	teamPath := fmt.Sprintf("/teams/%d", int64(team["id"].(float64)))

	api.expect(http.MethodPost, teamPath+"/members", bob, map[string]int64{"user_id": bobID}, http.StatusForbidden)
	updated := api.expect(http.MethodPost, teamPath+"/members", alice, map[string]int64{"user_id": bobID}, http.StatusOK)
	if members := updated["members"].([]any); len(members) != 2 {
		t.Fatalf("unexpected members %v", updated)
	}
	api.expect(http.MethodGet, teamPath, bob, nil, http.StatusOK)
	api.expect(http.MethodGet, "/teams/404", bob, nil, http.StatusNotFound)
}
