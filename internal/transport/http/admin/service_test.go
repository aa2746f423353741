package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/domain/report/ledger"
	"cleancity-server-go/internal/platform/config"
	platformtesting "cleancity-server-go/internal/platform/testing"
)

func newTestService(t *testing.T) (*Service, *gin.Engine, ledger.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := platformtesting.SetupTestConfig(t)
	cfg.Server.Token = "static-token"
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.AdminUser = "operator"
	cfg.Server.AdminPass = "hunter2"

	store, err := ledger.New(config.LedgerConfig{Driver: "memory"}, ledger.Dependencies{})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	svc, err := NewService(cfg, store, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	engine := gin.New()
	if err := svc.Register(context.Background(), engine.Group("/api")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return svc, engine, store
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: bad envelope: %v", method, path, err)
	}
	return rec.Code, resp
}

func TestLoginIssuesUsableToken(t *testing.T) {
	_, engine, _ := newTestService(t)

	code, resp := doJSON(t, engine, http.MethodPost, "/api/admin/login", "",
		map[string]string{"username": "operator", "password": "hunter2"})
	if code != http.StatusOK {
		t.Fatalf("login returned %d", code)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp["data"], &data); err != nil || data.Token == "" {
		t.Fatalf("login response missing token: %v", err)
	}

	code, _ = doJSON(t, engine, http.MethodGet, "/api/admin/stats", data.Token, nil)
	if code != http.StatusOK {
		t.Errorf("JWT rejected by secured route: %d", code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, engine, _ := newTestService(t)

	cases := []map[string]string{
		{"username": "operator", "password": "wrong"},
		{"username": "intruder", "password": "hunter2"},
		{},
	}
	for _, body := range cases {
		if code, _ := doJSON(t, engine, http.MethodPost, "/api/admin/login", "", body); code != http.StatusUnauthorized {
			t.Errorf("expected 401 for %v, got %d", body, code)
		}
	}
}

func TestStaticTokenAuth(t *testing.T) {
	_, engine, _ := newTestService(t)

	code, _ := doJSON(t, engine, http.MethodGet, "/api/admin/stats", "static-token", nil)
	if code != http.StatusOK {
		t.Errorf("static token rejected: %d", code)
	}

	code, _ = doJSON(t, engine, http.MethodGet, "/api/admin/stats", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("missing credentials must be rejected, got %d", code)
	}

	code, _ = doJSON(t, engine, http.MethodGet, "/api/admin/stats", "bogus", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("bogus token must be rejected, got %d", code)
	}
}

func TestReportsListing(t *testing.T) {
	_, engine, store := newTestService(t)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"GR-00000001", "GR-00000002"} {
		record := &aggregate.Record{ID: id, CreatedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := store.Put(context.Background(), record); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	code, resp := doJSON(t, engine, http.MethodGet, "/api/admin/reports", "static-token", nil)
	if code != http.StatusOK {
		t.Fatalf("reports returned %d", code)
	}
	var records []aggregate.Record
	if err := json.Unmarshal(resp["data"], &records); err != nil {
		t.Fatalf("bad records payload: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "GR-00000002" {
		t.Errorf("expected newest first, got %q", records[0].ID)
	}
}

func TestSystemEndpoint(t *testing.T) {
	_, engine, _ := newTestService(t)

	code, resp := doJSON(t, engine, http.MethodGet, "/api/admin/system", "static-token", nil)
	if code != http.StatusOK {
		t.Fatalf("system returned %d", code)
	}
	var data map[string]any
	if err := json.Unmarshal(resp["data"], &data); err != nil {
		t.Fatalf("bad system payload: %v", err)
	}
	if _, ok := data["goroutines"]; !ok {
		t.Error("system payload missing goroutines")
	}
}
