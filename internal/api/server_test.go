package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/hermes"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/store"
)

var knownRun = uuid.MustParse("9f6ed519-0000-0000-0000-000000000001")

type fakeRuns struct{}

func (fakeRuns) GetRun(_ context.Context, id uuid.UUID) (*store.RunRow, error) {
	if id != knownRun {
		return nil, store.ErrNotFound
	}
	return &store.RunRow{
		ID:        id,
		Name:      "test_run",
		Status:    store.StatusComplete,
		Metrics:   map[string]float64{"raw.precision": 0.5},
		CreatedAt: time.Date(2016, 7, 26, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (fakeRuns) RunPrecision(_ context.Context, id uuid.UUID) (map[string]float64, error) {
	if id != knownRun {
		return nil, errors.New("unexpected run")
	}
	return map[string]float64{"raw": 0.5, "filtered": 0.75}, nil
}

func serve(t *testing.T, srv *Server, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8760, "secret", nil)

	w := serve(t, srv, "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestGetRun(t *testing.T) {
	srv := NewServer(8760, "", fakeRuns{})

	w := serve(t, srv, "/api/v1/runs/"+knownRun.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		ID        string             `json:"id"`
		Name      string             `json:"name"`
		Status    string             `json:"status"`
		Precision map[string]float64 `json:"precision"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != knownRun.String() || body.Name != "test_run" {
		t.Errorf("unexpected run %+v", body)
	}
	if body.Precision["filtered"] != 0.75 {
		t.Errorf("expected filtered precision 0.75, got %v", body.Precision)
	}
}

func TestGetRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		srv  *Server
		path string
		want int
	}{
		{"unknown run", NewServer(8760, "", fakeRuns{}), "/api/v1/runs/" + uuid.New().String(), http.StatusNotFound},
		{"bad id", NewServer(8760, "", fakeRuns{}), "/api/v1/runs/not-a-uuid", http.StatusBadRequest},
		{"no store", NewServer(8760, "", nil), "/api/v1/runs/" + knownRun.String(), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(t, tt.srv, tt.path, ""); w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	srv := NewServer(8760, "secret", fakeRuns{})
	path := "/api/v1/runs/" + knownRun.String()

	if w := serve(t, srv, path, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, srv, path, "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(t, srv, path, "secret"); w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}

func TestRecentRuns(t *testing.T) {
	srv := NewServer(8760, "", nil)

	for i, name := range []string{"first", "second"} {
		data, _ := json.Marshal(hermes.RunCompleted{RunID: name, Name: name, Records: i})
		srv.HandleRunCompleted(hermes.SubjectRunCompleted, data)
	}
	srv.HandleRunCompleted(hermes.SubjectRunCompleted, []byte("{not json"))

	w := serve(t, srv, "/api/v1/runs/recent", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Runs  []hermes.RunCompleted `json:"runs"`
		Count int                   `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 2 || body.Runs[0].Name != "second" {
		t.Errorf("expected newest first, got %+v", body.Runs)
	}
}

func TestRecentRuns_Bounded(t *testing.T) {
	srv := NewServer(8760, "", nil)
	for i := 0; i < recentLimit+5; i++ {
		data, _ := json.Marshal(hermes.RunCompleted{Records: i})
		srv.HandleRunCompleted(hermes.SubjectRunCompleted, data)
	}
	if len(srv.recent) != recentLimit {
		t.Errorf("kept %d runs, want %d", len(srv.recent), recentLimit)
	}
	if srv.recent[0].Records != 5 {
		t.Errorf("oldest kept run = %d, want 5", srv.recent[0].Records)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := NewServer(8760, "", nil)

	if w := serve(t, srv, "/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestServer_ShutdownStopsStart(t *testing.T) {
	srv := NewServer(0, "", nil)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after shutdown, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}
