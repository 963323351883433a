package simd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

func newTestHTTPServer() (*HTTPServer, *RunStore) {
	store := NewRunStore(0)
	return NewHTTPServer(store, NewRunExecutor(store, nil)), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHTTPHealthz(t *testing.T) {
	srv, _ := newTestHTTPServer()
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected healthz response: %d %v", rec.Code, body)
	}
}

func TestHTTPMetricsEndpoint(t *testing.T) {
	srv, _ := newTestHTTPServer()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ptasim_active_runs") {
		t.Fatalf("expected ptasim metrics in exposition")
	}
}

func TestHTTPRunLifecycle(t *testing.T) {
	srv, store := newTestHTTPServer()
	h := srv.Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{
		"run_id":        "life-1",
		"scenario_yaml": testScenarioYAML,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %v", rec.Code, body)
	}
	run := body["run"].(map[string]any)
	if run["id"] != "life-1" || run["status"] != "pending" {
		t.Fatalf("unexpected run: %v", run)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/runs/life-1/results", nil)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("results before start: expected 412, got %d", rec.Code)
	}

	rec, body = doJSON(t, h, http.MethodPost, "/v1/runs/life-1:start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %v", rec.Code, body)
	}
	waitForStatus(t, store, "life-1", models.RunStatusCompleted)

	rec, body = doJSON(t, h, http.MethodGet, "/v1/runs/life-1", nil)
	if rec.Code != http.StatusOK || body["run"].(map[string]any)["status"] != "completed" {
		t.Fatalf("get: unexpected %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, h, http.MethodGet, "/v1/runs/life-1/results", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results: expected 200, got %d: %v", rec.Code, body)
	}
	pta := body["pta"].(map[string]any)
	if got := len(pta["mics"].([]any)); got != 3 {
		t.Fatalf("expected 3 MIC rows, got %d", got)
	}
	if got := len(pta["regimens"].([]any)); got != 2 {
		t.Fatalf("expected 2 regimen columns, got %d", got)
	}
	cfr := body["cfr"].([]any)
	if len(cfr) != 2 {
		t.Fatalf("expected 2 CFR rows, got %d", len(cfr))
	}
	for _, row := range cfr {
		score := row.(map[string]any)["score"].(float64)
		if score < 0 || score > 100 {
			t.Fatalf("CFR out of range: %v", score)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/life-1/export?table=pta", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("export pta: unexpected %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse pta csv: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "MIC (mg/L)" || rows[0][1] != "Dose: 2000 mg, Interval: 24 h" {
		t.Fatalf("unexpected pta csv: %v", rows)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/life-1/export?table=cfr", nil))
	if !strings.HasPrefix(rec.Body.String(), "Dose (mg),Interval (h),CFR (%)\n") {
		t.Fatalf("unexpected cfr csv: %q", rec.Body.String())
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/runs/life-1/export?table=xyz", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad table: expected 400, got %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/v1/runs/life-1:start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("restart terminal run: expected 409, got %d", rec.Code)
	}
}

func TestHTTPCreateAndStartWithInlineScenario(t *testing.T) {
	srv, store := newTestHTTPServer()
	scenario := testScenario(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs", map[string]any{
		"run_id":   "inline",
		"scenario": scenario,
		"start":    true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %v", rec.Code, body)
	}
	if body["run"].(map[string]any)["status"] != "running" {
		t.Fatalf("expected running run, got %v", body["run"])
	}
	waitForStatus(t, store, "inline", models.RunStatusCompleted)
}

func TestHTTPCreateRunErrors(t *testing.T) {
	srv, _ := newTestHTTPServer()
	h := srv.Handler()

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no scenario", map[string]any{"run_id": "x"}, http.StatusBadRequest},
		{"invalid interval", map[string]any{"scenario_yaml": strings.Replace(testScenarioYAML, "interval: 12", "interval: 36", 1)}, http.StatusBadRequest},
		{"bad run id", map[string]any{"run_id": "a b", "scenario_yaml": testScenarioYAML}, http.StatusBadRequest},
		{"unknown field", map[string]any{"scenario_yaml": testScenarioYAML, "duration_ms": 5}, http.StatusBadRequest},
		{"internal callback", map[string]any{"scenario_yaml": testScenarioYAML, "callback_url": "http://10.0.0.1/cb"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := doJSON(t, h, http.MethodPost, "/v1/runs", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %v", tt.want, rec.Code, body)
			}
		})
	}

	rec, _ := doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"run_id": "dup", "scenario_yaml": testScenarioYAML})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"run_id": "dup", "scenario_yaml": testScenarioYAML})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", rec.Code)
	}
}

func TestHTTPNotFoundAndMethods(t *testing.T) {
	srv, _ := newTestHTTPServer()
	h := srv.Handler()

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/v1/runs/missing", http.StatusNotFound},
		{http.MethodPost, "/v1/runs/missing:start", http.StatusNotFound},
		{http.MethodPost, "/v1/runs/missing:stop", http.StatusNotFound},
		{http.MethodGet, "/v1/runs/missing/results", http.StatusNotFound},
		{http.MethodGet, "/v1/runs/missing/export", http.StatusNotFound},
		{http.MethodGet, "/v1/runs/missing/other", http.StatusNotFound},
		{http.MethodGet, "/v1/runs/missing:start", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/v1/runs", http.StatusMethodNotAllowed},
		{http.MethodGet, "/v1/simulate", http.StatusMethodNotAllowed},
		{http.MethodGet, "/v1/runs/", http.StatusBadRequest},
	} {
		rec, _ := doJSON(t, h, tc.method, tc.path, nil)
		if rec.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}

func TestHTTPStopPendingRun(t *testing.T) {
	srv, _ := newTestHTTPServer()
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"run_id": "p", "scenario_yaml": testScenarioYAML})
	rec, body := doJSON(t, h, http.MethodPost, "/v1/runs/p:stop", nil)
	if rec.Code != http.StatusOK || body["run"].(map[string]any)["status"] != "cancelled" {
		t.Fatalf("stop: unexpected %d %v", rec.Code, body)
	}
	rec, _ = doJSON(t, h, http.MethodPost, "/v1/runs/p:stop", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second stop: expected 409, got %d", rec.Code)
	}
}

func TestHTTPListRuns(t *testing.T) {
	srv, _ := newTestHTTPServer()
	h := srv.Handler()

	for _, id := range []string{"l1", "l2", "l3"} {
		doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"run_id": id, "scenario_yaml": testScenarioYAML})
	}
	doJSON(t, h, http.MethodPost, "/v1/runs/l2:stop", nil)

	rec, body := doJSON(t, h, http.MethodGet, "/v1/runs?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	runs := body["runs"].([]any)
	if len(runs) != 2 || runs[0].(map[string]any)["id"] != "l3" {
		t.Fatalf("unexpected list: %v", runs)
	}

	_, body = doJSON(t, h, http.MethodGet, "/v1/runs?status=CANCELLED", nil)
	runs = body["runs"].([]any)
	if len(runs) != 1 || runs[0].(map[string]any)["id"] != "l2" {
		t.Fatalf("unexpected filtered list: %v", runs)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/runs?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status: expected 400, got %d", rec.Code)
	}
}

func TestHTTPSimulate(t *testing.T) {
	srv, store := newTestHTTPServer()

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/v1/simulate", map[string]any{
		"scenario_yaml": testScenarioYAML,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate: expected 200, got %d: %v", rec.Code, body)
	}
	if _, ok := body["run"]; ok {
		t.Fatalf("synchronous simulation must not report a run")
	}
	if len(body["cfr"].([]any)) != 2 {
		t.Fatalf("expected 2 CFR rows")
	}
	if store.Len() != 0 {
		t.Fatalf("synchronous simulation must not be stored")
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/v1/simulate", map[string]any{
		"scenario_yaml": strings.Replace(testScenarioYAML, "num_patients: 200", "num_patients: 0", 1),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid simulate: expected 400, got %d", rec.Code)
	}
}

func TestHTTPRateLimit(t *testing.T) {
	srv, _ := newTestHTTPServer()
	srv.SetRateLimit(0.001, 1)
	h := srv.Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"scenario_yaml": testScenarioYAML})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"scenario_yaml": testScenarioYAML})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second create: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	// Reads are never limited
	rec, _ = doJSON(t, h, http.MethodGet, "/v1/runs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list under limit: expected 200, got %d", rec.Code)
	}

	srv.SetRateLimit(0, 0)
	rec, _ = doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"scenario_yaml": testScenarioYAML})
	if rec.Code != http.StatusCreated {
		t.Fatalf("after removing limit: expected 201, got %d", rec.Code)
	}
}
