// Package testutil provides shared helpers for command-level and E2E tests:
// an in-memory fake of the IDMC login service and the CDGC REST API, and
// environment isolation so tests never touch real config or credentials.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// Fake credentials accepted by FakeIDMC.
const (
	FakeUsername = "fake-user"
	FakePassword = "fake-password"
	FakeUserID   = "user-1"
	FakeOrgID    = "org-123"
	FakeOrgName  = "Fake Org"
	FakeJWT      = "fake.jwt.token"
)

// FakeSource is a catalog source the fake search can return.
type FakeSource struct {
	ID   string
	Name string
}

// RunCall records one run request received by the fake.
type RunCall struct {
	SourceID     string
	Capabilities []string
}

// FakeIDMC serves the login, JWT, search, job, and classification endpoints
// from memory. One server plays both the login host and the CDGC host.
type FakeIDMC struct {
	Server *httptest.Server

	mu sync.Mutex

	sources         []FakeSource
	statuses        []string
	statusIdx       int
	jobID           string
	runs            []RunCall
	logins          int
	classifications map[string]json.RawMessage
	nextClassID     int
	writes          int
}

// NewFakeIDMC starts a fake server. Call Close when done.
func NewFakeIDMC() *FakeIDMC {
	f := &FakeIDMC{
		jobID:           "job-0001",
		statuses:        []string{"COMPLETED"},
		classifications: make(map[string]json.RawMessage),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /saas/public/core/v3/login", f.handleLogin)
	mux.HandleFunc("GET /identity-service/api/v1/jwt/Token", f.handleJWT)
	mux.HandleFunc("POST /ccgf-searchv2/api/v1/search", f.authed(f.handleSearch))
	mux.HandleFunc("POST /ccgf-catalog-source-management/api/v1/datasources/{id}/run", f.authed(f.handleRun))
	mux.HandleFunc("GET /ccgf-orchestration-management/api/v1/jobs/{id}", f.authed(f.handleJobStatus))
	mux.HandleFunc("GET /ccgf-metadata-discovery/api/v1/classifications", f.authed(f.handleListClassifications))
	mux.HandleFunc("POST /ccgf-metadata-discovery/api/v1/classifications", f.authed(f.handleCreateClassification))
	mux.HandleFunc("GET /ccgf-metadata-discovery/api/v1/classifications/{id}", f.authed(f.handleGetClassification))
	mux.HandleFunc("PUT /ccgf-metadata-discovery/api/v1/classifications/{id}", f.authed(f.handleUpdateClassification))

	f.Server = httptest.NewServer(mux)

	return f
}

// URL is the base URL for both login and API calls.
func (f *FakeIDMC) URL() string {
	return f.Server.URL
}

// Close shuts the server down.
func (f *FakeIDMC) Close() {
	f.Server.Close()
}

// AddSource makes a catalog source visible to search.
func (f *FakeIDMC) AddSource(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sources = append(f.sources, FakeSource{ID: id, Name: name})
}

// ScriptStatuses sets the job status sequence. The last entry repeats.
func (f *FakeIDMC) ScriptStatuses(statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statuses = statuses
	f.statusIdx = 0
}

// AddClassification stores a classification as the server would return it.
func (f *FakeIDMC) AddClassification(id, name, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.classifications[id] = mustJSON(map[string]any{"id": id, "name": name, "description": description})
}

// Runs returns the run requests received so far.
func (f *FakeIDMC) Runs() []RunCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]RunCall(nil), f.runs...)
}

// Logins is the number of successful password logins.
func (f *FakeIDMC) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.logins
}

// ClassificationWrites is the number of create and update calls.
func (f *FakeIDMC) ClassificationWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writes
}

// ClassificationByName returns the stored classification with that name.
func (f *FakeIDMC) ClassificationByName(name string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, raw := range f.classifications {
		var m map[string]any
		if json.Unmarshal(raw, &m) == nil && m["name"] == name {
			return m, true
		}
	}

	return nil, false
}

func (f *FakeIDMC) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Username != FakeUsername || req.Password != FakePassword {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"code": "AUTH_01", "message": "Invalid username or password."},
		})

		return
	}

	f.mu.Lock()
	f.logins++
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"products": []map[string]any{{"name": "Integration Cloud", "baseApiUrl": f.Server.URL + "/saas"}},
		"userInfo": map[string]any{
			"sessionId": "session-abc",
			"id":        FakeUserID,
			"name":      FakeUsername,
			"orgId":     FakeOrgID,
			"orgName":   FakeOrgName,
		},
	})
}

func (f *FakeIDMC) handleJWT(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("IDS-SESSION-ID") != "session-abc" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid session"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jwt_token": FakeJWT})
}

// authed rejects requests without the fake bearer token.
func (f *FakeIDMC) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+FakeJWT {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "missing or invalid token"})
			return
		}

		next(w, r)
	}
}

func (f *FakeIDMC) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FilterSpec []struct {
			Expr string `json:"expr"`
		} `json:"filterSpec"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	name := ""
	if len(body.FilterSpec) > 0 {
		name = nameFromFilter(body.FilterSpec[0].Expr)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	hits := make([]map[string]any, 0)

	for _, s := range f.sources {
		if !strings.Contains(strings.ToLower(s.Name), strings.ToLower(name)) {
			continue
		}

		hits = append(hits, map[string]any{
			"systemAttributes": map[string]any{
				"core.origin":    s.ID,
				"core.identity":  s.ID,
				"core.classType": "core.Resource",
			},
			"summary": map[string]any{"core.name": s.Name},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": map[string]any{"total_hits": len(hits)},
		"hits":    hits,
	})
}

// nameFromFilter extracts the quoted literal from "... core.name '<name>'".
func nameFromFilter(expr string) string {
	i := strings.Index(expr, "core.name '")
	if i < 0 {
		return ""
	}

	lit := strings.TrimSuffix(expr[i+len("core.name '"):], "'")

	return strings.ReplaceAll(lit, `\'`, "'")
}

func (f *FakeIDMC) handleRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Capabilities []string `json:"capabilities"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	f.mu.Lock()
	f.runs = append(f.runs, RunCall{SourceID: r.PathValue("id"), Capabilities: body.Capabilities})
	jobID := f.jobID
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":  jobID,
		"jobUri": f.Server.URL + "/jobs/" + jobID,
	})
}

func (f *FakeIDMC) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.PathValue("id") != f.jobID {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "job not found"})
		return
	}

	status := f.statuses[min(f.statusIdx, len(f.statuses)-1)]
	f.statusIdx++

	resp := map[string]any{"jobId": f.jobID, "status": status}
	if status == "FAILED" {
		resp["errorMessage"] = "connection refused by source database"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeIDMC) handleListClassifications(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.classifications))
	for id := range f.classifications {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	list := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		list = append(list, f.classifications[id])
	}

	writeJSON(w, http.StatusOK, list)
}

func (f *FakeIDMC) handleGetClassification(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.classifications[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "classification not found"})
		return
	}

	writeJSON(w, http.StatusOK, raw)
}

func (f *FakeIDMC) handleCreateClassification(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextClassID++
	id := fmt.Sprintf("class-%03d", f.nextClassID)
	rec["id"] = id

	f.classifications[id] = mustJSON(rec)
	f.writes++

	writeJSON(w, http.StatusCreated, rec)
}

func (f *FakeIDMC) handleUpdateClassification(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PathValue("id")
	if _, exists := f.classifications[id]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "classification not found"})
		return
	}

	rec["id"] = id
	f.classifications[id] = mustJSON(rec)
	f.writes++

	writeJSON(w, http.StatusOK, rec)
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return nil, false
	}

	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return nil, false
	}

	for _, k := range []string{"id", "export_date", "export_org", "export_user"} {
		if _, present := rec[k]; present {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "unexpected field " + k})
			return nil, false
		}
	}

	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if raw, ok := v.(json.RawMessage); ok {
		_, _ = w.Write(raw)
		return
	}

	_ = json.NewEncoder(w).Encode(v)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return data
}
