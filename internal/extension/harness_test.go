package extension

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chartex/pkg/audit"
	"chartex/pkg/credentials"
	"chartex/pkg/installations"
	"chartex/pkg/middleware"
	"chartex/pkg/platform"
)

// fakePlatform is an in-memory platform API good enough for the extension's
// calls: installations, marketplaces, asset counts, purchase requests,
// templates and the impersonation exchange.
type fakePlatform struct {
	t  *testing.T
	mu sync.Mutex

	installations map[string]installations.Installation
	requests      map[string]*fakeRequest
	templates     map[string][]string // product id -> template ids
	marketplaces  []installations.Marketplace
	assetCounts   map[string]int // marketplace id -> active assets

	// marketplacesErr, when set, makes the marketplace listing fail with
	// this status and body (upstream error passthrough tests).
	marketplacesErr   int
	marketplacesErrBy []byte

	exchanges    int
	paramUpdates map[string][][]platform.Param
	approvals    map[string][]string // request id -> posted template ids

	srv *httptest.Server
}

type fakeRequest struct {
	ID        string
	Status    string
	ProductID string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	f := &fakePlatform{
		t:             t,
		installations: map[string]installations.Installation{},
		requests:      map[string]*fakeRequest{},
		templates:     map[string][]string{},
		assetCounts:   map[string]int{},
		paramUpdates:  map[string][][]platform.Param{},
		approvals:     map[string][]string{},
	}
	r := chi.NewRouter()
	r.Post("/devops/services/{serviceID}/installations/{installationID}/impersonate", f.impersonate)
	r.Get("/devops/installations/{installationID}", f.getInstallation)
	r.Put("/devops/installations/{installationID}", f.updateInstallation)
	r.Get("/marketplaces", f.listMarketplaces)
	r.Get("/subscriptions/assets", f.countAssets)
	r.Get("/requests/{requestID}", f.getRequest)
	r.Put("/requests/{requestID}", f.updateRequest)
	r.Post("/requests/{requestID}/approve", f.approve)
	r.Get("/products/{productID}/templates", f.listTemplates)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePlatform) URL() string { return f.srv.URL }

func (f *fakePlatform) impersonate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.exchanges++
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]string{"installation_api_key": "impersonated-key"})
}

func (f *fakePlatform) getInstallation(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	inst, ok := f.installations[chi.URLParam(r, "installationID")]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = json.NewEncoder(w).Encode(inst)
}

func (f *fakePlatform) updateInstallation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Settings installations.Settings `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "installationID")
	f.mu.Lock()
	inst := f.installations[id]
	inst.ID = id
	inst.Settings = body.Settings
	f.installations[id] = inst
	f.mu.Unlock()
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakePlatform) listMarketplaces(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status, body, mps := f.marketplacesErr, f.marketplacesErrBy, f.marketplaces
	f.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}
	_ = json.NewEncoder(w).Encode(mps)
}

func (f *fakePlatform) countAssets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.RawQuery
	f.mu.Lock()
	total := 0
	for id, n := range f.assetCounts {
		if strings.Contains(query, "eq(marketplace.id,"+id+")") {
			total = n
		}
	}
	f.mu.Unlock()
	w.Header().Set("Content-Range", "items 0-0/"+strconv.Itoa(total))
	_, _ = w.Write([]byte("[]"))
}

func (f *fakePlatform) getRequest(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	req, ok := f.requests[chi.URLParam(r, "requestID")]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	doc := map[string]any{
		"id":     req.ID,
		"status": req.Status,
		"asset":  map[string]any{"product": map[string]any{"id": req.ProductID}},
	}
	_ = json.NewEncoder(w).Encode(doc)
}

func (f *fakePlatform) updateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Asset struct {
			Params []platform.Param `json:"params"`
		} `json:"asset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "requestID")
	f.mu.Lock()
	f.paramUpdates[id] = append(f.paramUpdates[id], body.Asset.Params)
	f.mu.Unlock()
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakePlatform) approve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TemplateID string `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "requestID")
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if req.Status != "pending" {
		// Approving twice is an error at the platform, not at the extension.
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"REQ_003","errors":["Only pending requests can be approved."]}`))
		return
	}
	req.Status = "approved"
	f.approvals[id] = append(f.approvals[id], body.TemplateID)
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakePlatform) listTemplates(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	ids := f.templates[chi.URLParam(r, "productID")]
	f.mu.Unlock()
	out := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]string{"id": id})
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakePlatform) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

func (f *fakePlatform) writeCount(requestID string) (params, approvals int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paramUpdates[requestID]), len(f.approvals[requestID])
}

// newTestResolver builds a credential resolver pointed at the fake platform.
func newTestResolver(t *testing.T, f *fakePlatform) *credentials.Resolver {
	t.Helper()
	log := zap.NewNop().Sugar()
	svc := platform.NewServiceClient(f.URL(), "ApiKey SU-000:XXXX")
	return credentials.NewResolver(credentials.Options{
		APIURL:    f.URL(),
		ServiceID: "SRVC-0000",
		GrantTTL:  time.Minute,
	}, svc, nil, audit.NewLog(log), log)
}

// newWebAppServer mounts the web app the way the service main does.
func newWebAppServer(t *testing.T, f *fakePlatform) *httptest.Server {
	t.Helper()
	app := NewWebApp(newTestResolver(t, f), zap.NewNop().Sugar())
	r := chi.NewRouter()
	app.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// tenantGet performs a tenant-scoped call with the platform headers set.
func tenantDo(t *testing.T, srv *httptest.Server, method, path, installationID string, body string) *http.Response {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(middleware.HeaderInstallationID, installationID)
	req.Header.Set(middleware.HeaderInstallationKey, "delegated-key")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
