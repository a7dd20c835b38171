// internal/extension/webapp.go
package extension

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chartex/pkg/credentials"
	"chartex/pkg/installations"
	"chartex/pkg/middleware"
	"chartex/pkg/platform"
	"chartex/pkg/problems"
)

// WebApp serves the extension's pages' data: chart settings, marketplace
// listings and chart generation. Admin routes act on an installation named
// in the path through an impersonated client; tenant routes act through the
// delegated credential on the call.
type WebApp struct {
	creds *credentials.Resolver
	log   *zap.SugaredLogger
}

func NewWebApp(creds *credentials.Resolver, log *zap.SugaredLogger) *WebApp {
	return &WebApp{creds: creds, log: log}
}

func (a *WebApp) Routes(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Group(func(t chi.Router) {
			t.Use(middleware.WithInstallation())
			t.Get("/settings", a.retrieveSettings)
			t.Post("/settings", a.saveSettings)
			t.Get("/marketplaces", a.listMarketplaces)
			t.Get("/chart", a.generateChartData)
		})
		api.Route("/admin/{installationID}", func(ad chi.Router) {
			ad.Get("/settings", a.retrieveAdminSettings)
			ad.Post("/settings", a.saveAdminSettings)
			ad.Get("/marketplaces", a.listAdminMarketplaces)
		})
	})
}

// tenantClient resolves the caller's own scope; never crosses installations.
func (a *WebApp) tenantClient(r *http.Request) (installations.CallContext, *platform.Client, error) {
	cc, ok := installations.FromContext(r.Context())
	if !ok {
		return cc, nil, problems.New(problems.Unauthenticated, "missing installation context")
	}
	client, err := a.creds.Tenant(cc)
	return cc, client, err
}

// adminClient impersonates the installation named in the path.
func (a *WebApp) adminClient(r *http.Request) (installations.CallContext, *platform.Client, error) {
	cc, err := installations.NewAdminContext(chi.URLParam(r, "installationID"))
	if err != nil {
		return cc, nil, err
	}
	client, err := a.creds.Resolve(r.Context(), cc)
	return cc, client, err
}

func (a *WebApp) retrieveSettings(w http.ResponseWriter, r *http.Request) {
	cc, client, err := a.tenantClient(r)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.serveSettings(w, r, client, cc.InstallationID)
}

func (a *WebApp) retrieveAdminSettings(w http.ResponseWriter, r *http.Request) {
	cc, client, err := a.adminClient(r)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.serveSettings(w, r, client, cc.InstallationID)
}

func (a *WebApp) serveSettings(w http.ResponseWriter, r *http.Request, client *platform.Client, installationID string) {
	inst, err := client.GetInstallation(r.Context(), installationID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	settings := inst.Settings
	settings.Normalize()
	writeJSON(w, settings)
}

func (a *WebApp) saveSettings(w http.ResponseWriter, r *http.Request) {
	cc, client, err := a.tenantClient(r)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.storeSettings(w, r, client, cc.InstallationID)
}

func (a *WebApp) saveAdminSettings(w http.ResponseWriter, r *http.Request) {
	cc, client, err := a.adminClient(r)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.storeSettings(w, r, client, cc.InstallationID)
}

func (a *WebApp) storeSettings(w http.ResponseWriter, r *http.Request, client *platform.Client, installationID string) {
	var settings installations.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		problems.Write(w, problems.InvalidRequest, "malformed settings document")
		return
	}
	settings.Normalize()
	// Whole-document write: last writer wins, no partial merge.
	if err := client.UpdateInstallationSettings(r.Context(), installationID, settings); err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, settings)
}

func (a *WebApp) listMarketplaces(w http.ResponseWriter, r *http.Request) {
	_, client, err := a.tenantClient(r)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.serveMarketplaces(w, r, client)
}

func (a *WebApp) listAdminMarketplaces(w http.ResponseWriter, r *http.Request) {
	_, client, err := a.adminClient(r)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.serveMarketplaces(w, r, client)
}

func (a *WebApp) serveMarketplaces(w http.ResponseWriter, r *http.Request, client *platform.Client) {
	mps, err := client.ListMarketplaces(r.Context())
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, mps)
}

// chartData is the payload the chart pages render.
type chartData struct {
	Type string `json:"type"`
	Data struct {
		Labels   []string  `json:"labels"`
		Datasets []dataset `json:"datasets"`
	} `json:"data"`
}

type dataset struct {
	Label string `json:"label"`
	Data  []int  `json:"data"`
}

func (a *WebApp) generateChartData(w http.ResponseWriter, r *http.Request) {
	cc, client, err := a.tenantClient(r)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	inst, err := client.GetInstallation(r.Context(), cc.InstallationID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = "bar"
	}
	chart := chartData{Type: typ}
	chart.Data.Labels = []string{}
	counts := []int{}
	// Label order follows the stored settings order.
	for _, mp := range inst.Settings.Marketplaces {
		n, err := client.CountActiveAssets(r.Context(), mp.ID)
		if err != nil {
			a.writeErr(w, err)
			return
		}
		chart.Data.Labels = append(chart.Data.Labels, mp.ID)
		counts = append(counts, n)
	}
	chart.Data.Datasets = []dataset{{Label: "Subscriptions", Data: counts}}
	writeJSON(w, chart)
}

// writeErr surfaces platform replies verbatim (status and body) so callers
// see the platform's own error shape; everything else becomes a problem
// response per the taxonomy.
func (a *WebApp) writeErr(w http.ResponseWriter, err error) {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.Status)
		_, _ = w.Write(apiErr.Body)
		return
	}
	problems.WriteError(w, err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
