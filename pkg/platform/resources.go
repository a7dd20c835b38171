// pkg/platform/resources.go
package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chartex/pkg/installations"
	"chartex/pkg/problems"
)

// Impersonate exchanges the service-level key for a short-lived key scoped to
// installationID. Privileged: callers must audit every exchange. The returned
// key is opaque and must never be logged.
func (c *Client) Impersonate(ctx context.Context, serviceID, installationID string) (string, error) {
	path := fmt.Sprintf("/devops/services/%s/installations/%s/impersonate",
		url.PathEscape(serviceID), url.PathEscape(installationID))
	var out struct {
		InstallationAPIKey string `json:"installation_api_key"`
	}
	if _, err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return "", err
	}
	if out.InstallationAPIKey == "" {
		return "", problems.New(problems.CredentialDenied, "empty impersonation grant")
	}
	return out.InstallationAPIKey, nil
}

func (c *Client) GetInstallation(ctx context.Context, installationID string) (installations.Installation, error) {
	var inst installations.Installation
	path := "/devops/installations/" + url.PathEscape(installationID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &inst); err != nil {
		return installations.Installation{}, err
	}
	return inst, nil
}

// UpdateInstallationSettings rewrites the whole settings document. No partial
// merge: last writer wins.
func (c *Client) UpdateInstallationSettings(ctx context.Context, installationID string, settings installations.Settings) error {
	path := "/devops/installations/" + url.PathEscape(installationID)
	body := map[string]any{"settings": settings}
	_, err := c.do(ctx, http.MethodPut, path, body, nil)
	return err
}

func (c *Client) ListMarketplaces(ctx context.Context) ([]installations.Marketplace, error) {
	var mps []installations.Marketplace
	if _, err := c.do(ctx, http.MethodGet, "/marketplaces", nil, &mps); err != nil {
		return nil, err
	}
	for i := range mps {
		if mps[i].Icon == "" {
			mps[i].Icon = installations.DefaultMarketplaceIcon
		}
	}
	return mps, nil
}

// CountActiveAssets counts active subscription assets in a marketplace.
// Uses limit=0 and reads the total from the Content-Range header, so no asset
// bodies cross the wire.
func (c *Client) CountActiveAssets(ctx context.Context, marketplaceID string) (int, error) {
	filter := rqlAnd(rqlEq("marketplace.id", marketplaceID), rqlEq("status", "active"))
	path := "/subscriptions/assets?" + filter + "&limit=0"
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return 0, err
	}
	total, err := contentRangeTotal(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, problems.Wrap(problems.Transient, "asset count", err)
	}
	return total, nil
}

// Request is a purchase request as delivered by the platform.
type Request struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Asset  struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
	} `json:"asset"`
}

func (c *Client) GetRequest(ctx context.Context, requestID string) (Request, error) {
	var req Request
	path := "/requests/" + url.PathEscape(requestID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

type Param struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (c *Client) UpdateRequestParams(ctx context.Context, requestID string, params []Param) error {
	path := "/requests/" + url.PathEscape(requestID)
	body := map[string]any{"asset": map[string]any{"params": params}}
	_, err := c.do(ctx, http.MethodPut, path, body, nil)
	return err
}

type Template struct {
	ID string `json:"id"`
}

// FindFulfillmentTemplate looks up the approval template (scope=asset,
// type=fulfillment) for a product. Zero matches is a NotFound problem, never
// a silent success.
func (c *Client) FindFulfillmentTemplate(ctx context.Context, productID string) (Template, error) {
	path := fmt.Sprintf("/products/%s/templates?scope=asset&type=fulfillment&limit=1", url.PathEscape(productID))
	var tpls []Template
	if _, err := c.do(ctx, http.MethodGet, path, nil, &tpls); err != nil {
		return Template{}, err
	}
	if len(tpls) == 0 {
		return Template{}, problems.Newf(problems.NotFound, "no fulfillment template", "product %s", productID)
	}
	return tpls[0], nil
}

func (c *Client) ApproveRequest(ctx context.Context, requestID, templateID string) error {
	path := "/requests/" + url.PathEscape(requestID) + "/approve"
	body := map[string]any{"template_id": templateID}
	_, err := c.do(ctx, http.MethodPost, path, body, nil)
	return err
}

// Minimal RQL helpers for the platform filter language. Only what the
// extension queries need.
func rqlEq(field, value string) string {
	return "eq(" + field + "," + url.QueryEscape(value) + ")"
}

func rqlAnd(exprs ...string) string {
	return "and(" + strings.Join(exprs, ",") + ")"
}

// contentRangeTotal parses "items 0-0/42" style headers.
func contentRangeTotal(h string) (int, error) {
	if h == "" {
		return 0, fmt.Errorf("missing Content-Range header")
	}
	i := strings.LastIndex(h, "/")
	if i < 0 || i == len(h)-1 {
		return 0, fmt.Errorf("malformed Content-Range %q", h)
	}
	return strconv.Atoi(h[i+1:])
}
