package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GenericV2 speaks the plain Docker Registry V2 tags/list endpoint. It
// covers gcr.io, registry.k8s.io and any self-hosted registry named by
// host. The listing is a single page; registries requiring auth surface
// ErrAuthRequired.
type GenericV2 struct {
	BaseURL string
	client  *http.Client
}

// NewGenericV2 creates a client for a V2-compatible registry rooted at
// baseURL.
func NewGenericV2(baseURL string) *GenericV2 {
	return &GenericV2{
		BaseURL: baseURL,
		client:  newHTTPClient(http.DefaultTransport),
	}
}

// ListTags fetches the full tag list in one request.
func (g *GenericV2) ListTags(ctx context.Context, repository string) (*Listing, error) {
	url := fmt.Sprintf("%s/v2/%s/tags/list", g.BaseURL, repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, requestError(g.BaseURL, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, requestError(g.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(g.BaseURL, resp.StatusCode)
	}
	var body v2TagsList
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, decodeError(g.BaseURL, err)
	}

	return newListing(body.Tags, false), nil
}
