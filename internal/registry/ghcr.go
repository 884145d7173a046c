package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/nethserver/gitops-updater/internal/config"
)

// GHCR lists tags through the Docker Registry V2 API on ghcr.io. The API
// paginates through a Link header. Unlike Docker Hub, ghcr.io rejects
// anonymous listing for private images with 401, which surfaces as
// ErrAuthRequired rather than degrading silently.
type GHCR struct {
	BaseURL  string
	client   *http.Client
	maxPages int
}

// NewGHCR creates a ghcr.io client. The token, when present, is sent
// base64-encoded as ghcr.io requires for GITHUB_TOKEN values.
func NewGHCR(cred config.Credential, maxPages int) *GHCR {
	transport := http.DefaultTransport
	if cred.Token != "" {
		transport = bearerAuthTransport(cred.Token)
	}
	return &GHCR{
		BaseURL:  "https://ghcr.io",
		client:   newHTTPClient(transport),
		maxPages: maxPages,
	}
}

var linkNext = regexp.MustCompile(`<(/v2/[^>]+)>;\s*rel="next"`)

type v2TagsList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ListTags follows Link-header pagination until exhaustion or the page cap.
func (g *GHCR) ListTags(ctx context.Context, repository string) (*Listing, error) {
	url := fmt.Sprintf("%s/v2/%s/tags/list?n=1000", g.BaseURL, repository)

	var tags []string
	pages := 0
	for url != "" {
		if g.maxPages > 0 && pages >= g.maxPages {
			return newListing(tags, true), nil
		}
		pages++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, requestError("ghcr.io", err)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, requestError("ghcr.io", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, statusError("ghcr.io", resp.StatusCode)
		}
		var page v2TagsList
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, decodeError("ghcr.io", err)
		}
		link := resp.Header.Get("Link")
		resp.Body.Close()

		tags = append(tags, page.Tags...)

		url = ""
		if m := linkNext.FindStringSubmatch(link); m != nil {
			url = g.BaseURL + m[1]
		}
	}

	return newListing(tags, false), nil
}
