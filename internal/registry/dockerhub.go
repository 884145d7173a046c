package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nethserver/gitops-updater/internal/config"
)

// DockerHub lists tags through the hub.docker.com repositories API, which
// paginates through a "next" URL. Anonymous access works for public
// repositories; credentials raise the rate limit.
type DockerHub struct {
	BaseURL  string
	client   *http.Client
	maxPages int
}

// NewDockerHub creates a Docker Hub client. An empty credential degrades
// to anonymous access.
func NewDockerHub(cred config.Credential, maxPages int) *DockerHub {
	transport := http.DefaultTransport
	if cred.Username != "" && cred.Token != "" {
		transport = basicAuthTransport(cred.Username, cred.Token)
	}
	return &DockerHub{
		BaseURL:  "https://registry.hub.docker.com",
		client:   newHTTPClient(transport),
		maxPages: maxPages,
	}
}

type dockerHubTagsPage struct {
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
	Next string `json:"next"`
}

// ListTags follows pagination until exhaustion or the page cap.
func (d *DockerHub) ListTags(ctx context.Context, repository string) (*Listing, error) {
	url := fmt.Sprintf("%s/v2/repositories/%s/tags?page_size=100", d.BaseURL, repository)

	var tags []string
	pages := 0
	for url != "" {
		if d.maxPages > 0 && pages >= d.maxPages {
			return newListing(tags, true), nil
		}
		pages++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, requestError("dockerhub", err)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, requestError("dockerhub", err)
		}

		var page dockerHubTagsPage
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, statusError("dockerhub", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, decodeError("dockerhub", err)
		}
		resp.Body.Close()

		for _, result := range page.Results {
			if result.Name != "" {
				tags = append(tags, result.Name)
			}
		}
		url = page.Next
	}

	return newListing(tags, false), nil
}
