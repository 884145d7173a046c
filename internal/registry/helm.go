package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

// HelmRepo lists chart versions from a Helm repository's published
// index.yaml. It satisfies the same Client contract as the container
// registries: the "repository" argument is the chart name, and versions
// come back as candidates in the index order.
type HelmRepo struct {
	RepoURL string
	client  *http.Client
}

// NewHelmRepoClient adapts NewHelmRepo to the generic Client contract.
func NewHelmRepoClient(repoURL string) Client {
	return NewHelmRepo(repoURL)
}

// NewHelmRepo creates a client for the chart repository at repoURL.
func NewHelmRepo(repoURL string) *HelmRepo {
	return &HelmRepo{
		RepoURL: strings.TrimRight(repoURL, "/"),
		client:  newHTTPClient(http.DefaultTransport),
	}
}

type helmIndex struct {
	Entries map[string][]struct {
		Version string `yaml:"version"`
	} `yaml:"entries"`
}

// ListTags fetches index.yaml and returns the published versions of the
// named chart. A chart absent from the index is NotFound.
func (h *HelmRepo) ListTags(ctx context.Context, chartName string) (*Listing, error) {
	url := h.RepoURL + "/index.yaml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, requestError(h.RepoURL, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, requestError(h.RepoURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(h.RepoURL, resp.StatusCode)
	}
	var index helmIndex
	if err := yaml.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, decodeError(h.RepoURL, err)
	}

	entries, ok := index.Entries[chartName]
	if !ok {
		return nil, fmt.Errorf("chart %q not in index of %s: %w", chartName, h.RepoURL, ErrNotFound)
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Version != "" {
			versions = append(versions, entry.Version)
		}
	}
	return newListing(versions, false), nil
}
