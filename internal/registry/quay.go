package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Quay lists tags through the quay.io API, which paginates by page
// number with a has_additional marker. Listing public repositories needs
// no credentials.
type Quay struct {
	BaseURL  string
	client   *http.Client
	maxPages int
}

// NewQuay creates a quay.io client.
func NewQuay(maxPages int) *Quay {
	return &Quay{
		BaseURL:  "https://quay.io",
		client:   newHTTPClient(http.DefaultTransport),
		maxPages: maxPages,
	}
}

type quayTagsPage struct {
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Page          int  `json:"page"`
	HasAdditional bool `json:"has_additional"`
}

// ListTags walks pages until has_additional goes false or the page cap.
func (q *Quay) ListTags(ctx context.Context, repository string) (*Listing, error) {
	var tags []string
	for page := 1; ; page++ {
		if q.maxPages > 0 && page > q.maxPages {
			return newListing(tags, true), nil
		}

		url := fmt.Sprintf("%s/api/v1/repository/%s/tag/?limit=100&page=%d", q.BaseURL, repository, page)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, requestError("quay.io", err)
		}
		resp, err := q.client.Do(req)
		if err != nil {
			return nil, requestError("quay.io", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, statusError("quay.io", resp.StatusCode)
		}
		var body quayTagsPage
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			resp.Body.Close()
			return nil, decodeError("quay.io", err)
		}
		resp.Body.Close()

		for _, tag := range body.Tags {
			if tag.Name != "" {
				tags = append(tags, tag.Name)
			}
		}
		if !body.HasAdditional {
			return newListing(tags, false), nil
		}
	}
}
