// Package registry lists published versions from the supported upstream
// APIs behind a single Client contract. Each registry type gets its own
// implementation; selection happens in New, by type tag, so call sites
// never branch on registry names.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nethserver/gitops-updater/internal/config"
)

// Client lists the published tags of one repository.
type Client interface {
	ListTags(ctx context.Context, repository string) (*Listing, error)
}

// The four failure classes every client maps its errors onto. Only
// ErrTransient is eligible for retry.
var (
	ErrAuthRequired = errors.New("authentication required")
	ErrNotFound     = errors.New("repository not found")
	ErrTransient    = errors.New("transient registry failure")
	ErrMalformed    = errors.New("malformed registry response")
)

// New returns the client for a registry type. Unknown types fall back to
// the generic Docker Registry V2 API with the type used as the host.
func New(registryType string, cred config.Credential, maxPages int) Client {
	switch registryType {
	case "dockerhub":
		return NewDockerHub(cred, maxPages)
	case "ghcr.io":
		return NewGHCR(cred, maxPages)
	case "quay.io":
		return NewQuay(maxPages)
	case "gcr.io":
		return NewGenericV2("https://gcr.io")
	default:
		return NewGenericV2("https://" + registryType)
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Kind names the failure class of err for reporting.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return "AuthRequired"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrTransient):
		return "Transient"
	case errors.Is(err, ErrMalformed):
		return "Malformed"
	}
	return "Unknown"
}

// classifyStatus maps an unexpected HTTP status onto a failure class.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthRequired
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return ErrTransient
	}
	return ErrMalformed
}

func statusError(registry string, code int) error {
	return fmt.Errorf("%s returned status %d: %w", registry, code, classifyStatus(code))
}

func requestError(registry string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s request failed: %v: %w", registry, err, ErrTransient)
}

func decodeError(registry string, err error) error {
	return fmt.Errorf("%s response unreadable: %v: %w", registry, err, ErrMalformed)
}

func newHTTPClient(transport http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}
