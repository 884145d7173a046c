package config

import "os"

// Credential authenticates calls against one registry type.
type Credential struct {
	Username string
	Token    string
}

// Credentials maps registry type to the credential to use for it. A
// missing entry means anonymous access.
type Credentials map[string]Credential

func getEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
	}
	return ""
}

// CredentialsFromEnv collects registry credentials from the process
// environment. Docker Hub uses basic auth, ghcr.io a bearer token.
func CredentialsFromEnv() Credentials {
	creds := Credentials{}

	username := getEnv("DOCKERHUB_USERNAME")
	token := getEnv("DOCKERHUB_TOKEN", "DOCKERHUB_PASSWORD")
	if username != "" && token != "" {
		creds["dockerhub"] = Credential{Username: username, Token: token}
	}

	if ghToken := getEnv("GITHUB_TOKEN", "GH_TOKEN"); ghToken != "" {
		creds["ghcr.io"] = Credential{Token: ghToken}
	}

	return creds
}

// LimitsFor returns the per-registry concurrency bounds, raised for
// registries where credentials buy a higher rate limit. Docker Hub allows
// roughly double the request budget once authenticated.
func (c *Config) LimitsFor(creds Credentials) map[string]int64 {
	limits := make(map[string]int64, len(c.Registries.Limits))
	for registry, limit := range c.Registries.Limits {
		limits[registry] = limit
	}
	if _, ok := creds["dockerhub"]; ok {
		if limits["dockerhub"] < 5 {
			limits["dockerhub"] = 5
		}
	}
	return limits
}
