package config

import (
	"fmt"
	"os"
)

// MissingSecret is returned by a secret accessor when its backing
// environment variable is unset and no default applies.
type MissingSecret struct {
	Name string
}

func (e *MissingSecret) Error() string {
	return fmt.Sprintf("config: missing secret %q", e.Name)
}

type secretSpec struct {
	envVar     string
	fallback   string
	hasDefault bool
}

var secretSpecs = map[string]secretSpec{
	"llmToken":         {envVar: "LLM_TOKEN"},
	"llmBaseUrl":       {envVar: "LLM_BASE_URL"},
	"embeddingBaseUrl": {envVar: "EMBEDDING_BASE_URL"},
	"jwtSecret":        {envVar: "JWT_SECRET"},
	"jwtAnonKey":       {envVar: "JWT_ANON_KEY"},
	"jwtAuthUrl":       {envVar: "JWT_AUTH_URL", fallback: "http://localhost:9999", hasDefault: true},
	"ghToken":          {envVar: "GH_TOKEN"},
	"ghClientId":       {envVar: "GH_CLIENT_ID"},
}

// secret resolves and caches a named secret. Subsequent calls for the
// same name return the cached value without re-reading the
// environment.
func (c *Config) secret(name string) (string, error) {
	c.secretMu.Lock()
	defer c.secretMu.Unlock()

	if v, ok := c.secretCache[name]; ok {
		return v, nil
	}

	spec, ok := secretSpecs[name]
	if !ok {
		return "", fmt.Errorf("config: unknown secret %q", name)
	}

	val, set := os.LookupEnv(spec.envVar)
	if !set {
		if !spec.hasDefault {
			return "", &MissingSecret{Name: name}
		}
		val = spec.fallback
	}

	c.secretCache[name] = val
	return val, nil
}

// LLMToken returns the LLM provider API token.
func (c *Config) LLMToken() (string, error) { return c.secret("llmToken") }

// LLMBaseURL returns the LLM provider base URL.
func (c *Config) LLMBaseURL() (string, error) { return c.secret("llmBaseUrl") }

// EmbeddingBaseURL returns the embeddings provider base URL.
func (c *Config) EmbeddingBaseURL() (string, error) { return c.secret("embeddingBaseUrl") }

// JWTSecret returns the HMAC signing secret for locally-issued JWTs.
func (c *Config) JWTSecret() (string, error) { return c.secret("jwtSecret") }

// JWTAnonKey returns the anonymous-role API key. No storage backend in
// this module reads it; the Supabase variant uses its service role key.
func (c *Config) JWTAnonKey() (string, error) { return c.secret("jwtAnonKey") }

// JWTAuthURL returns the auth server base URL, defaulting to
// http://localhost:9999 when unset.
func (c *Config) JWTAuthURL() (string, error) { return c.secret("jwtAuthUrl") }

// GHToken returns the GitHub API token.
func (c *Config) GHToken() (string, error) { return c.secret("ghToken") }

// GHClientID returns the GitHub OAuth client ID.
func (c *Config) GHClientID() (string, error) { return c.secret("ghClientId") }
