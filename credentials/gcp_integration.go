package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// gcpTokenRefreshBuffer is the time before token expiration to trigger a refresh.
const gcpTokenRefreshBuffer = 5 * time.Minute

// defaultSecretManagerBaseURL is the Secret Manager REST endpoint.
const defaultSecretManagerBaseURL = "https://secretmanager.googleapis.com"

// GCPCredential implements OAuth2 token authentication for Google APIs.
type GCPCredential struct {
	tokenSource oauth2.TokenSource
	mu          sync.RWMutex
	cachedToken *oauth2.Token
}

// NewGCPCredential creates a GCP credential using Application Default
// Credentials: workload identity, service account keys, and gcloud auth.
func NewGCPCredential(ctx context.Context) (*GCPCredential, error) {
	tokenSource, err := google.DefaultTokenSource(ctx,
		"https://www.googleapis.com/auth/cloud-platform",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token source: %w", err)
	}

	return &GCPCredential{tokenSource: tokenSource}, nil
}

// Apply adds the OAuth2 token to the request.
func (c *GCPCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCP token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return nil
}

// Type returns "gcp".
func (c *GCPCredential) Type() string {
	return "gcp"
}

// getToken retrieves the current OAuth2 token, refreshing if necessary.
func (c *GCPCredential) getToken(_ context.Context) (*oauth2.Token, error) {
	c.mu.RLock()
	if c.cachedToken != nil && c.cachedToken.Valid() {
		token := c.cachedToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.cachedToken != nil && c.cachedToken.Valid() {
		return c.cachedToken, nil
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	// Only cache tokens with enough life left to be worth reusing
	if token.Expiry.After(time.Now().Add(gcpTokenRefreshBuffer)) {
		c.cachedToken = token
	}

	return token, nil
}

// SecretManagerClient reads secrets from GCP Secret Manager over its REST API.
type SecretManagerClient struct {
	cred    Credential
	client  *http.Client
	baseURL string
}

// SecretManagerOption configures a SecretManagerClient.
type SecretManagerOption func(*SecretManagerClient)

// WithSecretManagerBaseURL overrides the Secret Manager endpoint.
func WithSecretManagerBaseURL(baseURL string) SecretManagerOption {
	return func(c *SecretManagerClient) {
		c.baseURL = baseURL
	}
}

// WithSecretManagerHTTPClient sets a custom HTTP client.
func WithSecretManagerHTTPClient(client *http.Client) SecretManagerOption {
	return func(c *SecretManagerClient) {
		c.client = client
	}
}

// NewSecretManagerClient creates a Secret Manager client authenticating with
// cred.
func NewSecretManagerClient(cred Credential, opts ...SecretManagerOption) *SecretManagerClient {
	c := &SecretManagerClient{
		cred:    cred,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultSecretManagerBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccessSecret fetches the latest version of a secret in a project.
func (c *SecretManagerClient) AccessSecret(ctx context.Context, project, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/projects/%s/secrets/%s/versions/latest:access",
		c.baseURL, url.PathEscape(project), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.cred.Apply(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("secret manager request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("secret manager returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var access struct {
		Payload struct {
			Data string `json:"data"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &access); err != nil {
		return "", fmt.Errorf("failed to parse secret response: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(access.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret payload: %w", err)
	}
	if len(decoded) == 0 {
		return "", fmt.Errorf("secret %s has no value", name)
	}
	return string(decoded), nil
}
