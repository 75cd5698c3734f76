package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// tokenRefreshBuffer is the time before token expiration to trigger a refresh.
const tokenRefreshBuffer = 5 * time.Minute

// keyVaultScope is the AAD scope for Key Vault data-plane requests.
const keyVaultScope = "https://vault.azure.net/.default"

// keyVaultAPIVersion pins the Key Vault REST API version.
const keyVaultAPIVersion = "7.4"

// AzureCredential implements Azure AD token authentication for Key Vault.
type AzureCredential struct {
	cred        azcore.TokenCredential
	mu          sync.RWMutex
	cachedToken *azcore.AccessToken
}

// NewAzureCredential creates an Azure credential using the default credential
// chain: managed identity, workload identity, environment variables, and the
// Azure CLI.
func NewAzureCredential(_ context.Context) (*AzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	return &AzureCredential{cred: cred}, nil
}

// Apply adds the Azure AD token to the request.
func (c *AzureCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get Azure token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}

// Type returns "azure".
func (c *AzureCredential) Type() string {
	return "azure"
}

// getToken retrieves the current Azure AD token, refreshing if necessary.
func (c *AzureCredential) getToken(ctx context.Context) (*azcore.AccessToken, error) {
	c.mu.RLock()
	if c.cachedToken != nil && c.cachedToken.ExpiresOn.After(time.Now().Add(tokenRefreshBuffer)) {
		token := c.cachedToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.cachedToken != nil && c.cachedToken.ExpiresOn.After(time.Now().Add(tokenRefreshBuffer)) {
		return c.cachedToken, nil
	}

	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{keyVaultScope},
	})
	if err != nil {
		return nil, err
	}

	c.cachedToken = &token
	return &token, nil
}

// KeyVaultClient reads secrets from an Azure Key Vault over its REST API.
type KeyVaultClient struct {
	cred   Credential
	client *http.Client
}

// KeyVaultOption configures a KeyVaultClient.
type KeyVaultOption func(*KeyVaultClient)

// WithKeyVaultHTTPClient sets a custom HTTP client.
func WithKeyVaultHTTPClient(client *http.Client) KeyVaultOption {
	return func(c *KeyVaultClient) {
		c.client = client
	}
}

// NewKeyVaultClient creates a Key Vault client authenticating with cred.
func NewKeyVaultClient(cred Credential, opts ...KeyVaultOption) *KeyVaultClient {
	c := &KeyVaultClient{
		cred:   cred,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSecret fetches the current version of a secret. vaultURL is the vault
// base URL, e.g. "https://myvault.vault.azure.net".
func (c *KeyVaultClient) GetSecret(ctx context.Context, vaultURL, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/secrets/%s?api-version=%s", vaultURL, url.PathEscape(name), keyVaultAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.cred.Apply(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("key vault request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("key vault returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var secret struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(body, &secret); err != nil {
		return "", fmt.Errorf("failed to parse secret response: %w", err)
	}
	if secret.Value == "" {
		return "", fmt.Errorf("secret %s has no value", name)
	}
	return secret.Value, nil
}

// truncateBody bounds an error body for messages.
func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
