package credentials

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Secret reference schemes.
const (
	schemeAzureKeyVault    = "azkv"
	schemeGCPSecretManager = "gcpsm"
)

// resolveSecretRef fetches a provider key from a cloud secret store. The
// store client authenticates with the platform's default credential chain,
// so the process identity (managed identity, workload identity, instance
// role) controls access.
func resolveSecretRef(ctx context.Context, provider, ref string) (Key, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return Key{}, fmt.Errorf("invalid secret reference %q: %w", ref, err)
	}
	name := strings.Trim(u.Path, "/")
	if u.Host == "" || name == "" {
		return Key{}, fmt.Errorf("invalid secret reference %q: expected <scheme>://<host>/<name>", ref)
	}

	switch u.Scheme {
	case schemeAzureKeyVault:
		cred, err := NewAzureCredential(ctx)
		if err != nil {
			return Key{}, err
		}
		value, err := NewKeyVaultClient(cred).GetSecret(ctx, "https://"+u.Host, name)
		if err != nil {
			return Key{}, fmt.Errorf("azure key vault secret %s: %w", name, err)
		}
		return Key{Provider: provider, Source: SourceAzureKeyVault, Value: value}, nil

	case schemeGCPSecretManager:
		cred, err := NewGCPCredential(ctx)
		if err != nil {
			return Key{}, err
		}
		value, err := NewSecretManagerClient(cred).AccessSecret(ctx, u.Host, name)
		if err != nil {
			return Key{}, fmt.Errorf("gcp secret %s: %w", name, err)
		}
		return Key{Provider: provider, Source: SourceGCPSecretManager, Value: value}, nil

	default:
		return Key{}, fmt.Errorf("unsupported secret reference scheme %q", u.Scheme)
	}
}
