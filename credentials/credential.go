// Package credentials resolves the API keys and cloud credentials the speech
// and conversation providers authenticate with. Keys come from the manifest,
// key files, environment variables, or a cloud secret store; resolution
// happens once at startup so a missing key fails the process before the
// first call connects.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Credential applies authentication to HTTP requests. Implementations cover
// AWS SigV4 signing for Bedrock and cloud identity tokens for the secret
// store clients.
type Credential interface {
	// Apply adds authentication to the HTTP request.
	// It may modify headers, query parameters, or the request body.
	Apply(ctx context.Context, req *http.Request) error

	// Type returns the credential type identifier (e.g., "aws", "gcp", "azure").
	Type() string
}

// Key is a resolved provider API key together with where it came from.
// Value never appears in logs; log the Key itself.
type Key struct {
	// Provider is the provider the key authenticates ("openai",
	// "elevenlabs").
	Provider string

	// Source records provenance: "config", "file", "env:<NAME>",
	// "azure-key-vault", or "gcp-secret-manager".
	Source string

	// Value is the raw key.
	Value string
}

// String describes the key without exposing its value.
func (k Key) String() string {
	return fmt.Sprintf("%s key from %s", k.Provider, k.Source)
}

// LogValue keeps structured log output to the String form, so the JSON
// handler never serializes Value.
func (k Key) LogValue() slog.Value {
	return slog.StringValue(k.String())
}
