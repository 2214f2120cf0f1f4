package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/internal/registry"
	pkgsecrets "github.com/Checker-Finance/execution-core/pkg/secrets"
	"github.com/Checker-Finance/execution-core/pkg/utils"
)

// PlatformCredentials is the resolved credential set for one trading
// platform adapter.
type PlatformCredentials struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	Passphrase string
}

// AdapterConfig renders the credentials as a registry construction config.
// Empty fields are omitted so adapters can apply their own defaults.
func (c PlatformCredentials) AdapterConfig() registry.Config {
	cfg := registry.Config{"api_key": c.APIKey, "api_secret": c.APISecret}
	if c.BaseURL != "" {
		cfg["base_url"] = c.BaseURL
	}
	if c.Passphrase != "" {
		cfg["passphrase"] = c.Passphrase
	}
	return cfg
}

// Resolver resolves per-platform adapter credentials from a secrets
// provider, caching results locally to reduce API calls.
//
// Secret naming convention: {env}/execution/{platform}
type Resolver struct {
	logger   *zap.Logger
	env      string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[PlatformCredentials]
}

// NewResolver constructs a per-platform credentials resolver.
func NewResolver(
	logger *zap.Logger,
	env string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[PlatformCredentials],
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger:   logger,
		env:      env,
		provider: provider,
		cache:    cache,
	}
}

// secretName builds the secrets manager key for a platform.
func (r *Resolver) secretName(platform string) string {
	return strings.ToLower(fmt.Sprintf("%s/execution/%s", r.env, platform))
}

// Resolve fetches or caches credentials for a platform.
func (r *Resolver) Resolve(ctx context.Context, platform string) (PlatformCredentials, error) {
	key := strings.ToLower(platform)

	if creds, ok := r.cache.Get(key); ok {
		return creds, nil
	}

	name := r.secretName(platform)
	secretMap, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return PlatformCredentials{}, fmt.Errorf("resolve credentials for %q: %w", platform, err)
	}

	creds := PlatformCredentials{
		APIKey:     secretMap["api_key"],
		APISecret:  secretMap["api_secret"],
		BaseURL:    secretMap["base_url"],
		Passphrase: secretMap["passphrase"],
	}
	if creds.APIKey == "" {
		return PlatformCredentials{}, fmt.Errorf("secret %q missing api_key", name)
	}

	r.cache.Put(key, creds)

	r.logger.Info("secrets.platform_credentials_resolved",
		zap.String("platform", platform),
		zap.String("api_key", utils.MaskKey(creds.APIKey)))
	return creds, nil
}

// DiscoverPlatforms lists platforms that have credentials configured.
// It searches the prefix "{env}/execution/" and extracts the final segment.
func (r *Resolver) DiscoverPlatforms(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(fmt.Sprintf("%s/execution/", r.env))

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover platforms: %w", err)
	}

	var platforms []string
	for _, name := range names {
		lower := strings.ToLower(name)
		trimmed := strings.TrimPrefix(lower, prefix)
		if trimmed != "" && trimmed != lower && !strings.Contains(trimmed, "/") {
			platforms = append(platforms, trimmed)
		}
	}

	r.logger.Info("secrets.platforms_discovered",
		zap.Int("count", len(platforms)),
		zap.Strings("platforms", platforms))
	return platforms, nil
}
