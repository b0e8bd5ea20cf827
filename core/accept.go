package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	oidckit "github.com/PaulFidika/oidcverify/oidc"
	"github.com/spf13/viper"
)

// AcceptConfig configures verification of third-party JWTs (verify-only mode).
type AcceptConfig struct {
	Issuers []IssuerAccept `mapstructure:"issuers"`
	// Skew is the clock tolerance applied to exp and nbf for every issuer.
	Skew time.Duration `mapstructure:"skew"`
	// HTTPTimeout bounds discovery and key-set requests.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// RefreshInterval schedules background key-set refreshes; zero disables them.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// IssuerAccept describes how to accept tokens from a specific issuer.
type IssuerAccept struct {
	// Issuer is an issuer URL or a known alias such as "google".
	Issuer         string        `mapstructure:"issuer"`
	Audiences      []string      `mapstructure:"audiences"` // any one must be present in aud
	RequireSubject bool          `mapstructure:"require_subject"`
	RequiredClaims []string      `mapstructure:"required_claims"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	MaxStale       time.Duration `mapstructure:"max_stale"`
	KeyIDMatching  bool          `mapstructure:"key_id_matching"`
}

// Policy returns the verification policy for tokens of this issuer.
func (ia IssuerAccept) Policy(skew time.Duration) oidckit.VerificationPolicy {
	return oidckit.VerificationPolicy{
		Issuer:         ia.Issuer,
		Audiences:      ia.Audiences,
		RequireSubject: ia.RequireSubject,
		RequiredClaims: ia.RequiredClaims,
		Skew:           skew,
	}
}

// LoadAcceptConfig reads an AcceptConfig from a YAML (or any viper-supported)
// file. OIDC_* environment variables override top-level settings, e.g.
// OIDC_SKEW=30s. Durations are written as strings ("24h").
func LoadAcceptConfig(path string) (AcceptConfig, error) {
	v := viper.New()
	v.SetDefault("skew", "0s")
	v.SetDefault("http_timeout", "10s")
	v.SetDefault("refresh_interval", "0s")
	v.SetEnvPrefix("OIDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return AcceptConfig{}, fmt.Errorf("read accept config %s: %w", path, err)
		}
	}

	var cfg AcceptConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AcceptConfig{}, fmt.Errorf("unmarshal accept config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return AcceptConfig{}, err
	}
	return cfg, nil
}

// normalize resolves issuer aliases and rejects unusable entries.
func (c *AcceptConfig) normalize() error {
	if len(c.Issuers) == 0 {
		return fmt.Errorf("accept config: no issuers configured")
	}
	seen := make(map[string]bool, len(c.Issuers))
	for i := range c.Issuers {
		ia := &c.Issuers[i]
		name := strings.TrimSpace(ia.Issuer)
		ia.Issuer = oidckit.ResolveIssuer(name)
		if ia.Issuer == "" {
			return fmt.Errorf("accept config: issuers[%d]: issuer is required", i)
		}
		if strings.EqualFold(name, "microsoft") {
			return fmt.Errorf("accept config: issuers[%d]: microsoft is multi-tenant; configure the tenant issuer URL (https://login.microsoftonline.com/<tenant-id>/v2.0)", i)
		}
		if u, err := url.Parse(ia.Issuer); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("accept config: issuers[%d]: %q is neither a known issuer name nor an absolute URL", i, name)
		}
		key := strings.TrimSuffix(ia.Issuer, "/")
		if seen[key] {
			return fmt.Errorf("accept config: duplicate issuer %s", ia.Issuer)
		}
		seen[key] = true
	}
	return nil
}
