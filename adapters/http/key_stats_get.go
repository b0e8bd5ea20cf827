package authhttp

import (
	"encoding/json"
	"net/http"

	oidckit "github.com/PaulFidika/oidcverify/oidc"
)

// KeyStatsSource is satisfied by core.Service.
type KeyStatsSource interface {
	Stats() []oidckit.KeySetStats
}

// KeyStatsHandler serves the key-cache state of every issuer as JSON.
func KeyStatsHandler(src KeyStatsSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(map[string]any{"issuers": src.Stats()})
	})
}
