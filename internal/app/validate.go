package app

import (
	"fmt"
	"os"

	"loom/pkg/config"
	"loom/pkg/provider"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, LOOMD_DB_PATH env, or server.db_path in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	p := eff.Config.Provider
	switch provider.Type(p.Type) {
	case provider.TypeOpenAI, provider.TypeAnthropic:
		if p.APIKey == "" {
			return fmt.Errorf("provider %q requires an api key: set provider.api_key or LOOMD_PROVIDER_API_KEY", p.Type)
		}
	case "":
		return fmt.Errorf("no provider configured: set provider.type to openai or anthropic")
	default:
		return fmt.Errorf("unknown provider type: %q", p.Type)
	}

	return nil
}
