package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EffectiveConfigResult carries the merged configuration plus the resolved
// listen address and db path, and which source won (flags, env, config).
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ParseCommandFlags parses the standard loomd flags and reports which were
// explicitly set, so callers can let flags win over env and file values.
func ParseCommandFlags() (addr, db, cfgPath string, setFlags map[string]bool) {
	addrFlag := flag.String("addr", ":8080", "listen address")
	dbFlag := flag.String("db", "./data", "database path")
	cfgFlag := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrFlag, *dbFlag, *cfgFlag, setFlags
}

// ResolveConfigPath picks the config path: explicit flag wins, then the
// LOOMD_CONFIG env var, then ./loomd.yaml.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if p := os.Getenv("LOOMD_CONFIG"); p != "" {
		return p
	}
	return "loomd.yaml"
}

// LoadEffective merges config file and environment into an effective
// configuration. A missing file is not an error; env vars override file
// values, and callers apply explicitly-set flags on top.
func LoadEffective(path string) (EffectiveConfigResult, error) {
	cfg, err := Load(path)
	source := "config"
	if err != nil {
		if !strings.Contains(err.Error(), "not found") {
			return EffectiveConfigResult{}, err
		}
		cfg = &Config{}
		source = "defaults"
	}

	envUsed := applyEnv(cfg)
	if envUsed {
		source = "env"
	}

	dbPath := cfg.Server.DBPath
	if dbPath == "" {
		dbPath = "./data"
	}
	return EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: dbPath, Source: source}, nil
}

// applyEnv overlays LOOMD_* environment variables and reports whether any
// were present.
func applyEnv(cfg *Config) bool {
	used := false
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
			used = true
		}
	}
	set(&cfg.Server.Address, "LOOMD_ADDRESS")
	set(&cfg.Server.DBPath, "LOOMD_DB_PATH")
	set(&cfg.Provider.Type, "LOOMD_PROVIDER")
	set(&cfg.Provider.BaseURL, "LOOMD_PROVIDER_BASE_URL")
	set(&cfg.Provider.APIKey, "LOOMD_PROVIDER_API_KEY")
	set(&cfg.Provider.Model, "LOOMD_PROVIDER_MODEL")
	set(&cfg.Logging.Level, "LOOMD_LOG_LEVEL")
	return used
}
