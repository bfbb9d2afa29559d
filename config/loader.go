package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ebogdum/flystream/locks"
)

// EnvPrefix prefixes every environment override. Nested keys are separated by a double
// underscore: FLYSTREAM_SCHEMES__DOCS__LOCK_TTL=60s sets schemes.docs.lock_ttl.
const EnvPrefix = "FLYSTREAM_"

var schemeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9+-]*$`)

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	defaultCfg := DefaultAppConfig()
	if err := k.Load(structs.Provider(defaultCfg, "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	// Load from config file
	if configFilePath != "" {
		// Use specified config file
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}

		if err := k.Load(file.Provider(configFilePath), parserFor(configFilePath)); err != nil {
			return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	} else {
		// Load from default config files if they exist
		configFiles := []string{"config.yaml", "config.yml", "config.json"}
		for _, configFile := range configFiles {
			if _, err := os.Stat(configFile); err == nil {
				if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
					return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
				}
				break
			}
		}
	}

	// Load environment variables with FLYSTREAM_ prefix
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into config struct
	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, scheme := range cfg.Schemes {
		cfg.Schemes[name] = applySchemeDefaults(scheme)
	}

	// Validate required fields
	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	if strings.HasSuffix(path, ".json") {
		return json.Parser()
	}
	return yaml.Parser()
}

// envKey maps FLYSTREAM_SCHEMES__DOCS__LOCK_TTL to schemes.docs.lock_ttl
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// validateConfig validates that required configuration fields are set
func validateConfig(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}

	if len(cfg.Schemes) == 0 {
		return fmt.Errorf("schemes must contain at least one scheme")
	}

	for name, scheme := range cfg.Schemes {
		if err := validateScheme(name, scheme); err != nil {
			return fmt.Errorf("schemes.%s: %w", name, err)
		}
	}

	return nil
}

func validateScheme(name string, c SchemeConfig) error {
	if !schemeNamePattern.MatchString(name) {
		return fmt.Errorf("invalid scheme name")
	}

	switch c.Backend {
	case "localfs":
		if c.LocalFSRootPath == "" {
			return fmt.Errorf("localfs_root_path is required")
		}
	case "s3":
		if c.S3BucketName == "" {
			return fmt.Errorf("s3_bucket_name is required")
		}
	case "sqlfs":
		if c.SQLDriver != "sqlite" && c.SQLDriver != "postgres" {
			return fmt.Errorf("sql_driver must be sqlite or postgres, got %q", c.SQLDriver)
		}
		if c.SQLDSN == "" {
			return fmt.Errorf("sql_dsn is required")
		}
	case "noop":
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}

	if err := locks.ValidateStore(c.LockStore); err != nil {
		return fmt.Errorf("lock_store: %w", err)
	}

	if _, err := c.PortableVisibility(); err != nil {
		return err
	}

	return nil
}
