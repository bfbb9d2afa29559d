package config

import "time"

// Scheme defaults
const (
	DefaultLockStore         = "flock:///tmp"
	DefaultLockTTL           = 300 * time.Second
	DefaultBufferMemoryLimit = 2 << 20
)

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			FileOpTimeout:  10 * time.Second,
			MaxUploadBytes: 100 << 20,
			RateLimit:      0,
			RateBurst:      20,
		},
		Auth: AuthConfig{
			APIKeys: []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Redact: "production",
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
		Locks: LocksConfig{
			PollInterval: 50 * time.Millisecond,
		},
		Schemes: map[string]SchemeConfig{},
	}
}

// DefaultSchemeConfig returns the settings a scheme starts from before its own values apply
func DefaultSchemeConfig() SchemeConfig {
	return SchemeConfig{
		Backend:                         "localfs",
		S3Region:                        "us-east-1",
		S3ServerSideEncryption:          "",
		S3ACL:                           "private", // Default to private ACL for security
		SQLDriver:                       "sqlite",
		LockStore:                       DefaultLockStore,
		LockTTL:                         DefaultLockTTL,
		VisibilityFilePublic:            "0644",
		VisibilityFilePrivate:           "0600",
		VisibilityDirectoryPublic:       "0755",
		VisibilityDirectoryPrivate:      "0700",
		VisibilityDefaultForDirectories: "private",
		BufferMemoryLimit:               DefaultBufferMemoryLimit,
	}
}

// applySchemeDefaults fills every unset field of a scheme with its default
func applySchemeDefaults(c SchemeConfig) SchemeConfig {
	d := DefaultSchemeConfig()

	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.S3Region == "" {
		c.S3Region = d.S3Region
	}
	if c.S3ACL == "" {
		c.S3ACL = d.S3ACL
	}
	if c.SQLDriver == "" {
		c.SQLDriver = d.SQLDriver
	}
	if c.LockStore == "" {
		c.LockStore = d.LockStore
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.VisibilityFilePublic == "" {
		c.VisibilityFilePublic = d.VisibilityFilePublic
	}
	if c.VisibilityFilePrivate == "" {
		c.VisibilityFilePrivate = d.VisibilityFilePrivate
	}
	if c.VisibilityDirectoryPublic == "" {
		c.VisibilityDirectoryPublic = d.VisibilityDirectoryPublic
	}
	if c.VisibilityDirectoryPrivate == "" {
		c.VisibilityDirectoryPrivate = d.VisibilityDirectoryPrivate
	}
	if c.VisibilityDefaultForDirectories == "" {
		c.VisibilityDefaultForDirectories = d.VisibilityDefaultForDirectories
	}
	if c.BufferMemoryLimit <= 0 {
		c.BufferMemoryLimit = d.BufferMemoryLimit
	}
	return c
}
