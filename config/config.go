// Package config provides configuration management for flystream.
// It handles loading and validating configuration from YAML/JSON files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ebogdum/flystream/backends"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server  ServerConfig            `koanf:"server"`
	Auth    AuthConfig              `koanf:"auth"`
	Log     LogConfig               `koanf:"log"`
	Metrics MetricsConfig           `koanf:"metrics"`
	Locks   LocksConfig             `koanf:"locks"`
	Schemes map[string]SchemeConfig `koanf:"schemes"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr     string        `koanf:"listen_addr"`
	CertFile       string        `koanf:"cert_file"` // Plain HTTP when empty
	KeyFile        string        `koanf:"key_file"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	FileOpTimeout  time.Duration `koanf:"file_op_timeout"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"`
	RateLimit      float64       `koanf:"rate_limit"` // Requests per second per client, 0 disables
	RateBurst      int           `koanf:"rate_burst"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys         []string `koanf:"api_keys"`
	ReadOnlyAPIKeys []string `koanf:"read_only_api_keys"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Redact string `koanf:"redact"` // production, development or debug
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr"` // Served on the main router when empty
}

// LocksConfig holds settings shared by all lock stores
type LocksConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
}

// SchemeConfig holds the operator and bridge settings of one registered scheme
type SchemeConfig struct {
	Backend string `koanf:"backend"` // "localfs", "s3", "sqlfs" or "noop"

	LocalFSRootPath string `koanf:"localfs_root_path"`

	S3AccessKey            string `koanf:"s3_access_key"`
	S3SecretKey            string `koanf:"s3_secret_key"`
	S3Region               string `koanf:"s3_region"`
	S3BucketName           string `koanf:"s3_bucket_name"`
	S3Prefix               string `koanf:"s3_prefix"`
	S3Endpoint             string `koanf:"s3_endpoint"`               // Custom S3 endpoint (e.g., for MinIO)
	S3DisableSSL           bool   `koanf:"s3_disable_ssl"`            // Plain HTTP to the endpoint
	S3ServerSideEncryption string `koanf:"s3_server_side_encryption"` // SSE algorithm (AES256, aws:kms)
	S3ACL                  string `koanf:"s3_acl"`                    // ACL used when no visibility is requested
	S3KMSKeyID             string `koanf:"s3_kms_key_id"`             // KMS key ID for SSE-KMS

	SQLDriver string `koanf:"sql_driver"` // "sqlite" or "postgres"
	SQLDSN    string `koanf:"sql_dsn"`    // File path for sqlite, connection string for postgres

	LockStore string        `koanf:"lock_store"`
	LockTTL   time.Duration `koanf:"lock_ttl"`

	IgnoreVisibilityErrors       bool `koanf:"ignore_visibility_errors"`
	EmulateDirectoryLastModified bool `koanf:"emulate_directory_last_modified"`
	LegacyRenameErrors           bool `koanf:"legacy_rename_errors"`

	UID *int `koanf:"uid"`
	GID *int `koanf:"gid"`

	VisibilityFilePublic            string `koanf:"visibility_file_public"`
	VisibilityFilePrivate           string `koanf:"visibility_file_private"`
	VisibilityDirectoryPublic       string `koanf:"visibility_directory_public"`
	VisibilityDirectoryPrivate      string `koanf:"visibility_directory_private"`
	VisibilityDefaultForDirectories string `koanf:"visibility_default_for_directories"`

	BufferMemoryLimit int64  `koanf:"buffer_memory_limit"`
	BufferTempDir     string `koanf:"buffer_temp_dir"`
}

// PortableVisibility builds the permission table from the octal strings
func (c SchemeConfig) PortableVisibility() (backends.PortableVisibility, error) {
	table := backends.DefaultPortableVisibility()

	fields := []struct {
		name  string
		value string
		dst   *os.FileMode
	}{
		{"visibility_file_public", c.VisibilityFilePublic, &table.FilePublic},
		{"visibility_file_private", c.VisibilityFilePrivate, &table.FilePrivate},
		{"visibility_directory_public", c.VisibilityDirectoryPublic, &table.DirectoryPublic},
		{"visibility_directory_private", c.VisibilityDirectoryPrivate, &table.DirectoryPrivate},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		perm, err := strconv.ParseUint(f.value, 8, 32)
		if err != nil || perm > 0o777 {
			return table, fmt.Errorf("%s: invalid permission %q", f.name, f.value)
		}
		*f.dst = os.FileMode(perm)
	}

	if c.VisibilityDefaultForDirectories != "" {
		v, ok := backends.ParseVisibility(c.VisibilityDefaultForDirectories)
		if !ok {
			return table, fmt.Errorf("visibility_default_for_directories: must be public or private, got %q", c.VisibilityDefaultForDirectories)
		}
		table.DefaultForDirectories = v
	}

	return table, nil
}
