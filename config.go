package icevault

import (
	"regexp"
	"time"
)

// S3Config holds S3-specific configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Endpoint        string // For MinIO, LocalStack, etc.
	ForcePathStyle  bool   // Required for MinIO
}

// Config holds the client configuration.
type Config struct {
	// Catalog configuration
	CatalogURI  string
	CatalogName string
	Token       string // Bearer token

	// Storage configuration
	S3Config *S3Config

	// Backup repository location
	BackupBucket string
	BackupPrefix string // optional key prefix inside the backup bucket

	// CopyDataFiles controls whether backup copies data files into the
	// backup root. When false the backup references the source files and
	// is not independent of the source table.
	CopyDataFiles bool

	// DataFileFailureRatio is the fraction of failed best-effort data
	// file copies above which a backup is marked failed.
	DataFileFailureRatio float64

	// Retry configuration for object store calls
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		CatalogName:          "rest",
		CopyDataFiles:        true,
		DataFileFailureRatio: 0.5,
		MaxRetries:           3,
		RetryBackoff:         time.Second,
	}
}

// Option is a functional option for client configuration.
type Option func(*Config)

// WithCatalog configures the REST catalog endpoint.
func WithCatalog(uri string) Option {
	return func(c *Config) {
		c.CatalogURI = uri
	}
}

// WithCatalogName sets the catalog name.
func WithCatalogName(name string) Option {
	return func(c *Config) {
		c.CatalogName = name
	}
}

// WithToken sets a bearer token for catalog authentication.
func WithToken(token string) Option {
	return func(c *Config) {
		c.Token = token
	}
}

// WithS3 configures the S3 object store.
func WithS3(cfg *S3Config) Option {
	return func(c *Config) {
		c.S3Config = cfg
	}
}

// WithBackupBucket sets the bucket (and optional key prefix) holding
// backup repositories.
func WithBackupBucket(bucket, prefix string) Option {
	return func(c *Config) {
		c.BackupBucket = bucket
		c.BackupPrefix = prefix
	}
}

// WithCopyDataFiles controls data file copying during backup.
func WithCopyDataFiles(copy bool) Option {
	return func(c *Config) {
		c.CopyDataFiles = copy
	}
}

// WithDataFileFailureRatio sets the abort threshold for failed data file
// copies during backup.
func WithDataFileFailureRatio(ratio float64) Option {
	return func(c *Config) {
		c.DataFileFailureRatio = ratio
	}
}

// WithMaxRetries sets the maximum number of retry attempts for object
// store calls.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithRetryBackoff sets the initial backoff duration for retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Config) {
		c.RetryBackoff = d
	}
}

var backupNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateBackupName rejects empty or unsafe backup names before any I/O.
// Backup names become object store key prefixes, so only letters, digits,
// hyphens and underscores are allowed.
func ValidateBackupName(name string) error {
	if name == "" {
		return &ValidationError{Field: "backup name", Message: "cannot be empty"}
	}
	if !backupNamePattern.MatchString(name) {
		return &ValidationError{
			Field:   "backup name",
			Message: "must contain only letters, numbers, hyphens, and underscores",
		}
	}
	return nil
}

// ValidateIdentifier rejects empty database or table identifiers.
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "cannot be empty"}
	}
	return nil
}
