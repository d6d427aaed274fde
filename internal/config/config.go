package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	FUSE       FUSEConfig       `yaml:"fuse"`
	Health     HealthConfig     `yaml:"health"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// FilesystemConfig describes the virtual filesystem and the local directory backing it
type FilesystemConfig struct {
	Scheme     string `yaml:"scheme"`
	Authority  string `yaml:"authority"`
	Root       string `yaml:"root"`
	WorkingDir string `yaml:"working_dir"`
	BlockSize  string `yaml:"block_size"`
	BufferSize string `yaml:"buffer_size"`
	FileMode   string `yaml:"file_mode"`
	DirMode    string `yaml:"dir_mode"`
	// OwnerEncoding selects how native owner strings are parsed: "posix" or "acl".
	OwnerEncoding string `yaml:"owner_encoding"`
}

// APIConfig represents the HTTP API server settings
type APIConfig struct {
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableMetrics bool          `yaml:"enable_metrics"`
	// EnableCORS adds permissive CORS headers for browser clients.
	EnableCORS bool `yaml:"enable_cors"`
}

// MetricsConfig represents Prometheus collector settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// FUSEConfig represents kernel mount settings
type FUSEConfig struct {
	MountPoint string `yaml:"mount_point"`
	ReadOnly   bool   `yaml:"read_only"`
	AllowOther bool   `yaml:"allow_other"`
	Debug      bool   `yaml:"debug"`
	FSName     string `yaml:"fs_name"`
}

// HealthConfig represents component health tracking settings
type HealthConfig struct {
	CheckInterval        time.Duration `yaml:"check_interval"`
	ErrorThreshold       int           `yaml:"error_threshold"`
	UnavailableThreshold int           `yaml:"unavailable_threshold"`
	RecoveryThreshold    int           `yaml:"recovery_threshold"`
}

// Owner encodings understood by the filesystem
const (
	OwnerEncodingPOSIX = "posix"
	OwnerEncodingACL   = "acl"
)

var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*$`)

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
			LogFile:   "",
		},
		Filesystem: FilesystemConfig{
			Scheme:        "xdfs",
			Authority:     "",
			Root:          "/",
			WorkingDir:    "",
			BlockSize:     "32MB",
			BufferSize:    "4KB",
			FileMode:      "0644",
			DirMode:       "0755",
			OwnerEncoding: OwnerEncodingPOSIX,
		},
		API: APIConfig{
			Address:       "localhost:8080",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  60 * time.Second,
			IdleTimeout:   120 * time.Second,
			EnableMetrics: true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "diskvfs",
			Subsystem: "",
		},
		FUSE: FUSEConfig{
			FSName: "diskvfs",
		},
		Health: HealthConfig{
			CheckInterval:        30 * time.Second,
			ErrorThreshold:       3,
			UnavailableThreshold: 10,
			RecoveryThreshold:    5,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("DISKVFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("DISKVFS_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("DISKVFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}

	if val := os.Getenv("DISKVFS_ROOT"); val != "" {
		c.Filesystem.Root = val
	}
	if val := os.Getenv("DISKVFS_SCHEME"); val != "" {
		c.Filesystem.Scheme = val
	}
	if val := os.Getenv("DISKVFS_BLOCK_SIZE"); val != "" {
		c.Filesystem.BlockSize = val
	}
	if val := os.Getenv("DISKVFS_OWNER_ENCODING"); val != "" {
		c.Filesystem.OwnerEncoding = strings.ToLower(val)
	}

	if val := os.Getenv("DISKVFS_API_ADDRESS"); val != "" {
		c.API.Address = val
	}

	if val := os.Getenv("DISKVFS_API_ENABLE_CORS"); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid DISKVFS_API_ENABLE_CORS: %w", err)
		}
		c.API.EnableCORS = enabled
	}

	if val := os.Getenv("DISKVFS_METRICS_ENABLED"); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid DISKVFS_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = enabled
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("global.log_level", err)
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return invalid("global.log_format", err)
	}

	fsc := c.Filesystem
	if !schemePattern.MatchString(fsc.Scheme) {
		return invalid("filesystem.scheme", fmt.Errorf("invalid scheme %q", fsc.Scheme))
	}
	if strings.ContainsRune(fsc.Authority, '/') {
		return invalid("filesystem.authority", fmt.Errorf("authority cannot contain '/'"))
	}
	if !filepath.IsAbs(fsc.Root) {
		return invalid("filesystem.root", fmt.Errorf("root must be an absolute path: %q", fsc.Root))
	}
	if fsc.WorkingDir != "" && !strings.HasPrefix(fsc.WorkingDir, "/") {
		return invalid("filesystem.working_dir", fmt.Errorf("working directory must be absolute: %q", fsc.WorkingDir))
	}
	if _, err := c.BlockSizeBytes(); err != nil {
		return invalid("filesystem.block_size", err)
	}
	if _, err := c.BufferSizeBytes(); err != nil {
		return invalid("filesystem.buffer_size", err)
	}
	if _, err := c.FilePermission(); err != nil {
		return invalid("filesystem.file_mode", err)
	}
	if _, err := c.DirPermission(); err != nil {
		return invalid("filesystem.dir_mode", err)
	}
	switch fsc.OwnerEncoding {
	case OwnerEncodingPOSIX, OwnerEncodingACL:
	default:
		return invalid("filesystem.owner_encoding",
			fmt.Errorf("must be one of: %s, %s", OwnerEncodingPOSIX, OwnerEncodingACL))
	}

	if c.API.Address == "" {
		return invalid("api.address", fmt.Errorf("address cannot be empty"))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return invalid("metrics.namespace", fmt.Errorf("namespace is required when metrics are enabled"))
	}

	h := c.Health
	if h.ErrorThreshold <= 0 || h.UnavailableThreshold <= 0 || h.RecoveryThreshold <= 0 {
		return invalid("health", fmt.Errorf("thresholds must be greater than 0"))
	}
	if h.UnavailableThreshold < h.ErrorThreshold {
		return invalid("health.unavailable_threshold", fmt.Errorf("must not be below error_threshold"))
	}

	return nil
}

func invalid(field string, err error) error {
	return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf("invalid %s", field)).
		WithComponent("config").
		WithDetail("field", field).
		WithCause(err)
}

// BlockSizeBytes parses filesystem.block_size
func (c *Configuration) BlockSizeBytes() (int64, error) {
	return positiveSize(c.Filesystem.BlockSize)
}

// BufferSizeBytes parses filesystem.buffer_size
func (c *Configuration) BufferSizeBytes() (int64, error) {
	return positiveSize(c.Filesystem.BufferSize)
}

func positiveSize(s string) (int64, error) {
	n, err := utils.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be greater than 0: %q", s)
	}
	return n, nil
}

// FilePermission parses filesystem.file_mode as octal
func (c *Configuration) FilePermission() (os.FileMode, error) {
	return parseMode(c.Filesystem.FileMode)
}

// DirPermission parses filesystem.dir_mode as octal
func (c *Configuration) DirPermission() (os.FileMode, error) {
	return parseMode(c.Filesystem.DirMode)
}

func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", s, err)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("mode out of range: %q", s)
	}
	return os.FileMode(v), nil
}
