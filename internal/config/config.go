package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"evidencevault/internal/integrity"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7480"
	DefaultDBFileName = ".evidencevault.db"
	DefaultBlobDir    = ".evidencevault-blobs"
	DefaultLogLevel   = "info"

	BackendLocal = "local"
	BackendMinio = "minio"

	DefaultMaxUploadBytes     int64 = 512 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024
	DefaultPurgeBatchSize           = 100
	DefaultPurgeInterval            = 10 * time.Minute
	DefaultMinioBucket              = "evidence"
	DefaultNATSSubjectPrefix        = "custody"
	DefaultNATSStream               = "CUSTODY"

	configFileName           = ".evidencevault.toml"
	configDirEnvKey          = "EVV_CONFIG_DIR"
	trustProjectConfigEnvKey = "EVV_TRUST_PROJECT_CONFIG"
)

// StorageConfig selects where evidence bytes live and how they are digested.
type StorageConfig struct {
	Backend            string `toml:"backend"`
	Root               string `toml:"root"`
	HashAlgorithm      string `toml:"hash_algorithm"`
	MaxUploadBytes     int64  `toml:"max_upload_bytes"`
	MultipartMaxMemory int64  `toml:"multipart_max_memory"`
	PurgeBatchSize     int    `toml:"purge_batch_size"`
	PurgeInterval      string `toml:"purge_interval"`
}

// MinioConfig holds the S3-compatible backend settings.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// NATSConfig holds custody notification settings. An empty URL disables them.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
	Stream        string `toml:"stream"`
}

// PolicyConfig toggles optional access rules.
type PolicyConfig struct {
	EnforceUpload bool `toml:"enforce_upload"`
}

// Config defines runtime configuration for evidencevault.
type Config struct {
	APIURL                   string        `toml:"api_url"`
	DBPath                   string        `toml:"db_path"`
	LogLevel                 string        `toml:"log_level"`
	Storage                  StorageConfig `toml:"storage"`
	Minio                    MinioConfig   `toml:"minio"`
	NATS                     NATSConfig    `toml:"nats"`
	Policy                   PolicyConfig  `toml:"policy"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Backend:            BackendLocal,
			HashAlgorithm:      string(integrity.DefaultAlgorithm),
			MaxUploadBytes:     DefaultMaxUploadBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
			PurgeBatchSize:     DefaultPurgeBatchSize,
			PurgeInterval:      DefaultPurgeInterval.String(),
		},
		Minio: MinioConfig{
			Bucket: DefaultMinioBucket,
		},
		NATS: NATSConfig{
			SubjectPrefix: DefaultNATSSubjectPrefix,
			Stream:        DefaultNATSStream,
		},
	}
}

// PurgeEvery returns the sweeper period. Zero disables the periodic sweep.
func (c *Config) PurgeEvery() time.Duration {
	value := strings.TrimSpace(c.Storage.PurgeInterval)
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return DefaultPurgeInterval
	}
	return d
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"storage.backend",
	"storage.root",
	"storage.hash_algorithm",
	"storage.max_upload_bytes",
	"storage.multipart_max_memory",
	"storage.purge_batch_size",
	"storage.purge_interval",
	"minio.endpoint",
	"minio.access_key",
	"minio.secret_key",
	"minio.bucket",
	"minio.use_ssl",
	"nats.url",
	"nats.subject_prefix",
	"nats.stream",
	"policy.enforce_upload",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. Secrets are masked.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.root":
		return c.Storage.Root, nil
	case "storage.hash_algorithm":
		return c.Storage.HashAlgorithm, nil
	case "storage.max_upload_bytes":
		return strconv.FormatInt(c.Storage.MaxUploadBytes, 10), nil
	case "storage.multipart_max_memory":
		return strconv.FormatInt(c.Storage.MultipartMaxMemory, 10), nil
	case "storage.purge_batch_size":
		return strconv.Itoa(c.Storage.PurgeBatchSize), nil
	case "storage.purge_interval":
		return c.Storage.PurgeInterval, nil
	case "minio.endpoint":
		return c.Minio.Endpoint, nil
	case "minio.access_key":
		return c.Minio.AccessKey, nil
	case "minio.secret_key":
		if c.Minio.SecretKey == "" {
			return "", nil
		}
		return "********", nil
	case "minio.bucket":
		return c.Minio.Bucket, nil
	case "minio.use_ssl":
		return strconv.FormatBool(c.Minio.UseSSL), nil
	case "nats.url":
		return c.NATS.URL, nil
	case "nats.subject_prefix":
		return c.NATS.SubjectPrefix, nil
	case "nats.stream":
		return c.NATS.Stream, nil
	case "policy.enforce_upload":
		return strconv.FormatBool(c.Policy.EnforceUpload), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// The file may carry the MinIO secret.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnv(&cfg)

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.Storage.Root == "" && cfg.DBPath != "" {
		cfg.Storage.Root = filepath.Join(filepath.Dir(cfg.DBPath), DefaultBlobDir)
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*dst = value
		}
	}

	setString("EVV_LISTEN", &cfg.APIURL)
	setString("EVV_API_URL", &cfg.APIURL)
	setString("EVV_DB", &cfg.DBPath)
	setString("EVV_LOG_LEVEL", &cfg.LogLevel)
	setString("EVV_BLOB_BACKEND", &cfg.Storage.Backend)
	setString("EVV_BLOB_ROOT", &cfg.Storage.Root)
	setString("EVV_HASH_ALGORITHM", &cfg.Storage.HashAlgorithm)
	setString("EVV_NATS_URL", &cfg.NATS.URL)
	setString("EVV_MINIO_ENDPOINT", &cfg.Minio.Endpoint)
	setString("EVV_MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	setString("EVV_MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	setString("EVV_MINIO_BUCKET", &cfg.Minio.Bucket)

	if raw := strings.TrimSpace(os.Getenv("EVV_MINIO_USE_SSL")); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			cfg.Minio.UseSSL = parsed
		}
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendMinio:
		if strings.TrimSpace(c.Minio.Endpoint) == "" {
			return fmt.Errorf("storage.backend %q requires minio.endpoint", BackendMinio)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (want %s or %s)", c.Storage.Backend, BackendLocal, BackendMinio)
	}
	if _, err := integrity.ParseAlgorithm(c.Storage.HashAlgorithm); err != nil {
		return fmt.Errorf("storage.hash_algorithm: %w", err)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.max_upload_bytes", "storage.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.purge_batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.purge_interval":
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return nil, fmt.Errorf("%s must be a duration such as 10m", key)
		}
		return value, nil
	case "storage.backend":
		value = strings.ToLower(value)
		if value != BackendLocal && value != BackendMinio {
			return nil, fmt.Errorf("%s must be %s or %s", key, BackendLocal, BackendMinio)
		}
		return value, nil
	case "storage.hash_algorithm":
		alg, err := integrity.ParseAlgorithm(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return string(alg), nil
	case "minio.use_ssl", "policy.enforce_upload":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendLocal
	}
	if strings.TrimSpace(c.Storage.HashAlgorithm) == "" {
		c.Storage.HashAlgorithm = string(integrity.DefaultAlgorithm)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Storage.MultipartMaxMemory <= 0 {
		c.Storage.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.Storage.PurgeBatchSize <= 0 {
		c.Storage.PurgeBatchSize = DefaultPurgeBatchSize
	}
	if strings.TrimSpace(c.Minio.Bucket) == "" {
		c.Minio.Bucket = DefaultMinioBucket
	}
	if strings.TrimSpace(c.NATS.SubjectPrefix) == "" {
		c.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}
	if strings.TrimSpace(c.NATS.Stream) == "" {
		c.NATS.Stream = DefaultNATSStream
	}
}
