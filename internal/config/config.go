package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyURL   = "url"
	KeyToken = "token"

	KeyExportRoot        = "export.root"
	KeyExportBatchSize   = "export.batch-size"
	KeyExportPageSize    = "export.page-size"
	KeyExportConcurrency = "export.concurrency"

	KeyPollingMaxAttempts = "polling.max-attempts"
	KeyPollingDelay       = "polling.delay"

	KeyHTTPTimeout = "http.timeout"
	KeyDebug       = "debug"
	KeyOutputColor = "output.color"
)

const (
	DefaultExportRoot      = "exports"
	DefaultBatchSize       = 100
	DefaultPageSize        = 100
	DefaultMaxAttempts     = 10
	DefaultPollingDelay    = 2 * time.Second
	DefaultHTTPTimeout     = 60 * time.Second
	DefaultCredentialsFile = ".env"

	envPrefix = "YOUTRACK"
	dirName   = ".ytexport"

	envURLKey   = "YOUTRACK_URL"
	envTokenKey = "YOUTRACK_TOKEN"
)

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
	credentialsPath   string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config and .env discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

// WithCredentialsFile overrides the .env file holding YOUTRACK_URL and YOUTRACK_TOKEN.
func WithCredentialsFile(path string) Option {
	return func(cfg *initSettings) {
		cfg.credentialsPath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error

	credentialsPath string
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < .env credentials < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
// Empty strings are skipped so unset flags never mask lower layers.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt fetches an integer configuration value, initializing on demand.
func GetInt(key string) int {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return err
		}
		userConfigPath = path
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	envPath := strings.TrimSpace(settings.credentialsPath)
	if envPath == "" {
		envPath = filepath.Join(workingDir, DefaultCredentialsFile)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}
	if err := mergeCredentials(v, envPath); err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	credentialsPath = envPath
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// mergeCredentials folds YOUTRACK_URL / YOUTRACK_TOKEN from a dotenv file into
// the config layer, so real environment variables still win.
func mergeCredentials(v *viper.Viper, path string) error {
	env, err := readDotenv(path)
	if err != nil || env == nil {
		return err
	}
	values := map[string]any{}
	if url := env.GetString(envURLKey); url != "" {
		values[KeyURL] = url
	}
	if token := env.GetString(envTokenKey); token != "" {
		values[KeyToken] = token
	}
	if len(values) == 0 {
		return nil
	}
	return v.MergeConfigMap(values)
}

func readDotenv(path string) (*viper.Viper, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("credentials path %s is a directory", path)
	}
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return env, nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, dirName, "config.yaml"), nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, dirName, "config.yaml")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyURL, "")
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyExportRoot, DefaultExportRoot)
	v.SetDefault(KeyExportBatchSize, DefaultBatchSize)
	v.SetDefault(KeyExportPageSize, DefaultPageSize)
	v.SetDefault(KeyExportConcurrency, 0)
	v.SetDefault(KeyPollingMaxAttempts, DefaultMaxAttempts)
	v.SetDefault(KeyPollingDelay, DefaultPollingDelay)
	v.SetDefault(KeyHTTPTimeout, DefaultHTTPTimeout)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyOutputColor, true)
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
	credentialsPath = ""
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithWorkingDir(tmp), WithUserConfig(filepath.Join(tmp, "user.yaml")))
	return reset
}

// NormalizeURL trims whitespace, defaults the scheme to https and strips
// trailing slashes.
func NormalizeURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return ""
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return strings.TrimRight(url, "/")
}

// Creds holds the connection details for a YouTrack instance.
type Creds struct {
	URL   string
	Token string
}

// Complete reports whether both URL and token are present.
func (c Creds) Complete() bool {
	return c.URL != "" && c.Token != ""
}

// Credentials returns the resolved URL (normalized) and token.
func Credentials() Creds {
	return Creds{
		URL:   NormalizeURL(GetString(KeyURL)),
		Token: strings.TrimSpace(GetString(KeyToken)),
	}
}

// SaveCredentials writes YOUTRACK_URL and YOUTRACK_TOKEN to the .env file in
// use, preserving any other entries, and applies them to the running config.
func SaveCredentials(creds Creds) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.RLock()
	path := credentialsPath
	configMu.RUnlock()
	if path == "" {
		path = DefaultCredentialsFile
	}

	env, err := readDotenv(path)
	if err != nil {
		return err
	}
	if env == nil {
		env = viper.New()
		env.SetConfigType("env")
	}
	env.Set(envURLKey, NormalizeURL(creds.URL))
	env.Set(envTokenKey, strings.TrimSpace(creds.Token))

	//nolint:gosec // G301: credentials live next to the user's working directory
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	if err := env.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("restrict credentials: %w", err)
	}

	return ApplyOverrides(map[string]any{
		KeyURL:   NormalizeURL(creds.URL),
		KeyToken: strings.TrimSpace(creds.Token),
	})
}

// ExportConfig is the typed view of the export.* and polling.* keys.
type ExportConfig struct {
	Root         string
	BatchSize    int
	PageSize     int
	Concurrency  int
	MaxAttempts  int
	PollingDelay time.Duration
	HTTPTimeout  time.Duration
}

// ExportSettings returns the export configuration, falling back to defaults
// for non-positive sizes.
func ExportSettings() ExportConfig {
	cfg := ExportConfig{
		Root:         strings.TrimSpace(GetString(KeyExportRoot)),
		BatchSize:    GetInt(KeyExportBatchSize),
		PageSize:     GetInt(KeyExportPageSize),
		Concurrency:  GetInt(KeyExportConcurrency),
		MaxAttempts:  GetInt(KeyPollingMaxAttempts),
		PollingDelay: GetDuration(KeyPollingDelay),
		HTTPTimeout:  GetDuration(KeyHTTPTimeout),
	}
	if cfg.Root == "" {
		cfg.Root = DefaultExportRoot
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PollingDelay < 0 {
		cfg.PollingDelay = DefaultPollingDelay
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	return cfg
}
