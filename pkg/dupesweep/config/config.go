package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cluster"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/scanner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/selector"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/tuner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// AppName names the config, data, state and cache directories.
const AppName = "dupesweep"

// HashConfig selects the fingerprint.
type HashConfig struct {
	Algorithm string `mapstructure:"algorithm"`
	Threshold int    `mapstructure:"threshold"`
}

// WorkersConfig bounds the adaptive worker pool.
type WorkersConfig struct {
	Floor   int `mapstructure:"floor"`
	Ceiling int `mapstructure:"ceiling"` // 0 means logical cores
}

// ResourcesConfig tunes the resource manager.
type ResourcesConfig struct {
	Strategy         string        `mapstructure:"strategy"`
	CPUFloor         float64       `mapstructure:"cpu_floor"`
	MemoryFloor      float64       `mapstructure:"memory_floor"`
	Hysteresis       float64       `mapstructure:"hysteresis"`
	SamplingInterval time.Duration `mapstructure:"sampling_interval"`
	MaxInFlight      string        `mapstructure:"max_in_flight"`
}

// ScoringConfig configures keep/delete recommendations.
type ScoringConfig struct {
	Weights  selector.Weights   `mapstructure:"weights"`
	Patterns []selector.Pattern `mapstructure:"patterns"`
	SizeCap  float64            `mapstructure:"size_cap"`
}

// ClusterConfig selects the neighbour index.
type ClusterConfig struct {
	Index string `mapstructure:"index"`
}

// CacheConfig configures the persistent hash cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ManifestConfig configures operation history.
type ManifestConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	MaxSize    string            `mapstructure:"max_size"`
	MaxBackups int               `mapstructure:"max_backups"`
	Components map[string]string `mapstructure:"components"`
}

// DaemonConfig configures dupesweepd.
type DaemonConfig struct {
	SocketPath string        `mapstructure:"socket_path"`
	PIDPath    string        `mapstructure:"pid_path"`
	HTTPAddr   string        `mapstructure:"http_addr"` // empty disables HTTP
	Roots      []string      `mapstructure:"roots"`
	Debounce   time.Duration `mapstructure:"debounce"`
}

// Config represents the application configuration.
type Config struct {
	Hash      HashConfig      `mapstructure:"hash"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Exclude   []string        `mapstructure:"exclude"`
	Include   []string        `mapstructure:"include"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Manifest  ManifestConfig  `mapstructure:"manifest"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
}

// Setup points v at the config file search path, the DUPESWEEP_
// environment and the defaults. An explicit configFile replaces the search.
//
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/dupesweep/config.yaml
//   - $HOME/.config/dupesweep/config.yaml
func Setup(v *viper.Viper, configFile string) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, AppName))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", AppName))
		}
	}

	v.SetEnvPrefix("DUPESWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hash.algorithm", DefaultAlgorithm)
	v.SetDefault("hash.threshold", DefaultThreshold)
	v.SetDefault("cluster.index", DefaultIndex)

	tc := tuner.DefaultConfig()
	v.SetDefault("workers.floor", tc.WorkerFloor)
	v.SetDefault("workers.ceiling", 0)
	v.SetDefault("resources.strategy", DefaultStrategy)
	v.SetDefault("resources.cpu_floor", tc.CPUFloor)
	v.SetDefault("resources.memory_floor", tc.MemoryFloor)
	v.SetDefault("resources.hysteresis", tc.HysteresisBand)
	v.SetDefault("resources.sampling_interval", tc.SamplingInterval)
	v.SetDefault("resources.max_in_flight", DefaultMaxInFlight)

	v.SetDefault("scoring.weights.quality", selector.DefaultWeights.Quality)
	v.SetDefault("scoring.weights.size", selector.DefaultWeights.Size)
	v.SetDefault("scoring.weights.filename", selector.DefaultWeights.Filename)
	patterns := make([]map[string]any, len(selector.DefaultPatterns))
	for i, p := range selector.DefaultPatterns {
		patterns[i] = map[string]any{"pattern": p.Pattern, "weight": p.Weight}
	}
	v.SetDefault("scoring.patterns", patterns)
	v.SetDefault("scoring.size_cap", selector.DefaultSizeCap)

	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("include", []string{})

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "") // empty means CacheDir()/hashes
	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.path", "") // empty means StateDir()/manifest
	v.SetDefault("manifest.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logging.components", map[string]string{
		"pipeline": "info",
		"tuner":    "info",
		"watcher":  "warn",
		"daemon":   "info",
	})

	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.http_addr", "")
	v.SetDefault("daemon.roots", []string{})
	v.SetDefault("daemon.debounce", DefaultDebounce)
}

// Decode reads the config file, if any, and returns the validated
// configuration from v. A missing file in the search path is not an error;
// a missing explicit file is.
func Decode(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Cache.Path, &cfg.Manifest.Path, &cfg.Logging.Path, &cfg.Daemon.SocketPath, &cfg.Daemon.PIDPath} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads configuration from the default locations, or from configFile
// when it is set.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	Setup(v, configFile)
	return Decode(v)
}

// Default returns the default configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.fillPaths()
	return &cfg
}

func (c *Config) fillPaths() {
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCacheDir()
	}
	if c.Manifest.Path == "" {
		c.Manifest.Path = DefaultManifestDir()
	}
	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = DefaultSocketPath()
	}
	if c.Daemon.PIDPath == "" {
		c.Daemon.PIDPath = DefaultPIDPath()
	}
}

// Validate rejects the configuration before anything runs. Errors are
// *types.ConfigurationError naming the offending key.
func (c *Config) Validate() error {
	if _, err := c.ScanOptions(); err != nil {
		return err
	}
	if _, err := c.LoggingConfig(); err != nil {
		return err
	}
	if c.Manifest.RetentionDays < 0 {
		return &types.ConfigurationError{Field: "manifest.retention_days", Value: c.Manifest.RetentionDays, Reason: "must not be negative"}
	}
	if c.Daemon.Debounce < 0 {
		return &types.ConfigurationError{Field: "daemon.debounce", Value: c.Daemon.Debounce, Reason: "must not be negative"}
	}
	return nil
}

// TunerConfig converts the workers and resources sections.
func (c *Config) TunerConfig() (tuner.Config, error) {
	tc := tuner.Config{
		WorkerFloor:      c.Workers.Floor,
		WorkerCeiling:    c.Workers.Ceiling,
		CPUFloor:         c.Resources.CPUFloor,
		MemoryFloor:      c.Resources.MemoryFloor,
		HysteresisBand:   c.Resources.Hysteresis,
		SamplingInterval: c.Resources.SamplingInterval,
		Strategy:         tuner.Strategy(c.Resources.Strategy),
	}
	if c.Resources.MaxInFlight != "" {
		n, err := types.ParseSize(c.Resources.MaxInFlight)
		if err != nil {
			return tuner.Config{}, &types.ConfigurationError{Field: "resources.max_in_flight", Value: c.Resources.MaxInFlight, Reason: err.Error()}
		}
		tc.MaxInFlightBytes = n
	}
	return tc, tc.Validate()
}

// ScoringConfig converts the scoring section.
func (c *Config) ScoringConfig() selector.Config {
	return selector.Config{
		Weights:  c.Scoring.Weights,
		Patterns: append([]selector.Pattern(nil), c.Scoring.Patterns...),
		SizeCap:  c.Scoring.SizeCap,
	}
}

// ScanOptions converts the configuration into validated scanner options.
// The hash cache, sampler and decoder are left for the caller to attach.
func (c *Config) ScanOptions() (scanner.Options, error) {
	tc, err := c.TunerConfig()
	if err != nil {
		return scanner.Options{}, err
	}
	opts := scanner.Options{
		Algorithm: types.Algorithm(c.Hash.Algorithm),
		Threshold: c.Hash.Threshold,
		Index:     cluster.Index(c.Cluster.Index),
		Tuner:     tc,
		Scoring:   c.ScoringConfig(),
		Exclude:   append([]string(nil), c.Exclude...),
		Include:   append([]string(nil), c.Include...),
	}
	if err := opts.Validate(); err != nil {
		return scanner.Options{}, err
	}
	return opts, nil
}

// LoggingConfig converts the logging section.
func (c *Config) LoggingConfig() (logging.Config, error) {
	lc := logging.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.Path,
		MaxBackups: c.Logging.MaxBackups,
		Components: c.Logging.Components,
	}
	if _, err := logging.ParseLevel(lc.Level); err != nil {
		return logging.Config{}, &types.ConfigurationError{Field: "logging.level", Value: lc.Level, Reason: err.Error()}
	}
	if c.Logging.MaxSize != "" {
		n, err := types.ParseSize(c.Logging.MaxSize)
		if err != nil {
			return logging.Config{}, &types.ConfigurationError{Field: "logging.max_size", Value: c.Logging.MaxSize, Reason: err.Error()}
		}
		lc.MaxSize = int64(n)
	}
	return lc, nil
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, AppName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", AppName), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a commented default config file if none exists and
// returns its path.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultTemplate()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}

func defaultTemplate() string {
	var patterns strings.Builder
	for _, p := range selector.DefaultPatterns {
		fmt.Fprintf(&patterns, "    - pattern: %q\n      weight: %g\n", p.Pattern, p.Weight)
	}
	var excludes strings.Builder
	for _, e := range DefaultExclusions {
		fmt.Fprintf(&excludes, "  - %q\n", e)
	}
	w := selector.DefaultWeights

	return fmt.Sprintf(`# dupesweep configuration

# Perceptual hash: phash, dct, dhash or ahash. Threshold is the maximum
# Hamming distance (0-64) between two images considered duplicates.
hash:
  algorithm: %s
  threshold: %d

# Neighbour index used while clustering: bktree or bands.
cluster:
  index: %s

# Hashing worker pool bounds. ceiling 0 means one per logical core.
workers:
  floor: 1
  ceiling: 0

# Adaptive resource manager.
resources:
  # balanced, performance or memory
  strategy: %s
  cpu_floor: 0.20
  memory_floor: 0.30
  hysteresis: 0.10
  sampling_interval: 1s
  max_in_flight: %s

# Keep/delete recommendations.
scoring:
  weights:
    quality: %g
    size: %g
    filename: %g
  # Filenames containing a pattern are favoured by weight (0-100).
  patterns:
%s  size_cap: %g

# Glob patterns matched against names and paths.
exclude:
%sinclude: []

# Persistent hash cache (empty path means $XDG_CACHE_HOME/dupesweep/hashes).
cache:
  enabled: true
  path: ""

# Scan and trash history (empty path means $XDG_STATE_HOME/dupesweep/manifest).
manifest:
  enabled: true
  path: ""
  retention_days: %d

logging:
  # debug, info, warn, error
  level: info
  # empty means $XDG_STATE_HOME/dupesweep/dupesweep.log
  path: ""
  max_size: %s
  max_backups: %d
  components:
    pipeline: info
    tuner: info
    watcher: warn
    daemon: info

daemon:
  # empty means $XDG_DATA_HOME/dupesweep/dupesweep.sock
  socket_path: ""
  pid_path: ""
  # e.g. 127.0.0.1:7878 to serve /healthz and /v1/report
  http_addr: ""
  # directories watched and rescanned by dupesweepd
  roots: []
  debounce: 2s
`, DefaultAlgorithm, DefaultThreshold, DefaultIndex, DefaultStrategy, DefaultMaxInFlight,
		w.Quality, w.Size, w.Filename, patterns.String(), selector.DefaultSizeCap,
		excludes.String(), DefaultRetentionDays, DefaultLogMaxSize, DefaultLogMaxBackups)
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/dupesweep/ for the socket and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir returns $XDG_STATE_HOME/dupesweep/ for logs and history.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// CacheDir returns $XDG_CACHE_HOME/dupesweep/.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), AppName+".sock")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), AppName+".pid")
}

// DefaultCacheDir returns the default hash cache directory.
func DefaultCacheDir() string {
	return filepath.Join(CacheDir(), "hashes")
}

// DefaultManifestDir returns the default history directory.
func DefaultManifestDir() string {
	return filepath.Join(StateDir(), "manifest")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
