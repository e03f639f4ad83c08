package config

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App     AppConfig     `yaml:"app"`
	Paths   PathsConfig   `yaml:"paths"`
	Build   BuildConfig   `yaml:"build"`
	Writer  WriterConfig  `yaml:"writer"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type PathsConfig struct {
	StocksDir        string `yaml:"stocks_dir"`
	ETFsDir          string `yaml:"etfs_dir"`
	MarketCapDir     string `yaml:"market_cap_dir"`
	InsiderTradesDir string `yaml:"insider_trades_dir"`
	OutputDir        string `yaml:"output_dir"`
}

type BuildConfig struct {
	Workers           int    `yaml:"workers"`
	RegularHoursStart int    `yaml:"regular_hours_start"`
	RegularHoursEnd   int    `yaml:"regular_hours_end"`
	TickerSuffix      string `yaml:"ticker_suffix"`
}

type WriterConfig struct {
	Compression  string `yaml:"compression"`
	RowGroupRows int    `yaml:"row_group_rows"`
	PageSize     int    `yaml:"page_size"`
	Parallelism  int    `yaml:"parallelism"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled          bool    `yaml:"enabled"`
	Bucket           string  `yaml:"bucket"`
	Region           string  `yaml:"region"`
	Endpoint         string  `yaml:"endpoint"`
	PathStyle        bool    `yaml:"path_style"`
	Prefix           string  `yaml:"prefix"`
	AccessKeyID      string  `yaml:"access_key_id"`
	SecretAccessKey  string  `yaml:"secret_access_key"`
	UploadsPerSecond float64 `yaml:"uploads_per_second"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	// Textfile is a node-exporter textfile path; empty disables the export.
	Textfile string `yaml:"textfile"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

const (
	DefaultRowGroupRows      = 122880
	DefaultPageSize          = 8 * 1024
	DefaultRegularHoursStart = 9
	DefaultRegularHoursEnd   = 15
	DefaultTickerSuffix      = "_full_1hour_adjsplitdiv.txt"
)

// Default returns a configuration with every optional field filled in. The
// paths are relative to the working directory.
func Default() Config {
	return Config{
		App: AppConfig{Name: "marketdb", Version: "dev"},
		Paths: PathsConfig{
			StocksDir:        "data/raw/stocks",
			ETFsDir:          "data/raw/etfs",
			MarketCapDir:     "data/raw/market_cap",
			InsiderTradesDir: "data/raw/insider_trades",
			OutputDir:        "data/db",
		},
		Build: BuildConfig{
			Workers:           runtime.NumCPU(),
			RegularHoursStart: DefaultRegularHoursStart,
			RegularHoursEnd:   DefaultRegularHoursEnd,
			TickerSuffix:      DefaultTickerSuffix,
		},
		Writer: WriterConfig{
			Compression:  "zstd",
			RowGroupRows: DefaultRowGroupRows,
			PageSize:     DefaultPageSize,
			Parallelism:  4,
		},
		Storage: StorageConfig{
			S3: S3Config{UploadsPerSecond: 10},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stderr"},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{Namespace: "MarketDB", Dashboard: "MarketDB"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MARKETDB_OUTPUT_DIR"); v != "" {
		config.Paths.OutputDir = strings.TrimSpace(v)
	}

	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	config.Storage.S3.Prefix = strings.Trim(config.Storage.S3.Prefix, "/ ")
}

var compressionCodecs = map[string]bool{
	"zstd":         true,
	"snappy":       true,
	"gzip":         true,
	"uncompressed": true,
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if cfg.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	if cfg.Paths.StocksDir == "" || cfg.Paths.ETFsDir == "" {
		return fmt.Errorf("paths.stocks_dir and paths.etfs_dir are required")
	}

	if cfg.Build.Workers <= 0 {
		return fmt.Errorf("build.workers must be greater than 0")
	}
	if cfg.Build.RegularHoursStart < 0 || cfg.Build.RegularHoursEnd > 23 ||
		cfg.Build.RegularHoursStart > cfg.Build.RegularHoursEnd {
		return fmt.Errorf("build.regular_hours_start/end must satisfy 0 <= start <= end <= 23, got %d..%d",
			cfg.Build.RegularHoursStart, cfg.Build.RegularHoursEnd)
	}
	if cfg.Build.TickerSuffix == "" {
		return fmt.Errorf("build.ticker_suffix is required")
	}

	cfg.Writer.Compression = strings.ToLower(cfg.Writer.Compression)
	if !compressionCodecs[cfg.Writer.Compression] {
		return fmt.Errorf("writer.compression '%s' is not supported", cfg.Writer.Compression)
	}
	if cfg.Writer.RowGroupRows <= 0 {
		return fmt.Errorf("writer.row_group_rows must be greater than 0")
	}
	if cfg.Writer.PageSize <= 0 {
		return fmt.Errorf("writer.page_size must be greater than 0")
	}
	if cfg.Writer.Parallelism <= 0 {
		return fmt.Errorf("writer.parallelism must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
		if cfg.Storage.S3.UploadsPerSecond <= 0 {
			return fmt.Errorf("storage.s3.uploads_per_second must be greater than 0")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
