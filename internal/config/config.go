package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Data      DataConfig      `yaml:"data" envconfig:"DATA"`
	Metrics   MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains CORS and rate limiting configuration.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080" validate:"min=1"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// DataConfig locates the static input files.
type DataConfig struct {
	Dir             string `yaml:"dir" envconfig:"DIR" default:"data"`
	DistrictCSV     string `yaml:"district_csv" envconfig:"DISTRICT_CSV" default:"district_malaria_data.csv"`
	SectorCSV       string `yaml:"sector_csv" envconfig:"SECTOR_CSV" default:"sector_malaria_data.csv"`
	DistrictGeoJSON string `yaml:"district_geojson" envconfig:"DISTRICT_GEOJSON" default:"district_geometries.geojson"`
	SectorGeoJSON   string `yaml:"sector_geojson" envconfig:"SECTOR_GEOJSON" default:"sector_geometries.geojson"`
	ExportsDir      string `yaml:"exports_dir" envconfig:"EXPORTS_DIR" default:"exports"`
}

// MetricsConfig tunes the derived-metric computations.
type MetricsConfig struct {
	// QuadrantPolicy selects the cutoff rule for quadrant classification:
	// "median", "percentile", or "fixed".
	QuadrantPolicy string `yaml:"quadrant_policy" envconfig:"QUADRANT_POLICY" default:"percentile" validate:"oneof=median percentile fixed"`
	// QuadrantPercentile applies when QuadrantPolicy is "percentile".
	QuadrantPercentile float64 `yaml:"quadrant_percentile" envconfig:"QUADRANT_PERCENTILE" default:"75" validate:"gt=0,lt=100"`
	// FixedCutoffX and FixedCutoffY apply when QuadrantPolicy is "fixed".
	FixedCutoffX float64 `yaml:"fixed_cutoff_x" envconfig:"FIXED_CUTOFF_X"`
	FixedCutoffY float64 `yaml:"fixed_cutoff_y" envconfig:"FIXED_CUTOFF_Y"`
}

// WebSocketConfig contains WebSocket hub configuration.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from environment variables, merged over an
// optional YAML config file. Environment wins.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = fileCfg
	}

	if err := envconfig.Process("MW", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile reads a YAML config file over the defaults, so absent keys
// keep their default values.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural problems and normalizes
// the logging block.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	if c.Metrics.QuadrantPolicy == "fixed" && c.Metrics.FixedCutoffX == 0 && c.Metrics.FixedCutoffY == 0 {
		return fmt.Errorf("fixed quadrant policy requires fixed_cutoff_x and fixed_cutoff_y")
	}

	return nil
}

// findConfigFile returns the path to the first config file found in common
// locations, or empty when none exists (env-only configuration).
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Data: DataConfig{
			Dir:             "data",
			DistrictCSV:     "district_malaria_data.csv",
			SectorCSV:       "sector_malaria_data.csv",
			DistrictGeoJSON: "district_geometries.geojson",
			SectorGeoJSON:   "sector_geometries.geojson",
			ExportsDir:      "exports",
		},
		Metrics: MetricsConfig{
			QuadrantPolicy:     "percentile",
			QuadrantPercentile: 75,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
