package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/itp/internal/db"
	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/linear"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the cluster source and the result sink.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // result sink: postgres or sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EngineConfig configures range synthesis.
type EngineConfig struct {
	Debug            bool    `yaml:"debug" mapstructure:"debug"`
	DropLow          bool    `yaml:"drop_low" mapstructure:"drop_low"`
	RaiseHigh        bool    `yaml:"raise_high" mapstructure:"raise_high"`
	Units            string  `yaml:"units" mapstructure:"units"`
	Split            string  `yaml:"split" mapstructure:"split"`
	MaxSegmentLength float64 `yaml:"max_segment_length" mapstructure:"max_segment_length"`
}

// BatchConfig configures cluster fan-out.
type BatchConfig struct {
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	ClusterTimeoutSecs int     `yaml:"cluster_timeout_secs" mapstructure:"cluster_timeout_secs"`
	MaxRate            float64 `yaml:"max_rate" mapstructure:"max_rate"` // cluster loads per second; 0 = unlimited
	LoadAttempts       int     `yaml:"load_attempts" mapstructure:"load_attempts"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ITP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "itp.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("engine.debug", false)
	v.SetDefault("engine.drop_low", true)
	v.SetDefault("engine.raise_high", true)
	v.SetDefault("engine.units", "meters")
	v.SetDefault("engine.split", interpolate.SplitDiscontinuity)
	v.SetDefault("engine.max_segment_length", 500.0)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.cluster_timeout_secs", 30)
	v.SetDefault("batch.max_rate", 0.0)
	v.SetDefault("batch.load_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by mode ("run", "shp" or "serve")
// and reports every problem found.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "shp":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if _, err := c.Engine.Options(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		errs = append(errs, "batch.concurrency must be between 1 and 64")
	}
	if c.Batch.MaxRate < 0 {
		errs = append(errs, "batch.max_rate must be >= 0")
	}
	if c.Batch.LoadAttempts < 1 {
		errs = append(errs, "batch.load_attempts must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal yaml")
	}
	return data, nil
}

// Options maps the engine settings onto interpolate.Options.
func (e EngineConfig) Options() (interpolate.Options, error) {
	m, err := linear.MetricByName(e.Units)
	if err != nil {
		return interpolate.Options{}, eris.Wrap(err, "config: engine.units")
	}
	switch e.Split {
	case "", interpolate.SplitDiscontinuity, interpolate.SplitIntersection, interpolate.SplitCombined:
	default:
		return interpolate.Options{}, eris.Errorf("config: unknown engine.split %q", e.Split)
	}
	return interpolate.Options{
		Metric:           m,
		Split:            e.Split,
		MaxSegmentLength: e.MaxSegmentLength,
		Debug:            e.Debug,
		DropLow:          e.DropLow,
		RaiseHigh:        e.RaiseHigh,
	}, nil
}

// Pool returns the connection pool settings.
func (s StoreConfig) Pool() db.PoolConfig {
	return db.PoolConfig{MaxConns: s.MaxConns, MinConns: s.MinConns}
}

// ClusterTimeout returns the per-cluster deadline; zero means none.
func (b BatchConfig) ClusterTimeout() time.Duration {
	if b.ClusterTimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(b.ClusterTimeoutSecs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
