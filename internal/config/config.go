// Package config loads and validates cardshot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/cardshot/internal/capture"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Output   OutputConfig   `mapstructure:"output"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Optimize OptimizeConfig `mapstructure:"optimize"`
	Colorize ColorizeConfig `mapstructure:"colorize"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetadataConfig locates the per-item metadata files.
type MetadataConfig struct {
	Dir string `mapstructure:"dir"`
	// Strict turns a name that looks like metadata but carries an unparsable
	// identifier into a fatal error instead of a skipped file.
	Strict bool `mapstructure:"strict"`
}

// OutputConfig selects where captured images are stored.
type OutputConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// CaptureConfig fixes the capture and output resolutions and codec.
type CaptureConfig struct {
	Width        int    `mapstructure:"width"`
	Height       int    `mapstructure:"height"`
	OutputWidth  int    `mapstructure:"output_width"`
	OutputHeight int    `mapstructure:"output_height"`
	Codec        string `mapstructure:"codec"`
	JPEGQuality  int    `mapstructure:"jpeg_quality"`
}

// RendererConfig addresses the card page server and tunes Chrome.
type RendererConfig struct {
	Host                 string  `mapstructure:"host"`
	Port                 int     `mapstructure:"port"`
	Referrer             string  `mapstructure:"referrer"`
	IDParam              string  `mapstructure:"id_param"`
	Headless             bool    `mapstructure:"headless"`
	ExecPath             string  `mapstructure:"exec_path"`
	DeviceScaleFactor    float64 `mapstructure:"device_scale_factor"`
	NavTimeoutSec        int     `mapstructure:"nav_timeout_seconds"`
	ProbeAttempts        int     `mapstructure:"probe_attempts"`
	ProbeBackoffMs       int     `mapstructure:"probe_backoff_ms"`
	// Preflight fetches a probe page over plain HTTP before launching Chrome.
	Preflight            bool    `mapstructure:"preflight"`
	// NavigationsPerSecond caps page loads across the whole pool; 0 is
	// unlimited.
	NavigationsPerSecond float64 `mapstructure:"navigations_per_second"`
}

// WorkerConfig sizes the pool and its retry policy.
type WorkerConfig struct {
	PoolSize       int `mapstructure:"pool_size"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	MaxRestarts    int `mapstructure:"max_restarts"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// MetricsConfig optionally exposes Prometheus metrics during a run.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// PubSubConfig enables completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LedgerConfig optionally records every progress event in Postgres.
type LedgerConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// OptimizeConfig drives the source-art optimizer.
type OptimizeConfig struct {
	SourceDir    string `mapstructure:"source_dir"`
	DestDir      string `mapstructure:"dest_dir"`
	SettingsFile string `mapstructure:"settings_file"`
	Parallelism  int    `mapstructure:"parallelism"`
	PNGQuant     string `mapstructure:"pngquant"`
}

// ColorizeConfig drives the animation frame colorizer.
type ColorizeConfig struct {
	SourceDir   string `mapstructure:"source_dir"`
	DestDir     string `mapstructure:"dest_dir"`
	FirstFrame  int    `mapstructure:"first_frame"`
	LastFrame   int    `mapstructure:"last_frame"`
	Parallelism int    `mapstructure:"parallelism"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CARDSHOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("metadata.dir", "public_s3/metadata_api")
	v.SetDefault("metadata.strict", true)
	v.SetDefault("output.provider", "local")
	v.SetDefault("output.dir", "public_s3/card_images")
	v.SetDefault("output.prefix", "card_images")
	v.SetDefault("capture.width", 1050)
	v.SetDefault("capture.height", 1050)
	v.SetDefault("capture.output_width", 350)
	v.SetDefault("capture.output_height", 350)
	v.SetDefault("capture.codec", string(capture.CodecJPEG))
	v.SetDefault("capture.jpeg_quality", 75)
	v.SetDefault("renderer.host", "localhost")
	v.SetDefault("renderer.port", 5000)
	v.SetDefault("renderer.referrer", "generate_images")
	v.SetDefault("renderer.id_param", "tokenID")
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.device_scale_factor", 2.0)
	v.SetDefault("renderer.nav_timeout_seconds", 30)
	v.SetDefault("renderer.probe_attempts", 3)
	v.SetDefault("renderer.probe_backoff_ms", 500)
	v.SetDefault("renderer.navigations_per_second", 0)
	v.SetDefault("renderer.preflight", true)
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.max_restarts", 5)
	v.SetDefault("worker.retry_backoff_ms", 250)
	v.SetDefault("ledger.table", "capture_events")
	v.SetDefault("ledger.max_conns", 4)
	v.SetDefault("optimize.source_dir", "image_sources")
	v.SetDefault("optimize.dest_dir", "public/images")
	v.SetDefault("optimize.settings_file", "optimize.yaml")
	v.SetDefault("optimize.parallelism", 0)
	v.SetDefault("optimize.pngquant", "pngquant")
	v.SetDefault("colorize.source_dir", "public/images/types/cloak_frames")
	v.SetDefault("colorize.dest_dir", ".tmp/cloak_frames")
	v.SetDefault("colorize.first_frame", 42)
	v.SetDefault("colorize.last_frame", 401)
	v.SetDefault("colorize.parallelism", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return fmt.Errorf("capture.width and capture.height must be > 0")
	}
	if c.Capture.OutputWidth <= 0 || c.Capture.OutputHeight <= 0 {
		return fmt.Errorf("capture.output_width and capture.output_height must be > 0")
	}
	codec := capture.Codec(c.Capture.Codec)
	if !codec.Valid() {
		return fmt.Errorf("capture.codec must be jpeg or png, got %q", c.Capture.Codec)
	}
	if codec == capture.CodecJPEG && (c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100) {
		return fmt.Errorf("capture.jpeg_quality must be within 1-100")
	}
	if c.Renderer.Port <= 0 {
		return fmt.Errorf("renderer.port must be > 0")
	}
	if c.Renderer.DeviceScaleFactor <= 0 {
		return fmt.Errorf("renderer.device_scale_factor must be > 0")
	}
	if c.Renderer.NavTimeoutSec <= 0 {
		return fmt.Errorf("renderer.nav_timeout_seconds must be > 0")
	}
	if c.Renderer.ProbeAttempts <= 0 {
		return fmt.Errorf("renderer.probe_attempts must be > 0")
	}
	if c.Renderer.NavigationsPerSecond < 0 {
		return fmt.Errorf("renderer.navigations_per_second must be >= 0")
	}
	if c.Worker.PoolSize <= 0 {
		return fmt.Errorf("worker.pool_size must be > 0")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be > 0")
	}
	if c.Worker.MaxRestarts < 0 {
		return fmt.Errorf("worker.max_restarts must be >= 0")
	}
	switch c.Output.Provider {
	case "local":
		if strings.TrimSpace(c.Output.Dir) == "" {
			return fmt.Errorf("output.dir must be set when output.provider is local")
		}
	case "gcs":
		if c.Output.GCSBucket == "" {
			return fmt.Errorf("output.gcs_bucket must be set when output.provider is gcs")
		}
	case "memory":
	default:
		return fmt.Errorf("output.provider must be local, gcs or memory, got %q", c.Output.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Colorize.FirstFrame > c.Colorize.LastFrame {
		return fmt.Errorf("colorize.first_frame must be <= colorize.last_frame")
	}
	return nil
}

// Codec returns the configured output codec.
func (c Config) Codec() capture.Codec {
	return capture.Codec(c.Capture.Codec)
}

// CaptureResolution is the size every screenshot must have.
func (c Config) CaptureResolution() capture.Resolution {
	return capture.Resolution{Width: c.Capture.Width, Height: c.Capture.Height}
}

// OutputResolution is the size of stored images.
func (c Config) OutputResolution() capture.Resolution {
	return capture.Resolution{Width: c.Capture.OutputWidth, Height: c.Capture.OutputHeight}
}

// Source addresses the card page server.
func (c Config) Source() capture.Source {
	return capture.Source{
		Host:     c.Renderer.Host,
		Port:     c.Renderer.Port,
		Referrer: c.Renderer.Referrer,
		IDParam:  c.Renderer.IDParam,
	}
}

// NavigationTimeout bounds a single page load.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Renderer.NavTimeoutSec) * time.Second
}

// ProbeBackoff is the pause between failed health-check attempts.
func (c Config) ProbeBackoff() time.Duration {
	return time.Duration(c.Renderer.ProbeBackoffMs) * time.Millisecond
}

// RetryBackoff is the pause between failed capture attempts.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Worker.RetryBackoffMs) * time.Millisecond
}
