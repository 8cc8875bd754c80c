package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tuberip/tuberip/internal/conventions"
)

const (
	SinkLocal = "local"
	SinkS3    = "s3"
)

// Config is the client configuration aggregated from the config file and the environment.
type Config struct {
	// Endpoint is the backend address, the stored setting and the flag take precedence.
	Endpoint string
	Output   struct {
		Dir  string
		Sink string
	}
	S3 struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		Profile   string
	}
	Events struct {
		Path       string
		MinBackoff time.Duration
		MaxBackoff time.Duration
	}
	Backend struct {
		RequestTimeout time.Duration
	}
	Serve struct {
		Addr string
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	switch c.Output.Sink {
	case SinkLocal:
		if c.Output.Dir == "" {
			return fmt.Errorf("output dir is required for the local sink")
		}
	case SinkS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required for the s3 sink")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Output.Sink)
	}
	if c.Events.MinBackoff <= 0 || c.Events.MaxBackoff < c.Events.MinBackoff {
		return fmt.Errorf("invalid reconnect backoff %s-%s", c.Events.MinBackoff, c.Events.MaxBackoff)
	}
	return nil
}

// Load reads the configuration from the environment (TUBERIP_ prefix) and an optional
// config file. When path is empty `config.yaml` is searched in the working directory
// and in the data directory.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(conventions.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("endpoint", conventions.DefaultEndpoint)
	v.SetDefault("output.dir", conventions.DefaultDownloadsDir)
	v.SetDefault("output.sink", SinkLocal)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.keyprefix", "tuberip")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("events.path", "/ws")
	v.SetDefault("events.minbackoff", "500ms")
	v.SetDefault("events.maxbackoff", "30s")
	v.SetDefault("backend.requesttimeout", "2m")
	v.SetDefault("serve.addr", conventions.DefaultServeAddr)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("could not read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(conventions.ConfigFile)
		v.AddConfigPath(".")
		v.AddConfigPath(conventions.DataDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("could not read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
