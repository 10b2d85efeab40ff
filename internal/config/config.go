// Package config loads service settings with viper: configs/config.yml (or an
// explicit file), overridden by TUNER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"device_tuner/internal/models"

	"github.com/spf13/viper"
)

const EnvPrefix = "TUNER"

type Config struct {
	Port            string            `mapstructure:"port"`
	Log             LogConfig         `mapstructure:"log"`
	DB              DBConfig          `mapstructure:"db"`
	Auth            AuthConfig        `mapstructure:"auth"`
	Live            LiveConfig        `mapstructure:"live"`
	Model           ModelConfig       `mapstructure:"model"`
	DefaultSequence string            `mapstructure:"default_sequence"`
	Sequences       []models.Sequence `mapstructure:"sequences"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// LiveConfig selects the live value source. An empty FeedURL runs the
// in-process plant instead of dialing a feed.
type LiveConfig struct {
	FeedURL        string        `mapstructure:"feed_url"`
	Tick           time.Duration `mapstructure:"tick"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	RampPerSec     float64       `mapstructure:"ramp_per_sec"`
}

// ModelConfig holds the thermal model defaults used when a sequence does not
// provide the matching property.
type ModelConfig struct {
	AmbientC        float64 `mapstructure:"ambient_c"`
	TargetTempC     float64 `mapstructure:"target_temp_c"`
	RampUpCPerSec   float64 `mapstructure:"ramp_up_c_per_s"`
	RampDownCPerSec float64 `mapstructure:"ramp_down_c_per_s"`
	SoakS           float64 `mapstructure:"soak_s"`
	SampleIntervalS float64 `mapstructure:"sample_interval_s"`
	HorizonS        float64 `mapstructure:"horizon_s"`
	MaxSafeC        float64 `mapstructure:"max_safe_c"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "tuner.db")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("live.feed_url", "")
	v.SetDefault("live.tick", time.Second)
	v.SetDefault("live.reconnect_delay", 2*time.Second)
	v.SetDefault("live.ramp_per_sec", 3.0)
	v.SetDefault("model.ambient_c", 25.0)
	v.SetDefault("model.target_temp_c", 850.0)
	v.SetDefault("model.ramp_up_c_per_s", 3.0)
	v.SetDefault("model.ramp_down_c_per_s", 5.0)
	v.SetDefault("model.soak_s", 300.0)
	v.SetDefault("model.sample_interval_s", 10.0)
	v.SetDefault("model.horizon_s", 1200.0)
	v.SetDefault("model.max_safe_c", 1000.0)
	v.SetDefault("default_sequence", "")
}

// Load reads path when given, otherwise config.yml from ./configs. A missing
// default file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Live.Tick <= 0 {
		return fmt.Errorf("config: live.tick must be positive, got %s", c.Live.Tick)
	}
	if c.Live.RampPerSec <= 0 {
		return fmt.Errorf("config: live.ramp_per_sec must be positive, got %v", c.Live.RampPerSec)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.DefaultSequence != "" {
		for _, s := range c.Sequences {
			if s.Name == c.DefaultSequence {
				return nil
			}
		}
		return fmt.Errorf("config: default_sequence %q is not among sequences", c.DefaultSequence)
	}
	return nil
}
