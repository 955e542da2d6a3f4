// Package config loads runtime configuration from defaults, an optional
// panelcast config file, a .env file and PANELCAST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration keys. Environment variables use the PANELCAST_ prefix with
// dots replaced by underscores, e.g. PANELCAST_PLAYER_FALLBACK_INTERVAL.
const (
	KeyPort             = "port"
	KeyManifest         = "manifest"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyFallbackInterval = "player.fallback_interval"
	KeyLoadPollInterval = "player.load_poll_interval"
	KeyPlayRetryDelay   = "player.play_retry_delay"
	KeyDeclick          = "audio.declick"
	KeyLoadTimeout      = "audio.load_timeout"
	KeyFFmpeg           = "audio.ffmpeg"
	KeyOpusBitrate      = "stream.opus_bitrate"
	KeyMP3Bitrate       = "stream.mp3_bitrate"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "panelcast"

// EnvKeyReplacer maps configuration keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Default holds the factory value of every key.
var Default = map[string]any{
	KeyPort:             8080,
	KeyManifest:         "",
	KeyLogLevel:         "info",
	KeyLogFormat:        "text",
	KeyFallbackInterval: 100 * time.Millisecond,
	KeyLoadPollInterval: 50 * time.Millisecond,
	KeyPlayRetryDelay:   100 * time.Millisecond,
	KeyDeclick:          40 * time.Millisecond,
	KeyLoadTimeout:      30 * time.Second,
	KeyFFmpeg:           "ffmpeg",
	KeyOpusBitrate:      128000,
	KeyMP3Bitrate:       "192k",
}

// Config holds all runtime configuration.
type Config struct {
	// Server
	Port     int
	Manifest string // JSON frame manifest

	// Logging
	LogLevel  string
	LogFormat string // text or json

	// Player timing
	FallbackInterval time.Duration // periodic re-check and ceiling on precise wake-ups
	LoadPollInterval time.Duration // readiness re-poll
	PlayRetryDelay   time.Duration // play before tracks are ready

	// Audio engine
	Declick     time.Duration // crossfade on seeks and track switches
	LoadTimeout time.Duration
	FFmpeg      string

	// Streaming
	OpusBitrate int
	MP3Bitrate  string
}

// Setup registers defaults and environment bindings on the global viper
// instance and reads the optional .env and panelcast.{toml,yaml,json} files
// from the working directory.
func Setup() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	viper.SetConfigName(EnvPrefix)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(EnvKeyReplacer)
	viper.AutomaticEnv()

	viper.SetTypeByDefaultValue(true)
	for key, value := range Default {
		viper.SetDefault(key, value)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads the current configuration from viper and validates it.
func Load() (Config, error) {
	cfg := Config{
		Port:             viper.GetInt(KeyPort),
		Manifest:         viper.GetString(KeyManifest),
		LogLevel:         viper.GetString(KeyLogLevel),
		LogFormat:        viper.GetString(KeyLogFormat),
		FallbackInterval: viper.GetDuration(KeyFallbackInterval),
		LoadPollInterval: viper.GetDuration(KeyLoadPollInterval),
		PlayRetryDelay:   viper.GetDuration(KeyPlayRetryDelay),
		Declick:          viper.GetDuration(KeyDeclick),
		LoadTimeout:      viper.GetDuration(KeyLoadTimeout),
		FFmpeg:           viper.GetString(KeyFFmpeg),
		OpusBitrate:      viper.GetInt(KeyOpusBitrate),
		MP3Bitrate:       viper.GetString(KeyMP3Bitrate),
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%s: %d out of range", KeyPort, c.Port)
	case c.FallbackInterval <= 0:
		return fmt.Errorf("%s: must be positive", KeyFallbackInterval)
	case c.LoadPollInterval <= 0:
		return fmt.Errorf("%s: must be positive", KeyLoadPollInterval)
	case c.PlayRetryDelay <= 0:
		return fmt.Errorf("%s: must be positive", KeyPlayRetryDelay)
	case c.Declick < 0:
		return fmt.Errorf("%s: must not be negative", KeyDeclick)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%s: %q is not text or json", KeyLogFormat, c.LogFormat)
	}
	return nil
}
