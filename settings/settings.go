// Package settings loads charles configuration.
//
// Values come from, lowest precedence first: built-in defaults, an optional
// charles.yaml, a .env file and CHARLES_* environment variables. Command line
// flags are applied on top by the caller.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CHARLES_SERVER_PORT
const EnvPrefix = "CHARLES"

// Settings is the full configuration tree
type Settings struct {
	Server   ServerSettings  `mapstructure:"server"`
	Worlds   WorldsSettings  `mapstructure:"worlds"`
	Sessions SessionSettings `mapstructure:"sessions"`
	Redis    RedisSettings   `mapstructure:"redis"`
	Ngrok    NgrokSettings   `mapstructure:"ngrok"`
	Robot    RobotSettings   `mapstructure:"robot"`
	Log      LogSettings     `mapstructure:"log"`
}

type ServerSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type WorldsSettings struct {
	Dir    string `mapstructure:"dir"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

type SessionSettings struct {
	Dir             string        `mapstructure:"dir"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisSettings selects Redis session storage when Addr is set
type RedisSettings struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type NgrokSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"authtoken"`
	Domain    string `mapstructure:"domain"`
}

type RobotSettings struct {
	StepDelayMs int `mapstructure:"step_delay_ms"`
	MaxActions  int `mapstructure:"max_actions"`
}

type LogSettings struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Debug      bool   `mapstructure:"debug"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("worlds.dir", "worlds")
	v.SetDefault("worlds.width", 50)
	v.SetDefault("worlds.height", 30)

	v.SetDefault("sessions.dir", "sessions")
	v.SetDefault("sessions.max_age", "24h")
	v.SetDefault("sessions.cleanup_interval", "1h")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "charles")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.authtoken", "")
	v.SetDefault("ngrok.domain", "")

	v.SetDefault("robot.step_delay_ms", 60)
	v.SetDefault("robot.max_actions", 100000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.debug", false)
}

// Default returns the settings with nothing but defaults applied
func Default() *Settings {
	v := viper.New()
	SetDefaults(v)
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default settings: %v", err))
	}
	return &s
}

// LoadDotEnv loads path (".env" when empty) into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configFile, or charles.yaml from the working directory when
// configFile is empty, and applies environment overrides. A missing
// charles.yaml is not an error; a missing explicit configFile is.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("charles")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	// ngrok's own variable names are honoured as well
	if s.Ngrok.AuthToken == "" {
		s.Ngrok.AuthToken = firstEnv("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")
	}
	if s.Ngrok.Domain == "" {
		s.Ngrok.Domain = os.Getenv("NGROK_DOMAIN")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Validate rejects values no command can work with
func (s *Settings) Validate() error {
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", s.Server.Port)
	}
	if s.Worlds.Width < 3 || s.Worlds.Height < 3 {
		return fmt.Errorf("worlds size %dx%d is smaller than 3x3", s.Worlds.Width, s.Worlds.Height)
	}
	if s.Robot.StepDelayMs < 0 {
		return fmt.Errorf("robot.step_delay_ms must not be negative")
	}
	if s.Sessions.CleanupInterval <= 0 {
		return fmt.Errorf("sessions.cleanup_interval must be positive")
	}
	return nil
}
