package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	DatabasePath   string `mapstructure:"database_path"`
	UploadDir      string `mapstructure:"upload_dir"`
	UploadMaxBytes int    `mapstructure:"upload_max_bytes"`

	// RequireSession refuses signaling connections without a logged-in
	// session. When false the userId query parameter is trusted unless a
	// session says otherwise.
	RequireSession bool     `mapstructure:"require_session"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	SendBuffer   int     `mapstructure:"send_buffer"`
	Backpressure string  `mapstructure:"backpressure"`
	APIRate      float64 `mapstructure:"api_rate"`
	APIBurst     int     `mapstructure:"api_burst"`
	SignalRate   float64 `mapstructure:"signal_rate"`
	SignalBurst  int     `mapstructure:"signal_burst"`
	ICERate      float64 `mapstructure:"ice_rate"`
	ICEBurst     int     `mapstructure:"ice_burst"`
}

// PongWait is how long a silent connection is kept before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

// Load reads .env, then config/config.<env>.yaml, then HUDDLE_* variables,
// then command line flags; later sources win.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	fs := pflag.NewFlagSet("huddle", pflag.ContinueOnError)
	fs.String("env", "", "config environment, selects config/config.<env>.yaml")
	fs.Int("port", 0, "listen port")
	fs.String("mode", "", "gin mode: debug or release")
	fs.String("log_level", "", "zerolog level")
	fs.String("database_path", "", "sqlite database file")
	fs.Bool("require_session", false, "only accept signaling connections with a logged-in session")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env, _ := fs.GetString("env")
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_path", "./data/huddle.db")
	v.SetDefault("upload_dir", "./data/uploads")
	v.SetDefault("upload_max_bytes", 5<<20)
	v.SetDefault("require_session", false)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("send_buffer", 32)
	v.SetDefault("backpressure", "kick")
	v.SetDefault("api_rate", 10)
	v.SetDefault("api_burst", 20)
	v.SetDefault("signal_rate", 20)
	v.SetDefault("signal_burst", 40)
	v.SetDefault("ice_rate", 50)
	v.SetDefault("ice_burst", 200)

	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"port", "mode", "log_level", "database_path", "require_session"} {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(name, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("db", cfg.DatabasePath).Bool("require_session", cfg.RequireSession).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive")
	}
	if c.Secret == "" {
		return fmt.Errorf("secret is required for session cookies")
	}
	return nil
}
