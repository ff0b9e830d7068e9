package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the load-time configuration surface. Values are constants for
// the lifetime of the process; nothing mutates them at runtime.
type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	LiveKit LiveKit `mapstructure:"livekit"`
	Token   Token   `mapstructure:"token"`
	API     API     `mapstructure:"api"`
	Audio   Audio   `mapstructure:"audio"`
	OpenAI  OpenAI  `mapstructure:"openai"`
}

type LiveKit struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Room      string `mapstructure:"room"`
	Identity  string `mapstructure:"identity"`
}

type Token struct {
	// Endpoint is the base URL of the token service.
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TTL      time.Duration `mapstructure:"ttl"`

	// Fallback is the static development credential used when the token
	// service is down. Empty disables the fallback path entirely; never
	// ship a build with this set.
	Fallback string `mapstructure:"fallback"`
}

type API struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Audio struct {
	Dir           string        `mapstructure:"dir"`
	ChunkInterval time.Duration `mapstructure:"chunk_interval"`
}

type OpenAI struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VOICEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("secret", "voicebridge-dev-secret")
	v.SetDefault("livekit.url", "ws://localhost:7880")
	v.SetDefault("livekit.api_key", "devkey")
	v.SetDefault("livekit.room", "agent-room")
	v.SetDefault("livekit.identity", "user")
	v.SetDefault("token.endpoint", "http://localhost:8000")
	v.SetDefault("token.timeout", "5s")
	v.SetDefault("token.ttl", "1h")
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("audio.dir", os.TempDir())
	v.SetDefault("audio.chunk_interval", "200ms")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 150)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
