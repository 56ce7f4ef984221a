package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config - корневая структура конфигурации шлюза и консоли.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`  // Data Plane (gateway)
	Console   ServerConfig              `mapstructure:"console"` // Control Plane (admin)
	GRPC      GRPCConfig                `mapstructure:"grpc"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Gateway   GatewayConfig             `mapstructure:"gateway"`
	Routing   RoutingConfig             `mapstructure:"routing"`
	Admin     AdminConfig               `mapstructure:"admin"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Logger    LoggerConfig              `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (счетчики rate limit).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
	PublicKey      []byte
	PrivateKey     []byte
}

// GatewayConfig - лимиты и таймауты Data Plane.
type GatewayConfig struct {
	RateLimit          int           `mapstructure:"rate_limit"`  // вызовов на окно
	RateWindow         time.Duration `mapstructure:"rate_window"` // длина фиксированного окна
	ProviderTimeout    time.Duration `mapstructure:"provider_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxFanOut          int           `mapstructure:"max_fanout"`
	DefaultStrategy    string        `mapstructure:"default_strategy"`
	UsageTimeout       time.Duration `mapstructure:"usage_timeout"` // best-effort инкремент счетчика ключа
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// RoutingConfig - роли провайдеров и политика по умолчанию для тенантов без своей.
type RoutingConfig struct {
	CostProvider        string   `mapstructure:"cost_provider"`
	AnalyticsProvider   string   `mapstructure:"analytics_provider"`
	ExplanationProvider string   `mapstructure:"explanation_provider"`
	DefaultModel        string   `mapstructure:"default_model"`
	AllowModels         []string `mapstructure:"allow_models"`
}

// AdminConfig - привилегированные функции консоли.
type AdminConfig struct {
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	KeyTTL        time.Duration `mapstructure:"key_ttl"` // 0 = ключи без срока действия
}

// ProviderConfig - подключение к одному AI-провайдеру и его предохранители.
type ProviderConfig struct {
	Kind    string `mapstructure:"kind"` // openai (любой OpenAI-совместимый API) | static
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	// Уверенность по logprobs; Anthropic-совместимые шлюзы их не отдают
	LogProbs bool `mapstructure:"log_probs"`

	// Клиентский лимитер
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`

	// Circuit Breaker
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`

	// Для kind=static (локальная разработка, стенды)
	StaticText       string        `mapstructure:"static_text"`
	StaticConfidence float64       `mapstructure:"static_confidence"`
	StaticLatency    time.Duration `mapstructure:"static_latency"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// SERVER_PORT=9000 перекроет server.port, PROVIDERS_OPENAI_API_KEY - providers.openai.api_key
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ключи: PEM из ENV (Docker/K8s) или файл по пути из конфига
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

// Validate ловит конфигурации, при которых шлюз не сможет корректно работать
func (c *Config) Validate() error {
	if c.Gateway.RateLimit <= 0 {
		return fmt.Errorf("config: gateway.rate_limit must be positive, got %d", c.Gateway.RateLimit)
	}
	if c.Gateway.RateWindow < time.Second {
		return fmt.Errorf("config: gateway.rate_window must be at least 1s, got %s", c.Gateway.RateWindow)
	}
	if c.Gateway.ProviderTimeout <= 0 {
		return errors.New("config: gateway.provider_timeout must be positive")
	}
	if len(c.Routing.AllowModels) == 0 {
		return errors.New("config: routing.allow_models must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("console.port", 8000)
	v.SetDefault("console.read_timeout", 5*time.Second)
	v.SetDefault("console.write_timeout", 30*time.Second)
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "aqlhr-console")

	v.SetDefault("gateway.rate_limit", 600)
	v.SetDefault("gateway.rate_window", 5*time.Minute)
	v.SetDefault("gateway.provider_timeout", 20*time.Second)
	v.SetDefault("gateway.request_timeout", 45*time.Second)
	v.SetDefault("gateway.max_fanout", 3)
	v.SetDefault("gateway.default_strategy", "single")
	v.SetDefault("gateway.usage_timeout", 2*time.Second)
	v.SetDefault("gateway.audit_buffer_size", 10000)
	v.SetDefault("gateway.audit_batch_size", 100)
	v.SetDefault("gateway.audit_flush_interval", 500*time.Millisecond)

	v.SetDefault("routing.cost_provider", "deepseek")
	v.SetDefault("routing.analytics_provider", "openai")
	v.SetDefault("routing.explanation_provider", "anthropic")
	v.SetDefault("routing.default_model", "openai:gpt-4o-mini")
	v.SetDefault("routing.allow_models", []string{"openai:gpt-4o-mini"})

	v.SetDefault("admin.action_timeout", 30*time.Second)
	v.SetDefault("admin.key_ttl", 0)

	setProviderDefaults(v, "openai", "https://api.openai.com/v1", "gpt-4o-mini", true)
	setProviderDefaults(v, "deepseek", "https://api.deepseek.com/v1", "deepseek-chat", true)
	setProviderDefaults(v, "anthropic", "https://api.anthropic.com/v1", "claude-3-5-haiku-latest", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func setProviderDefaults(v *viper.Viper, name, baseURL, model string, logProbs bool) {
	p := "providers." + name + "."
	v.SetDefault(p+"kind", "openai")
	v.SetDefault(p+"base_url", baseURL)
	v.SetDefault(p+"api_key", "")
	v.SetDefault(p+"model", model)
	v.SetDefault(p+"log_probs", logProbs)
	v.SetDefault(p+"rps", 20.0)
	v.SetDefault(p+"burst", 10)
	v.SetDefault(p+"cb_max_requests", 3)
	v.SetDefault(p+"cb_interval", 30*time.Second)
	v.SetDefault(p+"cb_timeout", 30*time.Second)
	v.SetDefault(p+"cb_failures", 5)
}

// loadKeyResource: PEM напрямую из ENV, иначе из файла
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
