package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всей платформы.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Governor   GovernorConfig   `mapstructure:"governor"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера (Ops Console).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL (архив решений).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (трансляция cooldown-сигналов).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для выдачи токенов
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PublicKey      []byte
	PrivateKey     []byte
}

// GovernorConfig — настройки моста: дефолтные оценки риска/эффекта
// и параметры внешнего advisory-валидатора (LLM review).
type GovernorConfig struct {
	DefaultRisk   float64 `mapstructure:"default_risk"`
	DefaultImpact float64 `mapstructure:"default_impact"`

	// Внешний сервис рецензирования (вызывается fire-and-forget)
	ValidatorURL     string        `mapstructure:"validator_url"`
	ValidatorTimeout time.Duration `mapstructure:"validator_timeout"`

	// Настройки Circuit Breaker для валидатора
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// MonitorConfig — пороги и базовые уровни монитора агрессивности.
type MonitorConfig struct {
	SafeThreshold    float64 `mapstructure:"safe_threshold"`    // на пороге и выше — WARNING
	WarningThreshold float64 `mapstructure:"warning_threshold"` // на пороге и выше — DANGER

	BaselineActionsPerHour float64 `mapstructure:"baseline_actions_per_hour"`
	BaselineActiveAccounts float64 `mapstructure:"baseline_active_accounts"`
	WindowCapacity         int     `mapstructure:"window_capacity"`
	ScoreHistoryCapacity   int     `mapstructure:"score_history_capacity"`
}

// ClassifierConfig — пороги тиринга решений.
type ClassifierConfig struct {
	MicroMaxRisk      float64 `mapstructure:"micro_max_risk"`
	MicroMaxImpact    float64 `mapstructure:"micro_max_impact"`
	StandardMaxRisk   float64 `mapstructure:"standard_max_risk"`
	StandardMaxImpact float64 `mapstructure:"standard_max_impact"`
	CriticalMaxRisk   float64 `mapstructure:"critical_max_risk"`
}

// LedgerConfig описывает файловое хранилище журнала решений.
type LedgerConfig struct {
	StoragePath   string `mapstructure:"storage_path"`
	CacheCapacity int    `mapstructure:"cache_capacity"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Журнал без пути к файлу бесполезен — падаем на старте, а не при первой записи
	if cfg.Ledger.StoragePath == "" {
		return nil, errors.New("ledger.storage_path is required")
	}

	// 7. Загрузка ключей из Файла ИЛИ из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("governor.default_risk", 0.3)
	v.SetDefault("governor.default_impact", 0.2)
	v.SetDefault("governor.validator_timeout", 10*time.Second)
	v.SetDefault("governor.cb_max_requests", 3)
	v.SetDefault("governor.cb_interval", 5*time.Second)
	v.SetDefault("governor.cb_timeout", 30*time.Second)

	v.SetDefault("monitor.safe_threshold", 0.70)
	v.SetDefault("monitor.warning_threshold", 0.85)
	v.SetDefault("monitor.baseline_actions_per_hour", 20.0)
	v.SetDefault("monitor.baseline_active_accounts", 3.0)
	v.SetDefault("monitor.window_capacity", 10000)
	v.SetDefault("monitor.score_history_capacity", 1000)

	v.SetDefault("classifier.micro_max_risk", 0.20)
	v.SetDefault("classifier.micro_max_impact", 0.10)
	v.SetDefault("classifier.standard_max_risk", 0.50)
	v.SetDefault("classifier.standard_max_impact", 0.30)
	v.SetDefault("classifier.critical_max_risk", 0.75)

	v.SetDefault("ledger.storage_path", "./data/decisions.jsonl")
	v.SetDefault("ledger.cache_capacity", 1000)
}

// loadKeyResource — универсальный хелпер: ключ либо напрямую в ENV, либо файлом
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
