package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации demoinfo.
// Нулевые значения заменяются умолчаниями в Get*-методах.
type Config struct {
	Parser    ParserConfig    `yaml:"parser"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Cache     CacheConfig     `yaml:"cache"`
	Workers   int             `yaml:"workers"`
}

type ParserConfig struct {
	MaxEntities int      `yaml:"max_entities"`
	Require     []uint32 `yaml:"require"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
}

type CacheConfig struct {
	Dir string `yaml:"dir"`
}

const (
	DefaultMaxEntities = 16384
	DefaultService     = "demoinfo"
)

// Default конфигурация без файла
func Default() *Config {
	return &Config{}
}

// GetMaxEntities предел индекса сущности
func (p *ParserConfig) GetMaxEntities() int {
	if p.MaxEntities > 0 {
		return p.MaxEntities
	}
	return DefaultMaxEntities
}

// GetPort порт /metrics; 0 означает, что метрики не публикуются
func (m *MetricsConfig) GetPort() int {
	return getPortWithEnvFallback(m.Port, "DEMO_METRICS_PORT", 0)
}

// GetService имя сервиса для трассировки
func (t *TelemetryConfig) GetService() string {
	if t.Service != "" {
		return t.Service
	}
	return DefaultService
}

// GetDir каталог кэша сводок; пустая строка отключает кэш
func (c *CacheConfig) GetDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return os.Getenv("DEMO_CACHE_DIR")
}

// GetWorkers число параллельно разбираемых файлов
func (c *Config) GetWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 1
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV DEMO_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DEMO_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан, использовать умолчания
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	if cfg.Parser.MaxEntities < 0 || cfg.Workers < 0 {
		return nil, fmt.Errorf("%s: отрицательные значения не допускаются", path)
	}

	return &cfg, nil
}
