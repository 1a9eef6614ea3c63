// Package config загружает настройки шлюза из файла, переменных окружения POSPRINT_* и значений по умолчанию.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения, например POSPRINT_LISTEN_ADDR.
const EnvPrefix = "POSPRINT"

// Config настройки процесса.
type Config struct {
	ListenAddr    string        // Адрес HTTP сервера
	RegistryPath  string        // YAML файл с привязкой адресов касс к принтерам
	PrintTimeout  time.Duration // Предел на одну операцию печати, включая ожидание сеанса
	AcquireWait   time.Duration // Сколько ждать освобождения занятого принтера
	DeviceTimeout time.Duration // Предел на один обмен с устройством
	PollInterval  time.Duration // Интервал фонового опроса принтеров, 0 отключает
	LogLevel      string
	LogFormat     string
}

// SetDefaults заполняет значения по умолчанию.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("registry_path", "devices.yaml")
	v.SetDefault("print_timeout", 30*time.Second)
	v.SetDefault("acquire_wait", 10*time.Second)
	v.SetDefault("device_timeout", 5*time.Second)
	v.SetDefault("poll_interval", time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// New создает viper с префиксом окружения и значениями по умолчанию.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load читает файл (если путь задан) и возвращает проверенную конфигурацию.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
		}
	}

	cfg := &Config{
		ListenAddr:    v.GetString("listen_addr"),
		RegistryPath:  v.GetString("registry_path"),
		PrintTimeout:  v.GetDuration("print_timeout"),
		AcquireWait:   v.GetDuration("acquire_wait"),
		DeviceTimeout: v.GetDuration("device_timeout"),
		PollInterval:  v.GetDuration("poll_interval"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет, что значения пригодны для запуска.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr не задан"))
	}
	if strings.TrimSpace(c.RegistryPath) == "" {
		errs = append(errs, errors.New("registry_path не задан"))
	}
	if c.PrintTimeout <= 0 {
		errs = append(errs, fmt.Errorf("print_timeout должен быть положительным: %s", c.PrintTimeout))
	}
	if c.AcquireWait <= 0 {
		errs = append(errs, fmt.Errorf("acquire_wait должен быть положительным: %s", c.AcquireWait))
	}
	if c.DeviceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("device_timeout должен быть положительным: %s", c.DeviceTimeout))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval не может быть отрицательным: %s", c.PollInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
