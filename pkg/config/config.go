package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultMaxBodyBytes coincide con el límite del cliente HTTP.
const DefaultMaxBodyBytes int64 = 256 << 20

// Config agrupa la configuración de la aplicación. Se lee de
// <home>/config.yaml y de variables SAT_* (las variables tienen prioridad).
type Config struct {
	App       AppConfig
	Log       LogConfig
	Home      string
	HTTP      HTTPConfig
	DB        DBConfig
	Endpoints EndpointsConfig
}

type AppConfig struct {
	Env string // development, production
}

type LogConfig struct {
	Level string
}

// HTTPConfig del cliente SOAP. Timeout cero espera indefinidamente.
type HTTPConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// DBConfig selecciona el driver SQLite: sqlite (modernc) o sqlite3 (mattn).
type DBConfig struct {
	Driver string
}

// EndpointsConfig reemplaza el host base de cada audiencia (pruebas contra un stub).
// Vacío usa los servicios del SAT.
type EndpointsConfig struct {
	CFDI  string
	Reten string
}

// RFCDir es el directorio de trabajo de un RFC.
func (c *Config) RFCDir(rfc string) string {
	return filepath.Join(c.Home, strings.ToUpper(rfc))
}

// DBPath es la base SQLite de un RFC.
func (c *Config) DBPath(rfc string) string {
	return filepath.Join(c.RFCDir(rfc), "sat.db")
}

// Load lee la configuración. Nombres de variables: SAT_APP_ENV, SAT_LOG_LEVEL,
// SAT_HOME, SAT_HTTP_TIMEOUT, SAT_HTTP_MAX_BODY_BYTES, SAT_DB_DRIVER,
// SAT_ENDPOINTS_CFDI, SAT_ENDPOINTS_RETEN.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("home"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("leer config.yaml: %w", err)
		}
	}

	cfg := &Config{
		App:  AppConfig{Env: v.GetString("app.env")},
		Log:  LogConfig{Level: v.GetString("log.level")},
		Home: v.GetString("home"),
		HTTP: HTTPConfig{
			Timeout:      v.GetDuration("http.timeout"),
			MaxBodyBytes: v.GetInt64("http.max_body_bytes"),
		},
		DB: DBConfig{Driver: v.GetString("db.driver")},
		Endpoints: EndpointsConfig{
			CFDI:  strings.TrimRight(v.GetString("endpoints.cfdi"), "/"),
			Reten: strings.TrimRight(v.GetString("endpoints.reten"), "/"),
		},
	}
	if cfg.HTTP.Timeout < 0 {
		return nil, fmt.Errorf("http.timeout no puede ser negativo: %s", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	switch cfg.DB.Driver {
	case "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("db.driver inválido %q (sqlite o sqlite3)", cfg.DB.Driver)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("no se pudo determinar el directorio del usuario: %w", err)
	}
	v.SetDefault("app.env", "production")
	v.SetDefault("log.level", "info")
	v.SetDefault("home", filepath.Join(homeDir, ".sat"))
	v.SetDefault("http.timeout", "0s")
	v.SetDefault("http.max_body_bytes", DefaultMaxBodyBytes)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("endpoints.cfdi", "")
	v.SetDefault("endpoints.reten", "")
	return nil
}
