package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/rpattn/fieldbook/internal/db"
)

// Config is the full application configuration.
type Config struct {
	Database  db.Config
	Addr      string
	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Database:  db.DefaultConfig(),
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads config.yaml from configPath, falling back to defaults, with
// environment overrides (FIELDBOOK_DATABASE_HOST and so on).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("FIELDBOOK")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("log.level")
	v.BindEnv("log.format")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Addr = v.GetString("server.addr")
	}
	if v.IsSet("log.level") {
		cfg.LogLevel = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.LogFormat = v.GetString("log.format")
	}

	return cfg, nil
}
