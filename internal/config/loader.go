// Package config loads server configuration from config.yaml with
// environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server holds HTTP listener settings.
type Server struct {
	Addr           string
	AllowedOrigins []string
}

// Database holds catalog store connection settings.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Mapper holds field-mapping provider settings.
type Mapper struct {
	Provider               string
	OpenAIKey              string
	OpenAIModel            string
	Timeout                time.Duration
	HeuristicConfidenceCap float64
}

// Workflow holds the confidence thresholds driving auto-advancement and
// bulk auto-fix eligibility.
type Workflow struct {
	AutoAdvanceMappingConfidence float64
	AutoFixConfidenceFloor       float64
}

// Session holds session lifecycle settings.
type Session struct {
	TTL         time.Duration
	EventBuffer int
}

// Config is the full server configuration.
type Config struct {
	Server   Server
	Database Database
	Mapper   Mapper
	Workflow Workflow
	Session  Session
	LogLevel string
}

// Load reads config.yaml from configPath (optional) and applies
// IMPORTFLOW_-prefixed environment overrides, e.g. IMPORTFLOW_DATABASE_HOST.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("IMPORTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "admin")
	v.SetDefault("database.dbname", "importflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("mapper.provider", "heuristic")
	v.SetDefault("mapper.openai_key", "")
	v.SetDefault("mapper.openai_model", "")
	v.SetDefault("mapper.timeout", "10s")
	v.SetDefault("mapper.heuristic_confidence_cap", 0.8)
	v.SetDefault("workflow.auto_advance_mapping_confidence", 0.9)
	v.SetDefault("workflow.auto_fix_confidence_floor", 0.7)
	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.event_buffer", 64)
	v.SetDefault("log_level", "info")

	// Config file is optional; defaults plus env vars are enough to run.
	_ = v.ReadInConfig()

	cfg := Config{
		Server: Server{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Database: Database{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Mapper: Mapper{
			Provider:               v.GetString("mapper.provider"),
			OpenAIKey:              v.GetString("mapper.openai_key"),
			OpenAIModel:            v.GetString("mapper.openai_model"),
			Timeout:                v.GetDuration("mapper.timeout"),
			HeuristicConfidenceCap: v.GetFloat64("mapper.heuristic_confidence_cap"),
		},
		Workflow: Workflow{
			AutoAdvanceMappingConfidence: v.GetFloat64("workflow.auto_advance_mapping_confidence"),
			AutoFixConfidenceFloor:       v.GetFloat64("workflow.auto_fix_confidence_floor"),
		},
		Session: Session{
			TTL:         v.GetDuration("session.ttl"),
			EventBuffer: v.GetInt("session.event_buffer"),
		},
		LogLevel: v.GetString("log_level"),
	}
	return cfg, nil
}
