package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/esgboard/kpiledger/internal/db"
)

// AppConfig holds everything outside the database connection settings.
type AppConfig struct {
	Port            int
	AllowedOrigins  []string
	MaxConcurrency  int
	LogLevel        string
	KpiSeedPath     string
	StandardsPath   string
	ComplianceCron  string
	UseMemoryLedger bool
}

// DefaultAppConfig returns the defaults used when no config file or
// environment overrides are present.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxConcurrency: 4,
		LogLevel:       "info",
		ComplianceCron: "0 2 * * *",
	}
}

// Load reads config.yaml from configPath plus ESG_-prefixed environment
// overrides. A .env file in the working directory is loaded first so local
// development does not need exported variables.
func Load(configPath string) (AppConfig, db.Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	app := DefaultAppConfig()
	database := db.DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("ESG")

	v.BindEnv("server.port", "ESG_PORT")
	v.BindEnv("server.allowed_origins", "ESG_ALLOWED_ORIGINS")
	v.BindEnv("server.max_concurrency", "ESG_MAX_CONCURRENCY")
	v.BindEnv("server.log_level", "ESG_LOG_LEVEL")
	v.BindEnv("server.use_memory_ledger", "ESG_USE_MEMORY_LEDGER")
	v.BindEnv("seeds.kpis", "ESG_KPI_SEED_PATH")
	v.BindEnv("seeds.standards", "ESG_STANDARDS_PATH")
	v.BindEnv("compliance.cron", "ESG_COMPLIANCE_CRON")
	v.BindEnv("database.host", "ESG_DB_HOST")
	v.BindEnv("database.port", "ESG_DB_PORT")
	v.BindEnv("database.user", "ESG_DB_USER")
	v.BindEnv("database.password", "ESG_DB_PASSWORD")
	v.BindEnv("database.dbname", "ESG_DB_NAME")
	v.BindEnv("database.sslmode", "ESG_DB_SSLMODE")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("server.port") {
		app.Port = v.GetInt("server.port")
	}
	if v.IsSet("server.allowed_origins") {
		app.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.max_concurrency") {
		app.MaxConcurrency = v.GetInt("server.max_concurrency")
	}
	if v.IsSet("server.log_level") {
		app.LogLevel = v.GetString("server.log_level")
	}
	if v.IsSet("server.use_memory_ledger") {
		app.UseMemoryLedger = v.GetBool("server.use_memory_ledger")
	}
	if v.IsSet("seeds.kpis") {
		app.KpiSeedPath = v.GetString("seeds.kpis")
	}
	if v.IsSet("seeds.standards") {
		app.StandardsPath = v.GetString("seeds.standards")
	}
	if v.IsSet("compliance.cron") {
		app.ComplianceCron = v.GetString("compliance.cron")
	}
	if v.IsSet("database.host") {
		database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		database.SSLMode = v.GetString("database.sslmode")
	}

	return app, database, nil
}
