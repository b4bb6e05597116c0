package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	logLevelVar   = "LOG_LEVEL"
	dbDriverVar   = "DB_DRIVER"
	dbDSNVar      = "DB_DSN"
	redisURLVar   = "REDIS_URL"
	formPolicyVar = "CSRF_FORM_POLICY_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Sponsor Auth")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetDatabaseDriver names a driver registered in users/gormrepo
func (EnvVars) GetDatabaseDriver() string {
	return GetEnv(dbDriverVar, "sqlite")
}

func (EnvVars) GetDatabaseDSN() string {
	return GetEnv(dbDSNVar, "file:sponsor-auth.db?_pragma=foreign_keys(1)")
}

// GetRedisURL is empty when sessions should be kept in memory
func (EnvVars) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}

// GetFormPolicyFile is an optional TOML file overriding the CSRF form table
func (EnvVars) GetFormPolicyFile() string {
	return GetEnv(formPolicyVar, "")
}

func (EnvVars) GetBootstrapAdminEmail() string {
	return GetEnv("BOOTSTRAP_ADMIN_EMAIL", "")
}

func (EnvVars) GetBootstrapAdminPassword() string {
	return GetEnv("BOOTSTRAP_ADMIN_PASSWORD", "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
