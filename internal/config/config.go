package config

import "github.com/joho/godotenv"

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	SSOConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDatabaseDriver() string
	GetDatabaseDSN() string
	GetRedisURL() string
	GetFormPolicyFile() string
	GetBootstrapAdminEmail() string
	GetBootstrapAdminPassword() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
	GetExposedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Security
	SSO
}

// New loads .env.local and .env (when present) into the process environment
// and returns a Config reading from it. Variables already set win.
func New() Config {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
	return mainConfig{}
}
