package config

import (
	"strconv"
	"time"
)

type SecurityConfig interface {
	GetMaxInactive() time.Duration
	GetCSRFTokenTimeout() time.Duration
	GetHashPepper() string
	GetHashSeparator() string
	GetCookieSecret() string
	GetLoginRatePerMinute() int
	GetLoginBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetMaxInactive is the inactivity timeout applied to logged in sessions
func (Security) GetMaxInactive() time.Duration {
	return time.Duration(getEnvInt("MAX_INACTIVE_SECONDS", 30*60)) * time.Second
}

func (Security) GetCSRFTokenTimeout() time.Duration {
	return time.Duration(getEnvInt("CSRF_TOKEN_TIMEOUT_SECONDS", 60*60)) * time.Second
}

func (Security) GetHashPepper() string {
	return GetEnv("HASH_PEPPER", "")
}

func (Security) GetHashSeparator() string {
	return GetEnv("HASH_SEPARATOR", "$")
}

// GetCookieSecret signs the session cookie. An empty value makes the server
// generate a per-process secret, which logs everyone out on restart.
func (Security) GetCookieSecret() string {
	return GetEnv("COOKIE_SECRET", "")
}

func (Security) GetLoginRatePerMinute() int {
	return getEnvInt("LOGIN_RATE_PER_MINUTE", 10)
}

func (Security) GetLoginBurst() int {
	return getEnvInt("LOGIN_BURST", 5)
}

func getEnvInt(envVar string, defaultValue int) int {
	v, err := strconv.Atoi(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
