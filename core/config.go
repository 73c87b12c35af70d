package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Build        string
		AppName      string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server   ServerConfig
		Auth     AuthConfig
		Rating   RatingConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Events   EventsConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	AuthConfig struct {
		TokenTTL         time.Duration
		CookieName       string
		MaxLoginAttempts int
		LockoutWindow    time.Duration
	}

	RatingConfig struct {
		AdminMaxDelta int
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3 | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite3 only
	}

	RedisConfig struct {
		URL string
	}

	EventsConfig struct {
		KafkaBrokers []string
		Topic        string
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the app configuration from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed with the upper-cased env name, e.g. `DEV_SECRETKEY`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Classboard")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "x8#c2kd!q0p=zl4v$+sa9e_w7r)m3n(b1t&y6u*h5g^o@j")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("auth.tokenTTL", 7*24*time.Hour)
	v.SetDefault("auth.cookieName", "token")
	v.SetDefault("auth.maxLoginAttempts", 10)
	v.SetDefault("auth.lockoutWindow", 15*time.Minute)

	v.SetDefault("rating.adminMaxDelta", 100)

	v.SetDefault("database.engine", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "classboard")
	v.SetDefault("database.user", "classboard")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", filepath.Join("data", "classboard.db"))

	v.SetDefault("redis.url", "")
	v.SetDefault("events.kafkaBrokers", []string{})
	v.SetDefault("events.topic", "classboard.events")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if root, err := Getwd(); err == nil {
		dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Auth: AuthConfig{
			TokenTTL:         v.GetDuration("auth.tokenTTL"),
			CookieName:       v.GetString("auth.cookieName"),
			MaxLoginAttempts: v.GetInt("auth.maxLoginAttempts"),
			LockoutWindow:    v.GetDuration("auth.lockoutWindow"),
		},
		Rating: RatingConfig{
			AdminMaxDelta: v.GetInt("rating.adminMaxDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Events: EventsConfig{
			KafkaBrokers: v.GetStringSlice("events.kafkaBrokers"),
			Topic:        v.GetString("events.topic"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no dotenv, no env lookups.
func NewTestConfig() *Config {
	return &Config{
		Env:       "TEST",
		Build:     "test",
		AppName:   "Classboard",
		Debug:     false,
		TestMode:  true,
		SecretKey: "secret",
		Server: ServerConfig{
			ShutdownTimeout: time.Second,
			DisableReqLogs:  true,
		},
		Auth: AuthConfig{
			TokenTTL:         7 * 24 * time.Hour,
			CookieName:       "token",
			MaxLoginAttempts: 5,
			LockoutWindow:    15 * time.Minute,
		},
		Rating:   RatingConfig{AdminMaxDelta: 100},
		Database: DatabaseConfig{Engine: "memory"},
		Events:   EventsConfig{Topic: "classboard.events"},
	}
}
