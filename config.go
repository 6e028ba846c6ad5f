package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"posty/http"
	"posty/notify"
)

const configFile = ".config.json"

// Config is the configuration of the whole app. It's read from .config.json,
// then any POSTY_* environment variable (or .env entry) overrides its field.
type Config struct {
	Port         int               `json:"port" env:"POSTY_PORT"`
	Env          string            `json:"env" env:"POSTY_ENV"`
	LogLevel     string            `json:"log_level" env:"POSTY_LOG_LEVEL"`
	Pepper       string            `json:"pepper" env:"POSTY_PEPPER"`
	HMACKey      string            `json:"hmac_key" env:"POSTY_HMAC_KEY"`
	SupportEmail string            `json:"support_email" env:"POSTY_SUPPORT_EMAIL"`
	TokenPolicy  string            `json:"token_policy" env:"POSTY_TOKEN_POLICY"`
	PublicDir    string            `json:"public_dir" env:"POSTY_PUBLIC_DIR"`
	CORSOrigins  []string          `json:"cors_origins" env:"POSTY_CORS_ORIGINS"`
	Database     PostgresConfig    `json:"database"`
	Redis        RedisConfig       `json:"redis"`
	SMTP         notify.SMTPConfig `json:"smtp"`
}

type PostgresConfig struct {
	Host     string `json:"host" env:"POSTY_DB_HOST"`
	Port     int    `json:"port" env:"POSTY_DB_PORT"`
	User     string `json:"user" env:"POSTY_DB_USER"`
	Password string `json:"password" env:"POSTY_DB_PASSWORD"`
	Name     string `json:"name" env:"POSTY_DB_NAME"`
}

type RedisConfig struct {
	Addr     string `json:"addr" env:"POSTY_REDIS_ADDR"`
	Password string `json:"password" env:"POSTY_REDIS_PASSWORD"`
	DB       int    `json:"db" env:"POSTY_REDIS_DB"`
}

func (pc PostgresConfig) ConnectionInfo() string {
	if pc.Password == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable", pc.Host, pc.Port, pc.User, pc.Name)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", pc.Host, pc.Port, pc.User, pc.Password, pc.Name)
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool {
	return c.Env == "prod"
}

// HTTP returns the settings of the http layer.
func (c Config) HTTP() http.Config {
	return http.Config{
		SupportEmail: c.SupportEmail,
		TokenPolicy:  c.TokenPolicy,
		PublicDir:    c.PublicDir,
		CORSOrigins:  c.CORSOrigins,
	}
}

func DefaultConfig() Config {
	return Config{
		Port:         1111,
		Env:          "dev",
		LogLevel:     "debug",
		Pepper:       "secret-random-string",
		HMACKey:      "secret-hmac-key",
		SupportEmail: "support@posty.test",
		TokenPolicy:  http.TokenPolicyReuse,
		PublicDir:    "public",
		CORSOrigins:  []string{"*"},
		Database:     DefaultPostgresConfig(),
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		SMTP: notify.SMTPConfig{
			Port: 587,
			From: "Posty <no-reply@posty.test>",
		},
	}
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "",
		Name:     "posty",
	}
}

// LoadConfig loads the configuration on top of the defaults. If required is
// true, a missing .config.json is an error.
func LoadConfig(required bool) (Config, error) {
	return loadConfig(configFile, required)
}

func loadConfig(path string, required bool) (Config, error) {
	c := DefaultConfig()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&c); err != nil {
			return c, errors.Wrapf(err, "decode %s", path)
		}
	case required || !os.IsNotExist(err):
		return c, errors.Wrapf(err, "open %s", path)
	}

	// Values already in the environment win over those in .env.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return c, errors.Wrap(err, "load .env")
	}
	if err := envdecode.Decode(&c); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return c, errors.Wrap(err, "decode environment")
	}

	return c, c.validate()
}

func (c Config) validate() error {
	if c.TokenPolicy != http.TokenPolicyReuse && c.TokenPolicy != http.TokenPolicyAlways {
		return errors.Errorf("token_policy must be %q or %q, got %q",
			http.TokenPolicyReuse, http.TokenPolicyAlways, c.TokenPolicy)
	}
	if c.IsProd() {
		def := DefaultConfig()
		if c.Pepper == def.Pepper || c.HMACKey == def.HMACKey {
			return errors.New("pepper and hmac_key must be changed in production")
		}
	}
	return nil
}
