package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig holds the server and engine settings
type EngineConfig struct {
	Port           string
	JWTSecret      string
	Storage        string // postgres or memory
	Locker         string // redis or memory
	LockTimeout    time.Duration
	LockTTL        time.Duration
	DBLockTimeout  time.Duration
	BankBIC        string
	Currency       string
	AllowedOrigins []string
	Argon2         Argon2Config
}

type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

var envBindings = map[string]string{
	"server.port":            "PORT",
	"database.host":          "DATABASE_HOST",
	"database.port":          "DATABASE_PORT",
	"database.user":          "DATABASE_USER",
	"database.password":      "DATABASE_PASSWORD",
	"database.name":          "DATABASE_NAME",
	"database.ssl_mode":      "DATABASE_SSL_MODE",
	"redis.host":             "REDIS_HOST",
	"redis.port":             "REDIS_PORT",
	"redis.password":         "REDIS_PASSWORD",
	"redis.db":               "REDIS_DB",
	"jwt.secret_key":         "JWT_SECRET_KEY",
	"argon2.time":            "ARGON2_TIME",
	"argon2.memory":          "ARGON2_MEMORY",
	"argon2.threads":         "ARGON2_THREADS",
	"argon2.key_length":      "ARGON2_KEY_LENGTH",
	"argon2.salt_length":     "ARGON2_SALT_LENGTH",
	"engine.storage":         "ENGINE_STORAGE",
	"engine.locker":          "ENGINE_LOCKER",
	"engine.lock_timeout":    "ENGINE_LOCK_TIMEOUT",
	"engine.lock_ttl":        "ENGINE_LOCK_TTL",
	"engine.db_lock_timeout": "ENGINE_DB_LOCK_TIMEOUT",
	"engine.bank_bic":        "ENGINE_BANK_BIC",
	"engine.currency":        "ENGINE_CURRENCY",
	"cors.allowed_origins":   "CORS_ALLOWED_ORIGINS",
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("engine.storage", "postgres")
	viper.SetDefault("engine.locker", "redis")
	viper.SetDefault("engine.lock_timeout", 5*time.Second)
	viper.SetDefault("engine.lock_ttl", 30*time.Second)
	viper.SetDefault("engine.db_lock_timeout", 3*time.Second)
	viper.SetDefault("engine.bank_bic", "FBIBINBBXXX")
	viper.SetDefault("engine.currency", "INR")
	viper.SetDefault("cors.allowed_origins", "https://*,http://*")
}

// Load reads .env and the environment into viper and returns the engine settings.
// A missing .env file is not an error.
func Load(file string) (*EngineConfig, error) {
	viper.SetConfigFile(file)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	} else {
		applyEnvFile()
	}

	return FromViper(), nil
}

// applyEnvFile maps .env entries (read as lower-cased variable names) onto their dotted
// keys. Real environment variables still win.
func applyEnvFile() {
	for key, env := range envBindings {
		if _, set := os.LookupEnv(env); set {
			continue
		}
		if v := viper.GetString(strings.ToLower(env)); v != "" {
			viper.Set(key, v)
		}
	}
}

// FromViper builds the engine settings from whatever viper currently holds
func FromViper() *EngineConfig {
	return &EngineConfig{
		Port:           viper.GetString("server.port"),
		JWTSecret:      viper.GetString("jwt.secret_key"),
		Storage:        strings.ToLower(viper.GetString("engine.storage")),
		Locker:         strings.ToLower(viper.GetString("engine.locker")),
		LockTimeout:    viper.GetDuration("engine.lock_timeout"),
		LockTTL:        viper.GetDuration("engine.lock_ttl"),
		DBLockTimeout:  viper.GetDuration("engine.db_lock_timeout"),
		BankBIC:        viper.GetString("engine.bank_bic"),
		Currency:       viper.GetString("engine.currency"),
		AllowedOrigins: splitList(viper.GetString("cors.allowed_origins")),
		Argon2: Argon2Config{
			Time:       viper.GetUint32("argon2.time"),
			Memory:     viper.GetUint32("argon2.memory"),
			Threads:    uint8(viper.GetUint("argon2.threads")),
			KeyLength:  viper.GetUint32("argon2.key_length"),
			SaltLength: viper.GetInt("argon2.salt_length"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
