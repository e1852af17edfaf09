package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Settings struct {
	DBDriver     string
	DBUser       string
	DBPassword   string
	DBHost       string
	DBPort       string
	DBName       string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	ConnMaxIdle  time.Duration

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	LogLevel string

	PubSubProjectID string
	PubSubTopic     string

	KeyLockTTL       time.Duration
	AccountCacheSize int

	// kind -> "strict" | "permissive"
	NegativeStockPolicies map[string]string
	// account role -> chart-of-accounts code
	AccountCodes map[string]string
	// sequence key -> number prefix
	SequencePrefixes map[string]string
}

// Load reads .env (when present) and the process environment.
func Load() Settings {
	_ = godotenv.Load()

	s := Settings{
		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", DriverMySQL)),
		DBUser:       os.Getenv("DB_USER"),
		DBPassword:   os.Getenv("DB_PASSWORD"),
		DBHost:       getEnv("DB_HOST", "127.0.0.1"),
		DBPort:       getEnv("DB_PORT", "3306"),
		DBName:       os.Getenv("DB_NAME"),
		SQLitePath:   getEnv("DB_SQLITE_PATH", "stock_ledger.db"),
		MaxOpenConns: intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns: intFromEnv("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLife:  time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
		ConnMaxIdle:  time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intFromEnv("REDIS_DB", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		PubSubProjectID: getPubSubProjectID(),
		PubSubTopic:     os.Getenv("PUBSUB_TOPIC"),

		KeyLockTTL:       time.Duration(intFromEnv("KEY_LOCK_TTL_SECONDS", 30)) * time.Second,
		AccountCacheSize: intFromEnv("ACCOUNT_CACHE_SIZE", 512),

		NegativeStockPolicies: ParseNegativeStockPolicies(os.Getenv("NEGATIVE_STOCK_POLICY")),
		AccountCodes:          envMapWithPrefix("ACCOUNT_CODE_"),
		SequencePrefixes:      envMapWithPrefix("SEQUENCE_PREFIX_"),
	}
	return s
}

// MySQLDSN builds the go-sql-driver DSN. A DB_HOST of "/cloudsql/<instance>" switches to a unix socket.
func (s Settings) MySQLDSN() string {
	network := "tcp"
	address := fmt.Sprintf("%s:%s", s.DBHost, s.DBPort)
	if strings.HasPrefix(s.DBHost, "/cloudsql/") {
		network = "unix"
		address = s.DBHost
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		s.DBUser, s.DBPassword, network, address, s.DBName)
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envMapWithPrefix collects PREFIX_NAME=value pairs into {"NAME": value}.
func envMapWithPrefix(prefix string) map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(kv, prefix), "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			continue
		}
		out[strings.ToUpper(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}
