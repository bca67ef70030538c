package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMariaDB  = "mariadb"
	DriverOracle   = "oracle"
)

// Supported face encoders.
const (
	EncoderHTTP = "http"
	EncoderDlib = "dlib"
)

type Config struct {
	Database DatabaseConfig
	Oracle   OracleConfig
	Encoder  EncoderConfig
	Search   SearchConfig
	Dataset  DatasetConfig
	Web      WebConfig
}

type DatabaseConfig struct {
	Driver       string // postgres, mariadb or oracle
	URL          string // PostgreSQL URL or MariaDB DSN
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// OracleConfig keeps the credentials split the way Oracle tooling expects them.
type OracleConfig struct {
	Username string
	Password string
	DSN      string // Easy Connect string, e.g. dbhost:1521/FREEPDB1
}

// ConnectionURL builds a go-ora connection URL from the Easy Connect DSN.
// Returns empty string if DSN is not set.
func (c *OracleConfig) ConnectionURL() string {
	if c.DSN == "" {
		return ""
	}
	dsn := strings.TrimPrefix(c.DSN, "oracle://")
	u := &url.URL{Scheme: "oracle", Host: dsn}
	if host, service, ok := strings.Cut(dsn, "/"); ok {
		u.Host = host
		u.Path = "/" + service
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

type EncoderConfig struct {
	Kind      string // http (default) or dlib
	URL       string // face embedding server, defaults to http://localhost:8000
	ModelsDir string // dlib model directory, used by the dlib encoder
}

type SearchConfig struct {
	Metric string // cosine (default), euclidean or dot
}

type DatasetConfig struct {
	Name      string // Hugging Face dataset id
	Split     string
	CacheDir  string // local copy of the dataset
	ServerURL string // Hugging Face datasets-server base URL
}

type WebConfig struct {
	Port           int
	Host           string
	LogFile        string   // rotating log file pattern (optional)
	AllowedOrigins []string // CORS whitelist in addition to localhost
}

// splitList splits a comma separated value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envString returns the first non-empty environment variable from keys, or defaultVal.
func envString(defaultVal string, keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return defaultVal
}

// resolveDriver picks the database driver. An explicit DATABASE_DRIVER wins,
// otherwise Oracle credentials without a DATABASE_URL select Oracle.
func resolveDriver(explicit, databaseURL, oracleDSN string) string {
	switch d := strings.ToLower(strings.TrimSpace(explicit)); d {
	case DriverPostgres, DriverMariaDB, DriverOracle:
		return d
	case "postgresql", "pgvector":
		return DriverPostgres
	case "mysql":
		return DriverMariaDB
	}
	if databaseURL == "" && oracleDSN != "" {
		return DriverOracle
	}
	return DriverPostgres
}

func Load() *Config {
	databaseURL := os.Getenv("DATABASE_URL")
	oracleDSN := os.Getenv("DB_DSN")

	return &Config{
		Database: DatabaseConfig{
			Driver:       resolveDriver(os.Getenv("DATABASE_DRIVER"), databaseURL, oracleDSN),
			URL:          databaseURL,
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Oracle: OracleConfig{
			Username: os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			DSN:      oracleDSN,
		},
		Encoder: EncoderConfig{
			Kind:      strings.ToLower(envString(EncoderHTTP, "FACE_ENCODER")),
			URL:       os.Getenv("EMBEDDING_URL"),
			ModelsDir: envString("models", "FACE_MODELS_DIR"),
		},
		Search: SearchConfig{
			Metric: strings.ToLower(envString("cosine", "DISTANCE_METRIC")),
		},
		Dataset: DatasetConfig{
			Name:      envString("ashraq/tmdb-people-image", "DATASET_NAME"),
			Split:     envString("train", "DATASET_SPLIT"),
			CacheDir:  envString("cached_tmdb_people_image", "DATASET_CACHE_DIR"),
			ServerURL: envString("https://datasets-server.huggingface.co", "DATASET_SERVER_URL"),
		},
		Web: WebConfig{
			Port:    envInt("WEB_PORT", envInt("PORT", 8080)),
			Host:    envString("0.0.0.0", "WEB_HOST"),
			LogFile: os.Getenv("LOG_FILE"),

			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
		},
	}
}
