package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type CatalogCfg struct {
	Driver string `validate:"oneof=sqlite memory"`
	Path   string `validate:"required_if=Driver sqlite"`
}

type ScanCfg struct {
	Root     string
	Interval time.Duration `validate:"gte=0"`
	Strict   bool
}

type CacheCfg struct {
	Enabled   bool
	RedisAddr string        `validate:"required_if=Enabled true"`
	TTL       time.Duration `validate:"gte=0"`
	OpTimeout time.Duration `validate:"gt=0"`
}

type EventsCfg struct {
	Enabled bool
	Consume bool
	Brokers string `validate:"required_if=Enabled true"`
	Topic   string `validate:"required_if=Enabled true"`
	GroupID string `validate:"required_if=Consume true"`
}

type Config struct {
	Addr       string `validate:"required"`
	LogLevel   string `validate:"oneof=debug info warn error"`
	LogConsole bool
	// LogSampleN keeps one in N debug and info lines; 0 or 1 keeps all.
	LogSampleN      int `validate:"gte=0"`
	MetricsEnabled  bool
	ExtractTimeout  time.Duration `validate:"gt=0"`
	StrideMaxPx     int           `validate:"gte=0"`
	HandleCacheSize int           `validate:"gte=0"`
	Catalog         CatalogCfg
	Scan            ScanCfg
	Cache           CacheCfg
	Events          EventsCfg
}

func FromEnv() Config {
	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		MetricsEnabled:  getbool("METRICS_ENABLED", true),
		ExtractTimeout:  getduration("EXTRACT_TIMEOUT", 30*time.Second),
		StrideMaxPx:     getint("STRIDE_MAX_PX", 0),
		HandleCacheSize: getint("HANDLE_CACHE_SIZE", 16),
		Catalog: CatalogCfg{
			Driver: strings.ToLower(getenv("CATALOG_DRIVER", "sqlite")),
			Path:   getenv("CATALOG_PATH", "catalog.db"),
		},
		Scan: ScanCfg{
			Root:     getenv("SCAN_ROOT", ""),
			Interval: getduration("SCAN_INTERVAL", 0),
			Strict:   getbool("SCAN_STRICT", false),
		},
		Cache: CacheCfg{
			Enabled:   getbool("CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("CACHE_TTL", 10*time.Minute),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Consume: getbool("EVENTS_CONSUME", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "catalog-events"),
			GroupID: getenv("KAFKA_GROUP_ID", "featureserver"),
		},
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
