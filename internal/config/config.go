package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverLevelDB  = "leveldb"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	LogLevel           string   `mapstructure:"LOG_LEVEL"`
	StoreDriver        string   `mapstructure:"STORE_DRIVER"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir      string   `mapstructure:"MIGRATIONS_DIR"`
	RedisURL           string   `mapstructure:"REDIS_URL"`
	LevelDBPath        string   `mapstructure:"LEVELDB_PATH"`
	KafkaBrokers       []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string   `mapstructure:"KAFKA_TOPIC"`
	MLLPAddr           string   `mapstructure:"MLLP_ADDR"`
	AnnotatorRulesFile string   `mapstructure:"ANNOTATOR_RULES_FILE"`
	SeedDemoStudy      bool     `mapstructure:"SEED_DEMO_STUDY"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit          string   `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS",
	"DB_MIN_CONNS", "MIGRATIONS_DIR", "REDIS_URL", "LEVELDB_PATH", "KAFKA_BROKERS",
	"KAFKA_TOPIC", "MLLP_ADDR", "ANNOTATOR_RULES_FILE", "SEED_DEMO_STUDY",
	"CORS_ORIGINS", "BODY_LIMIT",
}

// Load reads .env, when present, and the environment. Environment variables
// win over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("LEVELDB_PATH", "./data/admissions")
	v.SetDefault("KAFKA_TOPIC", "admissions.v1")
	v.SetDefault("SEED_DEMO_STUDY", true)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// a missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the selected store driver has what it needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for STORE_DRIVER=postgres"))
		}
		if c.DBMaxConns < 1 {
			errs = append(errs, errors.New("DB_MAX_CONNS must be at least 1"))
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			errs = append(errs, errors.New("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS"))
		}
	case DriverRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for STORE_DRIVER=redis"))
		}
	case DriverLevelDB:
		if c.LevelDBPath == "" {
			errs = append(errs, errors.New("LEVELDB_PATH is required for STORE_DRIVER=leveldb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// KafkaEnabled reports whether admission events go to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
