package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"production"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// WorkerJWTSecret, when set, requires an HS256 bearer token on the worker endpoint.
	WorkerJWTSecret string `env:"WORKER_JWT_SECRET"`

	EmailFinderURL     string        `env:"EMAIL_FINDER_URL"`
	EmailFinderTimeout time.Duration `env:"EMAIL_FINDER_TIMEOUT" envDefault:"20s"`

	BatchSize         int           `env:"BATCH_SIZE" envDefault:"5"`
	BatchDelay        time.Duration `env:"BATCH_DELAY" envDefault:"2s"`
	MaxBatchDelay     time.Duration `env:"MAX_BATCH_DELAY" envDefault:"30s"`
	Pacer             string        `env:"PACER" envDefault:"fixed"`
	FairnessThreshold int           `env:"FAIRNESS_THRESHOLD" envDefault:"50"`
	SmallJobThreshold int           `env:"SMALL_JOB_THRESHOLD" envDefault:"20"`
	BlacklistCooldown time.Duration `env:"BLACKLIST_COOLDOWN" envDefault:"24h"`
	RunLockTTL        time.Duration `env:"RUN_LOCK_TTL" envDefault:"15m"`

	WorkerURL     string        `env:"WORKER_URL" envDefault:"http://localhost:8080/functions/v1/job-worker"`
	SchedInterval time.Duration `env:"SCHED_INTERVAL" envDefault:"30s"`
	StaleAfter    time.Duration `env:"STALE_AFTER" envDefault:"30m"`
}

// Dev reports whether the process runs with development logging and may fall
// back to in-memory storage.
func (c Config) Dev() bool { return c.AppEnv == "dev" }

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}
	c, err := Parse()
	if err != nil {
		log.Fatal(err)
	}
	return c
}

// Parse reads the configuration from the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
