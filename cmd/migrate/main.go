package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
	"go.uber.org/zap"

	"github.com/SirClappington/cronos/internal/config"
	"github.com/SirClappington/cronos/internal/logging"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [up|down|status|version|redo]\n", os.Args[0])
	}
	flag.Parse()
	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg := config.Load()
	log, err := logging.New(cfg.Dev(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatal("open postgres", zap.Error(err))
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("set dialect", zap.Error(err))
	}
	if err := goose.Run(command, db, cfg.MigrationsDir, flag.Args()[min(1, flag.NArg()):]...); err != nil {
		log.Fatal("migrate", zap.String("command", command), zap.Error(err))
	}
	log.Info("migrations done", zap.String("command", command), zap.String("dir", cfg.MigrationsDir))
}
