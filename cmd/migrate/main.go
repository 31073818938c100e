package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/pkg/config"
	"github.com/noah-isme/school-lms-api/pkg/database"
	"github.com/noah-isme/school-lms-api/pkg/logger"
)

func main() {
	direction := flag.String("direction", string(database.DirectionUp), "up or down")
	steps := flag.Int("steps", 0, "number of migrations to apply (0 = all pending up, one down)")
	dir := flag.String("dir", "", "migrations directory (defaults to DB_MIGRATIONS_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	d := database.Direction(*direction)
	if d != database.DirectionUp && d != database.DirectionDown {
		logr.Fatal("invalid direction", zap.String("direction", *direction))
	}
	if *dir == "" {
		*dir = cfg.Database.MigrationsDir
	}

	db, err := database.NewPostgres(context.Background(), cfg.Database, logr)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	version, err := database.Migrate(db, *dir, d, *steps)
	if err != nil {
		logr.Fatal("migration failed", zap.Error(err), zap.Uint("version", version))
	}
	logr.Info("migrations applied", zap.String("direction", string(d)), zap.Uint("version", version))
}
