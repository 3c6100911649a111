package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"example.com/careplan/internal/config"
	"example.com/careplan/internal/domain"
	persistence "example.com/careplan/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	service := domain.NewService(repo, domain.WithBoundaries(cfg.ShiftBoundaries))

	pass := func() {
		today := domain.NormalizeDate(time.Now().UTC())
		for offset := 0; offset <= cfg.MaterializeAhead; offset++ {
			date := today.AddDate(0, 0, offset)
			created, err := service.Materialize(ctx, date)
			if err != nil {
				log.Printf("materialization failed (date=%s): %v", date.Format(domain.DateLayout), err)
				continue
			}
			log.Printf("materialization pass done (date=%s, created=%d)", date.Format(domain.DateLayout), created)
		}
	}

	// Catch up immediately so a restart never skips today.
	pass()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.MaterializeSpec, pass); err != nil {
		log.Fatalf("invalid cron spec %q: %v", cfg.MaterializeSpec, err)
	}
	scheduler.Start()
	log.Printf("materializer scheduled (spec=%q, ahead=%d)", cfg.MaterializeSpec, cfg.MaterializeAhead)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("materializer shutdown requested")
	cancel()
	<-scheduler.Stop().Done()
}
