package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"pharmabot/internal/app"
	"pharmabot/internal/config"
	"pharmabot/internal/logging"
	"pharmabot/internal/repository/postgres"

	_ "pharmabot/docs"
)

// @title           Pharmabot API
// @version         1.0
// @description     Multilingual pharmacy assistant: catalog, orders, refills and chat.
// @BasePath        /api/v1
// @schemes         http https

func main() {
	cliApp := &cli.App{
		Name:  "pharmabot",
		Usage: "pharmacy assistant backend",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the refill scanner",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrate,
			},
			{
				Name:   "seed",
				Usage:  "load the demo catalog and patients",
				Action: seedData,
			},
			{
				Name:  "refill-scan",
				Usage: "scan every patient once for due refills",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "horizon", Usage: "days ahead to look, defaults to PHARMABOT_REFILL_HORIZON_DAYS"},
				},
				Action: refillScan,
			},
		},
		DefaultCommand: "serve",
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}

func serve(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Seed {
		if _, err := a.Seed(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Serve(gctx) })
	g.Go(func() error { return a.RunRefillScanner(gctx, cfg.RefillScanInterval) })
	return g.Wait()
}

func migrate(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cfg.Storage != config.StoragePostgres {
		log.Info("memory storage, nothing to migrate")
		return nil
	}
	store, err := postgres.Open(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func seedData(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, err := app.New(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	res, err := a.Seed(c.Context)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"medicines": res.Medicines,
		"patients":  res.Patients,
		"orders":    res.Orders,
	}).Info("seed finished")
	return nil
}

func refillScan(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	horizon := cfg.RefillHorizonDays
	if c.IsSet("horizon") {
		horizon = c.Int("horizon")
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	if cfg.Seed && cfg.Storage == config.StorageMemory {
		if _, err := a.Seed(ctx); err != nil {
			return err
		}
	}
	alerts, err := a.Refills.Scan(ctx, horizon)
	if err != nil {
		return err
	}
	for _, al := range alerts {
		log.WithFields(logrus.Fields{
			"patient_id": al.PatientID,
			"product":    al.ProductName,
			"days_until": al.DaysUntilRefill,
		}).Info("refill due")
	}
	log.WithField("count", len(alerts)).Info("refill scan finished")
	return nil
}
