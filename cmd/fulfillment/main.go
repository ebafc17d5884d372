package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/app"
	"pharmabot/internal/config"
	"pharmabot/internal/fulfillment"
	"pharmabot/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init app")
	}
	defer a.Close()

	processor := fulfillment.NewProcessor(a.Orders, log.WithField("component", "fulfillment"))

	// RUN_LOCAL=true handles one event built from LOCAL_SQS_BODY and exits
	if os.Getenv("RUN_LOCAL") == "true" {
		if cfg.Seed {
			if _, err := a.Seed(ctx); err != nil {
				log.WithError(err).Fatal("seed")
			}
		}
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"event":"order.placed","order_id":1}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		}
		if err := processor.Handle(ctx, event); err != nil {
			log.WithError(err).Fatal("local handler error")
		}
		return
	}

	lambda.Start(processor.Handle)
}
