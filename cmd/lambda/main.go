package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/app"
	"pharmabot/internal/config"
	"pharmabot/internal/logging"

	_ "pharmabot/docs"
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
	if cfg.Seed {
		if _, err := a.Seed(ctx); err != nil {
			log.WithError(err).Fatal("seed")
		}
	}

	// RUN_LOCAL=true serves plain HTTP for development
	if os.Getenv("RUN_LOCAL") == "true" {
		if err := a.Serve(ctx); err != nil {
			log.WithError(err).Fatal("serve")
		}
		return
	}

	adapter := ginadapter.New(a.Server.Engine())
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
