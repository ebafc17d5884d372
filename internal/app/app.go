// Package app wires configuration, storage, services, the assistant pipeline
// and the HTTP server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/advisor"
	"pharmabot/internal/agent"
	"pharmabot/internal/aws"
	"pharmabot/internal/config"
	"pharmabot/internal/domain"
	httpapi "pharmabot/internal/http"
	"pharmabot/internal/llm"
	"pharmabot/internal/metrics"
	"pharmabot/internal/notify"
	"pharmabot/internal/repository"
	"pharmabot/internal/repository/dynamo"
	"pharmabot/internal/repository/postgres"
	"pharmabot/internal/safety"
	"pharmabot/internal/seed"
	"pharmabot/internal/service"
	"pharmabot/internal/speech"
)

const (
	webhookTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
	notifyPGChannel = "pharmabot_events"
)

// Stores are the repositories of the selected storage backend.
type Stores struct {
	Medicines     repository.MedicineRepository
	Patients      repository.PatientRepository
	Orders        repository.OrderRepository
	Alerts        repository.RefillAlertRepository
	Notifications repository.NotificationRepository
	Tx            repository.TxManager
}

// App holds every long-lived component of the service.
type App struct {
	Config config.Config
	Log    logrus.FieldLogger

	Stores     Stores
	Dispatcher *notify.Dispatcher
	Medicines  *service.MedicineService
	Patients   *service.PatientService
	Orders     *service.OrderService
	Refills    *service.RefillService
	Assistant  *agent.Pipeline
	Server     *httpapi.Server

	pg *postgres.Store
}

// New builds the application. Close must be called to release the database.
func New(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	var clients *aws.AWSClients
	if cfg.UsesAWS() {
		var err error
		clients, err = aws.NewAWSClients(ctx, aws.Options{Region: cfg.AWSRegion, DynamoDBEndpoint: cfg.DynamoDBEndpoint})
		if err != nil {
			a.Close()
			return nil, err
		}
		if cfg.RefillAlertsTable != "" {
			a.Stores.Alerts = dynamo.NewAlerts(clients.DynamoDB, cfg.RefillAlertsTable)
		}
	}

	var rec metrics.Recorder = metrics.Nop{}
	if clients != nil && cfg.MetricsNamespace != "" {
		rec = metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, log)
	}

	senders := map[string]notify.Sender{}
	for _, ch := range cfg.NotifyChannels {
		switch ch {
		case notify.ChannelLog:
			senders[ch] = notify.NewLogSender(log)
		case notify.ChannelWebhook:
			senders[ch] = notify.NewWebhookSender(cfg.WebhookURL, cfg.WebhookToken, webhookTimeout)
		case notify.ChannelQueue:
			senders[ch] = notify.NewQueueSender(aws.NewPublisher(clients.SQS, cfg.NotifyQueueURL))
		case notify.ChannelPGNotify:
			senders[ch] = notify.NewPGNotifySender(a.pg.DB(), notifyPGChannel)
		}
	}
	a.Dispatcher = notify.NewDispatcher(a.Stores.Notifications, senders, cfg.NotifyAsync, rec, log)

	table, err := safety.LoadInteractions(cfg.InteractionsFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	// keep the interface nil when no key is configured
	var model llm.Client
	if c := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel); c != nil {
		model = c
	}

	st := a.Stores
	adv := advisor.New(st.Medicines, model, log)
	gate := safety.NewGate(st.Medicines, st.Patients, st.Orders, table, adv, cfg.ActiveMedicationDays, log)

	a.Medicines = service.NewMedicineService(st.Medicines)
	a.Patients = service.NewPatientService(st.Patients, st.Orders, st.Medicines)
	a.Orders = service.NewOrderService(st.Orders, st.Medicines, st.Tx, gate, a.Dispatcher, rec, cfg.LowStockThreshold, log)
	a.Refills = service.NewRefillService(st.Patients, st.Orders, st.Alerts, a.Dispatcher, rec, cfg.DefaultSupplyDays, log)

	speaker, err := speech.NewURLBuilder(cfg.SpeechBaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Assistant = agent.New(agent.Deps{
		Router:    agent.NewRouter(model, rec, log),
		Languages: agent.NewLanguageDetector(cfg.Languages(), domain.Language(cfg.DefaultLanguage), model, log),
		Sessions:  agent.NewSessionStore(cfg.SessionTTL),
		Catalog:   adv,
		Medicines: a.Medicines,
		Orders:    a.Orders,
		Patients:  a.Patients,
		Refills:   a.Refills,
		Speech:    speaker,
		Chat:      model,
		Log:       log,
	}, agent.Options{RefillHorizonDays: cfg.RefillHorizonDays})

	a.Server = httpapi.NewServer(httpapi.Services{
		Medicines: a.Medicines,
		Orders:    a.Orders,
		Patients:  a.Patients,
		Refills:   a.Refills,
		Assistant: a.Assistant,
		Health:    a.ping,
	}, httpapi.Options{
		RefillHorizonDays: cfg.RefillHorizonDays,
		CORSOrigins:       cfg.CORSOrigins,
	}, log)

	log.WithFields(logrus.Fields{
		"storage":  cfg.Storage,
		"channels": a.Dispatcher.Channels(),
		"llm":      model != nil,
	}).Info("application initialised")
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	switch a.Config.Storage {
	case config.StoragePostgres:
		pg, err := postgres.Open(ctx, a.Config.DatabaseURL)
		if err != nil {
			return err
		}
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return err
		}
		a.pg = pg
		a.Stores = Stores{
			Medicines:     postgres.NewMedicines(pg),
			Patients:      postgres.NewPatients(pg),
			Orders:        postgres.NewOrders(pg),
			Alerts:        postgres.NewAlerts(pg),
			Notifications: postgres.NewNotifications(pg),
			Tx:            pg,
		}
	default:
		mem := repository.NewMemoryStore()
		a.Stores = Stores{
			Medicines:     mem,
			Patients:      repository.NewMemoryPatients(mem),
			Orders:        repository.NewMemoryOrders(mem),
			Alerts:        repository.NewMemoryAlerts(mem),
			Notifications: repository.NewMemoryNotifications(mem),
			Tx:            repository.NewMemoryTx(mem),
		}
	}
	return nil
}

func (a *App) ping(ctx context.Context) error {
	if a.pg == nil {
		return nil
	}
	return a.pg.DB().PingContext(ctx)
}

// Seed loads the embedded demo data.
func (a *App) Seed(ctx context.Context) (seed.Result, error) {
	d, err := seed.Default()
	if err != nil {
		return seed.Result{}, err
	}
	return seed.Load(ctx, seed.Stores{
		Medicines: a.Stores.Medicines,
		Patients:  a.Stores.Patients,
		Orders:    a.Stores.Orders,
	}, d, time.Now(), a.Log)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.Server.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	a.Log.Info("HTTP server stopped")
	return nil
}

// RunRefillScanner scans once at start and then every interval until ctx is
// cancelled. A zero interval disables the periodic scan.
func (a *App) RunRefillScanner(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	scan := func() {
		if _, err := a.Refills.Scan(ctx, a.Config.RefillHorizonDays); err != nil && ctx.Err() == nil {
			a.Log.WithError(err).Error("refill scan failed")
		}
	}
	scan()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		}
	}
}

// Close waits for in-flight notifications and closes the database.
func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.WithError(err).Warn("close database")
		}
	}
}
