package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/airbusgeo/wcs-remote-service/config"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
	"github.com/airbusgeo/wcs-remote-service/interface/database/memory"
	"github.com/airbusgeo/wcs-remote-service/interface/database/pg"
	"github.com/airbusgeo/wcs-remote-service/interface/ows/wcs"
	"github.com/airbusgeo/wcs-remote-service/registry"
	"github.com/airbusgeo/wcs-remote-service/service"
	"github.com/airbusgeo/wcs-remote-service/service/log"
	"github.com/airbusgeo/wcs-remote-service/workflow"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

type appConfig struct {
	AppPort        string
	DbConnection   string
	PsProject      string
	PsSubscription string
	PsEventTopic   string
	RequestQueue   string
	EventQueue     string
	Parallelism    int
	Probe          string
	ProbeType      string
	HarvestAll     bool
}

func newAppConfig() (*appConfig, error) {
	appPort := flag.String("port", "8080", "harvester port to use")
	dbConnection := flag.String("dbConnection", "", "database connection (in-memory database if empty)")
	psProject := flag.String("psProject", "", "pubsub subscription project (gcp only/not required in local usage)")
	psSubscription := flag.String("psSubscription", "", "pubsub harvest-request subscription name")
	psEventTopic := flag.String("psEvent-topic", "", "pubsub harvest-event topic name")
	requestQueue := flag.String("request-queue", "", "pgqueue harvest-request queue name (in the database of dbConnection)")
	eventQueue := flag.String("event-queue", "", "pgqueue harvest-event queue name (in the database of dbConnection)")
	parallelism := flag.Int("parallelism", 4, "maximum number of services harvested at the same time")
	probe := flag.String("probe", "", "probe the remote service at this url, print its description and exit")
	probeType := flag.String("probe-type", common.ServiceTypeWCS, "service type of the probed service")
	harvestAll := flag.Bool("harvest-all", false, "harvest all the services once and exit")
	flag.Parse()

	config := appConfig{
		AppPort:        *appPort,
		DbConnection:   *dbConnection,
		PsProject:      *psProject,
		PsSubscription: *psSubscription,
		PsEventTopic:   *psEventTopic,
		RequestQueue:   *requestQueue,
		EventQueue:     *eventQueue,
		Parallelism:    *parallelism,
		Probe:          *probe,
		ProbeType:      *probeType,
		HarvestAll:     *harvestAll,
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *appConfig) validate() error {
	if c.AppPort == "" {
		return fmt.Errorf("failed to initialize port application flag")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if (c.RequestQueue != "" || c.EventQueue != "") && c.DbConnection == "" {
		return fmt.Errorf("pgqueue messaging requires a database connection")
	}
	if c.RequestQueue != "" && c.PsSubscription != "" {
		return fmt.Errorf("harvest requests cannot be pulled from both pgqueue and pubsub")
	}
	if c.EventQueue != "" && c.PsEventTopic != "" {
		return fmt.Errorf("harvest events cannot be pushed on both pgqueue and pubsub")
	}
	return nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	appConfig, err := newAppConfig()
	if err != nil {
		return err
	}
	settings, err := config.Load()
	if err != nil {
		return err
	}

	// Service types and harvesters
	client := wcs.NewClient(settings.Timeout(), wcs.WithAuth(service.HTTPAuth{
		Name:     settings.RemoteUsername,
		Password: settings.RemotePassword,
	}))
	reg, err := registry.Builtin(client).Enable(settings.ServicesTypeModules, settings.HarvesterClasses)
	if err != nil {
		return fmt.Errorf("registry.Enable: %w", err)
	}

	if appConfig.Probe != "" {
		return probe(ctx, reg, appConfig.ProbeType, appConfig.Probe)
	}

	// Connection to database
	var backend db.HarvestDBBackend
	if appConfig.DbConnection != "" {
		if backend, err = pg.New(ctx, appConfig.DbConnection); err != nil {
			return fmt.Errorf("pg.New: %w", err)
		}
	} else {
		log.Logger(ctx).Warn("no database configured: services and resources are kept in memory")
		backend = memory.New()
	}

	// Messaging service
	requestConsumer, eventPublisher, stop, logMessaging, err := messagingService(ctx, appConfig)
	if err != nil {
		return err
	}
	defer stop()

	// Create Workflow
	wf := workflow.NewWorkflow(backend, reg, eventPublisher, appConfig.Parallelism, settings.DefaultOwner)

	if appConfig.HarvestAll {
		return wf.HarvestAll(ctx)
	}

	// New handler
	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + appConfig.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(wf.NewHandler()),
	}

	if requestConsumer == nil {
		log.Logger(ctx).Info("harvester starts (no harvest-request subscription)" + logMessaging)
		return s.ListenAndServe()
	}

	go func() {
		if err := s.ListenAndServe(); err != nil {
			log.Logger(ctx).Error(err.Error())
		}
	}()

	log.Logger(ctx).Debug("harvester starts" + logMessaging)
	for {
		err := requestConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) error {
			ctx = log.With(ctx, "msgID", msg.ID)
			log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)
			if msg.TryCount > 10 {
				return fmt.Errorf("bailing out after too many retries")
			}
			if err := wf.HandleHarvestRequest(ctx, msg.Data); err != nil {
				if service.Fatal(err) {
					log.Logger(ctx).Error("dropping harvest request", zap.Error(err))
					return nil
				}
				return service.MakeTemporary(fmt.Errorf("failed to process harvest request: %w", err))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
	}
}

// messagingService connects the harvest-request consumer and the harvest-event publisher,
// either to pgqueue (in the database of the backend) or to pubsub.
// Both are nil if no queue is configured.
func messagingService(ctx context.Context, c *appConfig) (messaging.Consumer, messaging.Publisher, func(), string, error) {
	var requestConsumer messaging.Consumer
	var eventPublisher messaging.Publisher
	var logMessaging string
	var stops []func()
	stop := func() {
		for _, s := range stops {
			s()
		}
	}

	if c.RequestQueue != "" || c.EventQueue != "" {
		sqldb, w, err := pgqueue.SqlConnect(ctx, c.DbConnection)
		if err != nil {
			return nil, nil, stop, "", fmt.Errorf("MessagingService: %w", err)
		}
		if c.RequestQueue != "" {
			logMessaging += fmt.Sprintf(" pulling on pgqueue:%s", c.RequestQueue)
			consumer := pgqueue.NewConsumer(sqldb, c.RequestQueue)
			stops = append(stops, func() { consumer.Stop() })
			requestConsumer = consumer
		}
		if c.EventQueue != "" {
			logMessaging += fmt.Sprintf(" pushing harvestEvents on pgqueue:%s", c.EventQueue)
			eventPublisher = pgqueue.NewPublisher(w, c.EventQueue, pgqueue.WithMaxRetries(5))
		}
	}

	if c.PsSubscription != "" {
		logMessaging += fmt.Sprintf(" pulling on pubsub:%s/%s", c.PsProject, c.PsSubscription)
		consumer, err := pubsub.NewConsumer(c.PsProject, c.PsSubscription)
		if err != nil {
			return nil, nil, stop, "", fmt.Errorf("pubsub.new: %w", err)
		}
		requestConsumer = consumer
	}
	if c.PsEventTopic != "" {
		logMessaging += fmt.Sprintf(" pushing harvestEvents on pubsub:%s/%s", c.PsProject, c.PsEventTopic)
		publisher, err := pubsub.NewPublisher(ctx, c.PsProject, c.PsEventTopic, pubsub.WithMaxRetries(5))
		if err != nil {
			return nil, nil, stop, "", fmt.Errorf("pubsub.NewPublisher(Event): %w", err)
		}
		stops = append(stops, func() { publisher.Stop() })
		eventPublisher = publisher
	}
	return requestConsumer, eventPublisher, stop, logMessaging, nil
}

// probe validates the remote service and prints its description
func probe(ctx context.Context, reg *registry.Registry, serviceType, url string) error {
	handler, err := reg.NewHandler(serviceType, url, nil)
	if err != nil {
		return err
	}
	endpoint, err := handler.Probe(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(endpoint)
}
