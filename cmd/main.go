package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awssns "github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/YelzhanWeb/caseflow/internal/adapter/auth"
	"github.com/YelzhanWeb/caseflow/internal/adapter/dynamo"
	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/adapter/memory"
	"github.com/YelzhanWeb/caseflow/internal/adapter/notify"
	"github.com/YelzhanWeb/caseflow/internal/adapter/postgres"
	"github.com/YelzhanWeb/caseflow/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/caseflow/internal/adapter/sns"
	"github.com/YelzhanWeb/caseflow/internal/app/intake"
	"github.com/YelzhanWeb/caseflow/internal/app/payment"
	"github.com/YelzhanWeb/caseflow/internal/app/workflow"
	"github.com/YelzhanWeb/caseflow/internal/config"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"

	amqpAdapter "github.com/YelzhanWeb/caseflow/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/caseflow/internal/adapter/http"
)

// infra holds the connections a mode opened, so they can be closed together.
type infra struct {
	db     postgres.DB
	mqConn rabbitmq.Connection
}

func (i *infra) Close() {
	if i.mqConn != nil {
		_ = i.mqConn.Close()
	}
	if i.db != nil {
		i.db.Close()
	}
}

func main() {
	mode := flag.String("mode", "", "Service mode: case-service, payment-worker, notification-subscriber, migrate")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	workerName := flag.String("worker-name", "payment-worker", "Actor id recorded by the payment worker")
	prefetch := flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	lgr := logger.New(*mode, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := &infra{}
	defer in.Close()

	switch *mode {
	case "case-service":
		err = runCaseService(ctx, cfg, in, lgr)
	case "payment-worker":
		err = runPaymentWorker(ctx, cfg, in, lgr, *workerName, *prefetch)
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, in, lgr)
	case "migrate":
		err = runMigrate(ctx, cfg, in, lgr)
	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		lgr.Error("service_failed", "Service stopped with error", "runtime", nil, err)
		in.Close()
		os.Exit(1)
	}
}

func runCaseService(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger) error {
	authenticator, err := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	workflowService, repo, err := buildWorkflow(ctx, cfg, in, lgr)
	if err != nil {
		return err
	}
	dispatcher, err := buildDispatcher(ctx, cfg, in, lgr)
	if err != nil {
		return err
	}
	intakeService := intake.NewService(repo, dispatcher, lgr, intake.WithNotifyTimeout(cfg.Notifications.Timeout))

	handler := httpAdapter.NewCaseHandler(workflowService, intakeService, lgr)
	router := httpAdapter.NewRouter(handler, authenticator, lgr)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	lgr.Info("service_started", fmt.Sprintf("Case Service started on port %d", cfg.Server.Port), "startup", map[string]interface{}{
		"port":          cfg.Server.Port,
		"store":         cfg.Store.Driver,
		"notifications": cfg.Notifications.Driver,
	})

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		lgr.Info("shutdown_initiated", "Shutting down Case Service", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runPaymentWorker(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger, workerName string, prefetch int) error {
	workflowService, _, err := buildWorkflow(ctx, cfg, in, lgr)
	if err != nil {
		return err
	}

	mqConn, err := connectRabbitMQ(cfg, in, lgr)
	if err != nil {
		return err
	}

	paymentService := payment.NewService(workflowService, workerName, lgr)
	paymentHandler := amqpAdapter.NewPaymentHandler(paymentService, lgr)
	consumer := rabbitmq.NewConsumer(mqConn, prefetch, lgr)

	lgr.Info("service_started", fmt.Sprintf("Payment Worker %s started", workerName), "startup", map[string]interface{}{
		"queue":    rabbitmq.PaymentQueue,
		"prefetch": prefetch,
	})

	err = consumer.ConsumePaymentEvents(ctx, paymentHandler.HandlePayment)
	lgr.Info("graceful_shutdown", "Shutting down Payment Worker", "shutdown", nil)
	return err
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger) error {
	mqConn, err := connectRabbitMQ(cfg, in, lgr)
	if err != nil {
		return err
	}

	consumer := rabbitmq.NewConsumer(mqConn, 1, lgr)
	notificationHandler := amqpAdapter.NewNotificationHandler(lgr)

	lgr.Info("service_started", "Notification Subscriber started", "startup", nil)

	err = consumer.ConsumeNotifications(ctx, notificationHandler.HandleNotification)
	lgr.Info("shutdown_initiated", "Shutting down Notification Subscriber", "shutdown", nil)
	return err
}

func runMigrate(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger) error {
	db, err := connectPostgres(ctx, cfg, in, lgr)
	if err != nil {
		return err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}
	lgr.Info("schema_applied", "Database schema is up to date", "startup", nil)
	return nil
}

func buildWorkflow(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger) (*workflow.Service, interfaces.CaseRepository, error) {
	repo, err := buildStore(ctx, cfg, in, lgr)
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := buildDispatcher(ctx, cfg, in, lgr)
	if err != nil {
		return nil, nil, err
	}

	opts := []workflow.Option{workflow.WithNotifyTimeout(cfg.Notifications.Timeout)}
	if cfg.Engine.RequireVerifiedPayment {
		db, err := connectPostgres(ctx, cfg, in, lgr)
		if err != nil {
			return nil, nil, fmt.Errorf("payment verification needs the payment database: %w", err)
		}
		opts = append(opts, workflow.WithPaymentVerifier(postgres.NewPaymentVerifier(db)))
	}

	return workflow.NewService(repo, domain.DefaultPolicy(), dispatcher, lgr, opts...), repo, nil
}

func buildStore(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger) (interfaces.CaseRepository, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := connectPostgres(ctx, cfg, in, lgr)
		if err != nil {
			return nil, err
		}
		return postgres.NewCaseRepository(db), nil

	case "dynamodb":
		client, err := dynamo.NewClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		lgr.Info("dynamodb_configured", "Using DynamoDB case store", "startup", map[string]interface{}{
			"region": cfg.DynamoDB.Region,
			"table":  cfg.DynamoDB.CasesTable,
		})
		return dynamo.NewCaseRepository(client, cfg.DynamoDB.CasesTable, cfg.DynamoDB.HistoryTable), nil

	case "memory":
		lgr.Info("memory_store", "Using in-memory case store; data is lost on restart", "startup", nil)
		return memory.NewCaseRepository(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func buildDispatcher(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger) (interfaces.NotificationDispatcher, error) {
	switch cfg.Notifications.Driver {
	case "rabbitmq":
		mqConn, err := connectRabbitMQ(cfg, in, lgr)
		if err != nil {
			return nil, err
		}
		return rabbitmq.NewPublisher(mqConn), nil

	case "sns":
		awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create sns config: %w", err)
		}
		return sns.NewDispatcher(awssns.NewFromConfig(awsCfg), cfg.SNS.TopicARN), nil

	case "none":
		return notify.NewLogDispatcher(lgr), nil
	}
	return nil, fmt.Errorf("unknown notifications driver %q", cfg.Notifications.Driver)
}

func connectPostgres(ctx context.Context, cfg *config.Config, in *infra, lgr logger.Logger) (postgres.DB, error) {
	if in.db != nil {
		return in.db, nil
	}

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	in.db = db

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})
	return db, nil
}

func connectRabbitMQ(cfg *config.Config, in *infra, lgr logger.Logger) (rabbitmq.Connection, error) {
	if in.mqConn != nil {
		return in.mqConn, nil
	}

	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}
	in.mqConn = mqConn

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})
	return mqConn, nil
}
