package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"feedworks/internal/fanout"
	"feedworks/internal/handlers"
	"feedworks/internal/store"
	"feedworks/pkg/config"
	"feedworks/pkg/kafka"
	"feedworks/pkg/logging"
	"feedworks/pkg/monitoring"
	"feedworks/pkg/server"
	"feedworks/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("timeline-fanout")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Timeline-Fanout (Feed Materialization)")

	postsTable := config.RequireEnv("POSTS_TABLE")
	relationshipsTable := config.RequireEnv("RELATIONSHIPS_TABLE")
	timelinesTable := config.RequireEnv("TIMELINES_TABLE")
	brokersEnv := config.RequireEnv("KAFKA_BROKERS")

	// Connect to DynamoDB
	awsConfig := aws.NewConfig()
	if region := config.GetEnv("AWS_REGION", ""); region != "" {
		awsConfig = awsConfig.WithRegion(region)
	}
	if endpoint := config.GetEnv("DYNAMODB_ENDPOINT", ""); endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(endpoint)
	}
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		Config:            *awsConfig,
		SharedConfigState: session.SharedConfigEnable,
	}))
	db := dynamodb.New(sess)

	retryConfig := store.DefaultRetryConfig()
	retryConfig.MaxRetries = config.GetEnvInt("STORE_MAX_RETRIES", retryConfig.MaxRetries)
	retryConfig.BaseDelay = config.GetEnvDuration("STORE_RETRY_BASE_DELAY", retryConfig.BaseDelay)

	timelineStore := store.New(db, store.Tables{
		Posts:         postsTable,
		Relationships: relationshipsTable,
		Timelines:     timelinesTable,
	}, retryConfig, logger)

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("timeline-fanout", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("timeline-fanout", version.Version, version.GitCommit)

	// Create custom fan-out metrics
	metrics := &handlers.FanoutMetrics{
		ChangeEvents:   metricsCollector.NewCounter("change_events_total", "Change events processed", []string{"source", "event_type", "status"}),
		FanoutDuration: metricsCollector.NewHistogram("fanout_duration_seconds", "Per-event fan-out time", []string{"source"}, nil),
	}
	metrics.KafkaMessages, metrics.KafkaDuration, metrics.KafkaLag = metricsCollector.CreateKafkaMetrics()

	// Initialize the fan-out engine
	engineConfig := fanout.Config{
		MaxFanoutItems: config.GetEnvInt("MAX_FANOUT_ITEMS", fanout.DefaultMaxFanoutItems),
		BatchSize:      config.GetEnvInt("FANOUT_BATCH_SIZE", fanout.DefaultBatchSize),
		Workers:        config.GetEnvInt("FANOUT_WORKERS", fanout.DefaultWorkers),
	}
	engine := fanout.NewEngine(timelineStore, timelineStore, engineConfig, logger)
	fanoutHandler := handlers.NewFanoutHandler(engine, logger, metrics)

	// Setup Kafka consumer and DLQ producer
	brokers := strings.Split(brokersEnv, ",")
	groupID := config.GetEnv("KAFKA_GROUP_ID", "timeline-fanout")
	clientID := config.GetEnv("KAFKA_CLIENT_ID", "timeline-fanout")
	postTopic := config.GetEnv("POST_CHANGES_TOPIC", "post_changes")
	relationshipTopic := config.GetEnv("RELATIONSHIP_CHANGES_TOPIC", "relationship_changes")
	dlqTopic := config.GetEnv("DLQ_TOPIC", "timeline_fanout_dlq")

	producer, err := kafka.NewProducer(brokers, clientID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}

	eventHandler := kafka.NewChangeEventHandler(fanoutHandler.HandleChangeEvent, producer, dlqTopic, groupID, logger)

	consumer, err := kafka.NewConsumer(brokers, groupID, clientID, []string{postTopic, relationshipTopic}, eventHandler.HandleMessage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}

	// Health checks
	healthChecker.AddCheck("dynamodb", monitoring.DynamoDBHealthCheck(db, timelinesTable))
	healthChecker.AddCheck("kafka", monitoring.KafkaConsumerHealthCheck(consumer.GetClient()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"POSTS_TABLE":         postsTable,
		"RELATIONSHIPS_TABLE": relationshipsTable,
		"TIMELINES_TABLE":     timelinesTable,
		"KAFKA_BROKERS":       brokersEnv,
		"KAFKA_GROUP_ID":      groupID,
	}))

	// Start consuming
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Kafka consumer error")
		}
	}()

	// Optional health check server
	if config.GetEnvBool("ENABLE_HEALTH_ENDPOINT", true) {
		go startHealthServer(healthChecker, metricsCollector, logger)
	}

	logger.WithFields(logging.Fields{
		"post_topic":         postTopic,
		"relationship_topic": relationshipTopic,
		"max_fanout_items":   engineConfig.MaxFanoutItems,
		"workers":            engineConfig.Workers,
	}).Info("Timeline-Fanout started - consuming change events from Kafka")

	// Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down Timeline-Fanout...")

	// Cleanup
	cancel()
	consumer.Close()
	producer.Close()

	logger.Info("Timeline-Fanout stopped")
}

func startHealthServer(healthChecker *monitoring.HealthChecker, metricsCollector *monitoring.MetricsCollector, logger logging.Logger) {
	router := server.SetupServiceRouter(logger, "timeline-fanout", healthChecker, metricsCollector)

	serverConfig := server.DefaultConfig("timeline-fanout", "18080")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Error("Health server error")
	}
}
