package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	jobctrl "github.com/BrotherHong/rag-web-backend/src/infrastructure/job"
	"github.com/BrotherHong/rag-web-backend/src/log"
	"github.com/BrotherHong/rag-web-backend/src/storage/postgres/documentctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background document processing worker",
	Long: `The worker command consumes document processing jobs from RabbitMQ
and runs the ingest pipeline for each one. Run it alongside serve when
processing should happen outside the API process.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := watermill.NewStdLogger(false, false)

	db, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	docService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return err
	}
	if err := docService.AutoMigrate(); err != nil {
		return err
	}

	scopes := newScopeStore()

	minioService, err := newMinioService()
	if err != nil {
		return err
	}

	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	pipe := newPipeline(docService, scopes, minioService, nil)
	jobService := jobctrl.NewJobService(amqpPublisher, logger, pipe)

	router.AddNoPublisherHandler(
		"document_processor",
		jobctrl.Topic,
		amqpSubscriber,
		jobService.ProcessJobMessage,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Job router stopped")
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down worker...")
	cancel()
	<-router.Running()
	log.Info("Worker stopped")

	return nil
}
