package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "github.com/BrotherHong/rag-web-backend/handler/http"
	jobctrl "github.com/BrotherHong/rag-web-backend/src/infrastructure/job"
	"github.com/BrotherHong/rag-web-backend/src/log"
	"github.com/BrotherHong/rag-web-backend/src/storage/postgres/documentctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document ingestion and question answering server",
	Long: `The serve command starts an HTTP server exposing document upload,
processing and retrieval-augmented query endpoints. Processing jobs run
in-process on an internal queue; use the worker command to run them on
RabbitMQ instead.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	settingDefaultConfig()
}

func runServer(cmd *cobra.Command, args []string) error {
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

	// In-process queue: upload requests return immediately and the
	// pipeline runs on the subscriber side of the channel.
	wmLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	defer pubSub.Close()

	ragHandler, err := httpHdlr.NewRAGHandler(docService, newEngineFactory(scopes))
	if err != nil {
		return err
	}

	pipe := newPipeline(docService, scopes, minioService, ragHandler.RefreshScope)
	jobService := jobctrl.NewJobService(pubSub, wmLogger, pipe)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return err
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddNoPublisherHandler(
		"document_processor",
		jobctrl.Topic,
		pubSub,
		jobService.ProcessJobMessage,
	)

	routerCtx, cancelRouter := context.WithCancel(context.Background())
	defer cancelRouter()
	go func() {
		if err := router.Run(routerCtx); err != nil {
			log.Error(err, "Job router stopped")
		}
	}()

	maxFileSize, allowedExts := uploadLimits()
	docHandler, err := httpHdlr.NewDocumentHandler(docService, scopes, minioService, jobService, httpHdlr.UploadLimits{
		MaxFileSize:       maxFileSize,
		AllowedExtensions: allowedExts,
	})
	if err != nil {
		return err
	}

	r := gin.Default()

	api := r.Group("/api/v1")
	{
		api.POST("/scopes/:scope/documents", docHandler.UploadDocument)
		api.GET("/scopes/:scope/documents", docHandler.ListDocuments)
		api.GET("/scopes/:scope/documents/:id", docHandler.GetDocument)
		api.POST("/scopes/:scope/documents/:id/process", docHandler.ProcessDocument)
		api.POST("/scopes/:scope/query", ragHandler.Query)
		api.POST("/scopes/:scope/index/refresh", ragHandler.RefreshIndex)
	}

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	cancelRouter()
	log.Info("Server exited")
	return nil
}
