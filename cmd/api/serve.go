package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/imageproc"
	"github.com/UnendingLoop/ImagePipeline/internal/kafka"
	"github.com/UnendingLoop/ImagePipeline/internal/mwlogger"
	"github.com/UnendingLoop/ImagePipeline/internal/notify"
	"github.com/UnendingLoop/ImagePipeline/internal/pipeline"
	"github.com/UnendingLoop/ImagePipeline/internal/repository"
	"github.com/UnendingLoop/ImagePipeline/internal/service"
	"github.com/UnendingLoop/ImagePipeline/internal/storage"
	"github.com/UnendingLoop/ImagePipeline/internal/transport"
	"github.com/UnendingLoop/ImagePipeline/internal/worker"
	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API, websocket feed and pipeline workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), appConfig)
		},
	}
}

func serve(parent context.Context, appConfig *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(envString(appConfig, "LOG_LEVEL", "info")); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе
	dbConn, err := repository.ConnectWithRetries(appConfig.GetString("POSTGRES_DSN"), 5, 10*time.Second)
	if err != nil {
		return err
	}
	defer closeDB(dbConn)
	// накатываем миграцию
	if err := repository.MigrateWithRetries(dbConn.Master, envString(appConfig, "MIGRATIONS_PATH", "./migrations"), 10, 15*time.Second); err != nil {
		return err
	}

	// подключиться к хранилищу
	strg, err := storage.NewImgStorage(ctx, appConfig, 10*time.Second)
	if err != nil {
		return err
	}
	// создаем экземпляры репо
	imgRepo := repository.NewPostgresImageRepo(dbConn)
	msgRepo := repository.NewPostgresMessageRepo(dbConn)

	// события жизненного цикла в кафку - только если брокер сконфигурирован
	var pub notify.EventPublisher = notify.NoopPublisher{}
	if broker := appConfig.GetString("KAFKA_BROKER"); broker != "" {
		producer, err := connectKafka(ctx, broker, envString(appConfig, "KAFKA_TOPIC", "image-events"))
		if err != nil {
			return err
		}
		defer closeProducer(producer)
		pub = producer
	}

	hub := notify.NewHub(msgRepo, notify.NewEventSink(pub))
	orchestrator := pipeline.NewOrchestrator(imgRepo, strg, imageproc.Resize, hub)

	// фоновые воркеры пайплайна
	pool := worker.NewPool(orchestrator, envInt(appConfig, "WORKERS", 4), envInt(appConfig, "QUEUE_SIZE", 64))
	pool.Start()
	defer pool.Stop()

	// создаем экземпляр сервиса
	var svc ImageAPIService = service.NewImageService(imgRepo, msgRepo, strg, pool)
	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewImageHandler(svc, hub, int64(envInt(appConfig, "MAX_UPLOAD_MB", 50)))
	// сетапим сервер
	engine := ginext.New(appConfig.GetString("GIN_MODE"))

	engine.GET("/", handlers.Root)
	engine.GET("/ping", handlers.SimplePinger)
	engine.POST("/upload_image", handlers.UploadImage)                    // загрузка оригинала
	engine.GET("/projects/:projectId/images", handlers.ProjectImages)     // картинки проекта
	engine.GET("/projects/:projectId/messages", handlers.ProjectMessages) // журнал сообщений проекта
	engine.GET("/images/:id", handlers.GetImage)                          // одна картинка
	engine.GET("/ws/:projectId", handlers.ProjectFeed)                    // replay + live

	srv := &http.Server{
		Addr:    ":" + envString(appConfig, "APP_PORT", "8080"),
		Handler: mwlogger.NewMWLogger(engine),
	}

	// Server launch
	srvErr := make(chan error, 1)
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			stop()
			return
		}
		log.Println("Server gracefully stopping...")
	}()

	// ждем отмены контекста для запуска грейсфул закрытия
	<-ctx.Done()
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Failed to shutdown HTTP-server correctly:", err)
	}

	select {
	case err := <-srvErr:
		return fmt.Errorf("server stopped: %w", err)
	default:
		return nil
	}
}

func connectKafka(ctx context.Context, broker, topic string) (*wbfkafka.Producer, error) {
	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, broker, 5*time.Second); err != nil {
		return nil, err
	}
	if err := kafka.InitKafkaTopics(ctx, broker, 10*time.Second, topic); err != nil {
		return nil, err
	}
	return wbfkafka.NewProducer([]string{broker}, topic), nil
}

func closeProducer(pub *wbfkafka.Producer) {
	if err := pub.Close(); err != nil {
		log.Println("Failed to close Kafka-producer:", err)
		return
	}
	log.Println("Kafka-producer connection closed.")
}

func closeDB(dbConn *dbpg.DB) {
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}
