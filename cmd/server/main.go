package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-exchange-backend/internal/config"
	"github.com/ignatzorin/p2p-exchange-backend/internal/db"
	"github.com/ignatzorin/p2p-exchange-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/p2p-exchange-backend/internal/http/router"
	"github.com/ignatzorin/p2p-exchange-backend/internal/logger"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
	"github.com/ignatzorin/p2p-exchange-backend/internal/storage"
	"github.com/ignatzorin/p2p-exchange-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Инициализируем вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	fileStorage, err := storage.NewFileStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	offerRepo := repository.NewOfferRepository(dbConn)
	tradeRepo := repository.NewTradeRepository(dbConn)
	messageRepo := repository.NewMessageRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	mediaRepo := repository.NewMediaRepository(dbConn)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	offerService := service.NewOfferService(offerRepo)
	notificationService := service.NewNotificationService(notificationRepo)
	tradeRoomService := service.NewTradeRoomService(messageRepo, tradeRepo)
	tradeService := service.NewTradeService(tradeRepo, offerRepo, tradeRoomService)
	disputeService := service.NewDisputeService(disputeRepo, tradeRepo, tradeService, userRepo)
	reputationService := service.NewReputationService(tradeRepo, userRepo)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))
	go hub.Run()

	// Связываем сервисы: уведомления и репутация идут после коммита перехода.
	notificationService.SetHub(hub)
	tradeRoomService.SetHub(hub)
	tradeRoomService.SetMessageSink(notificationService)
	tradeService.SetEventSink(notificationService)
	tradeService.SetReputationApplier(reputationService)
	disputeService.SetSink(notificationService)
	disputeService.SetMessageWriter(tradeRoomService)

	// Доначисляем репутацию по событиям, не обработанным до прошлой остановки.
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		applied, err := reputationService.ApplyPending(ctx, 100)
		if err != nil {
			log.Printf("main: доначисление репутации прервано: %v", err)
		}
		if applied > 0 {
			log.Printf("main: репутация доначислена по %d событиям", applied)
		}
	})

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	offerHandler := httpHandlers.NewOfferHandler(offerService)
	tradeHandler := httpHandlers.NewTradeHandler(tradeService, disputeService)
	tradeRoomHandler := httpHandlers.NewTradeRoomHandler(tradeRoomService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	mediaHandler := httpHandlers.NewMediaHandler(mediaRepo, fileStorage)
	wsHandler := httpHandlers.NewWSHandler(hub, tradeRoomService, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		offerHandler,
		tradeHandler,
		tradeRoomHandler,
		disputeHandler,
		notificationHandler,
		mediaHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
