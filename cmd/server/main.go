package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/orderdesk-backend/internal/config"
	"github.com/ignatzorin/orderdesk-backend/internal/db"
	"github.com/ignatzorin/orderdesk-backend/internal/gateway/card"
	"github.com/ignatzorin/orderdesk-backend/internal/gateway/mpesa"
	httpHandlers "github.com/ignatzorin/orderdesk-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/orderdesk-backend/internal/http/router"
	"github.com/ignatzorin/orderdesk-backend/internal/logger"
	"github.com/ignatzorin/orderdesk-backend/internal/mail"
	"github.com/ignatzorin/orderdesk-backend/internal/repository"
	"github.com/ignatzorin/orderdesk-backend/internal/scheduler"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.InitForEnv(cfg.Env)

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Внешние клиенты: шлюзы и почта.
	mpesaClient := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
		Timeout:        cfg.GatewayTimeout,
	})
	cardClient := card.NewClient(card.Config{
		BaseURL:   cfg.Card.BaseURL,
		SecretKey: cfg.Card.SecretKey,
		Timeout:   cfg.GatewayTimeout,
	})
	mailer, err := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.SMTP.Host,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	})
	if err != nil {
		log.Fatalf("main: ошибка настройки почты: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	jobRepo := repository.NewJobRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	invoiceRepo := repository.NewInvoiceRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	settlementRepo := repository.NewSettlementRepository(dbConn)

	// Сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	notificationService := service.NewNotificationService(notificationRepo)
	jobService := service.NewJobService(jobRepo, userRepo, notificationService, mailer, cfg.AppBaseURL)
	paymentService := service.NewPaymentService(service.PaymentDeps{
		Payments: paymentRepo,
		Jobs:     jobRepo,
		Users:    userRepo,
		Store:    settlementRepo,
		Mpesa:    mpesaClient,
		Card:     cardClient,
		Notifier: notificationService,
		Mailer:   mailer,
		BaseURL:  cfg.AppBaseURL,
	})
	ledgerService := service.NewLedgerService(userRepo, settlementRepo)
	invoiceService := service.NewInvoiceService(invoiceRepo)

	// Фоновые задачи.
	cronJobs, err := scheduler.New(scheduler.Config{
		ReconcileSchedule: cfg.BalanceReconcileSchedule,
		PurgeSchedule:     cfg.AttachmentPurgeSchedule,
	}, ledgerService, jobRepo)
	if err != nil {
		log.Fatalf("main: ошибка настройки планировщика: %v", err)
	}
	cronJobs.Start()
	defer cronJobs.Stop()

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Health: httpHandlers.NewHealthHandler(dbConn, map[string]bool{
			"mpesa": mpesaClient.Configured(),
			"card":  cardClient.Configured(),
		}),
		Jobs:          httpHandlers.NewJobHandler(jobService),
		Payments:      httpHandlers.NewPaymentHandler(paymentService),
		Gateway:       httpHandlers.NewGatewayHandler(paymentService),
		Invoices:      httpHandlers.NewInvoiceHandler(invoiceService),
		Notifications: httpHandlers.NewNotificationHandler(notificationService),
		Ledger:        httpHandlers.NewLedgerHandler(ledgerService),
	}, tokenManager)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	}()

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")

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
