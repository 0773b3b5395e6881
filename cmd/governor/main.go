package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/bridge"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/classifier"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/console/handler"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/console/server"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/console/service"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra/auth"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/ledger"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/monitor"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/repository/postgres"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/simulation"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pgRepo := postgres.NewDecisionRepo(cfg.Database.URL)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := pgRepo.Ping(pingCtx); err != nil {
		logger.Fatal("Database unreachable", zap.Error(err))
	}
	pingCancel()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Ядро конвейера управления
	archiver := ledger.NewArchiver(pgRepo, logger)
	archiver.Start()

	led, err := ledger.NewLedger(cfg.Ledger, logger)
	if err != nil {
		logger.Fatal("Failed to open decision ledger", zap.Error(err))
	}
	defer led.Close()
	led.SetArchive(archiver)

	mon := monitor.NewMonitor(cfg.Monitor, logger)
	cls := classifier.NewClassifier(cfg.Classifier, logger)
	eng := simulation.NewEngine(logger)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := bridge.NewMetrics(reg)

	br := bridge.NewBridge(cfg.Governor, mon, cls, eng, led, metrics, logger)

	// Advisory-валидатор: внешний HTTP сервис за слоем надежности,
	// либо заглушка, если адрес не задан
	if cfg.Governor.ValidatorURL != "" {
		httpVal := simulation.NewHTTPValidator(cfg.Governor.ValidatorURL, cfg.Governor.ValidatorTimeout)
		br.SetValidator(simulation.NewReliableValidator(httpVal, simulation.BreakerSettings{
			MaxRequests: cfg.Governor.CBMaxRequests,
			Interval:    cfg.Governor.CBInterval,
			Timeout:     cfg.Governor.CBTimeout,
		}))
	} else {
		br.SetValidator(&simulation.StaticValidator{})
	}

	// Синхронизация cooldown между инстансами через Redis Pub/Sub
	cooldownSync := monitor.NewCooldownSync(mon, rdb, logger)
	if err := cooldownSync.Init(appCtx); err != nil {
		logger.Fatal("Failed to init cooldown sync", zap.Error(err))
	}
	go cooldownSync.StartListener(appCtx)
	br.SetCooldownNotifier(cooldownSync)

	// Экспортируем метрики для Prometheus
	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Fatal(http.ListenAndServe(":9090", nil))
	}()

	// 4. API консоли управления
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("Failed to parse private key", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("Failed to parse public key", zap.Error(err))
	}

	authService := service.NewAuthService(pgRepo, privateKey, cfg.Auth.TokenTTL)
	govService := service.NewGovernorService(br, pgRepo, logger)

	consoleSrv := server.NewConsoleServer(
		cfg,
		logger,
		auth.NewBaseValidator(publicKey),
		handler.NewAuthHandler(authService),
		handler.NewDecisionHandler(govService, logger),
		handler.NewMonitorHandler(govService),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Governor started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("Governor stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	// Останавливаем фоновую запись в архив, дожидаясь слива буфера
	cancel()
	archiver.Stop()
	logger.Info("Governor exited properly")
}
