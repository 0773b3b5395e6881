package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/console/handler"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler     // /auth/token
	decisionHandler *handler.DecisionHandler // /v1/decisions
	monitorHandler  *handler.MonitorHandler  // /v1/aggressiveness, /v1/stats
}

// NewConsoleServer инициализирует API консоли управления со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	decisionH *handler.DecisionHandler,
	monitorH *handler.MonitorHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		decisionHandler: decisionH,
		monitorHandler:  monitorH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Конвейер решений
		r.Route("/v1/decisions", func(r chi.Router) {
			r.Post("/evaluate", s.decisionHandler.Evaluate) // Полный цикл оценки
			r.Get("/", s.decisionHandler.List)              // Горячий кэш реестра
			r.Get("/critical", s.decisionHandler.Critical)  // Критичные за период
			r.Get("/archive", s.decisionHandler.Archive)    // Полная история (Postgres)
			r.Get("/export", s.decisionHandler.ExportCSV)   // Выгрузка для комплаенса
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.decisionHandler.Get)
				r.Post("/execution", s.decisionHandler.ReportExecution) // Результат исполнения
				r.Post("/reverse", s.decisionHandler.Reverse)           // Откат решения
			})
		})

		// Мониторинг агрессивности и сводная статистика
		r.Get("/v1/aggressiveness", s.monitorHandler.Aggressiveness)
		r.Get("/v1/stats", s.monitorHandler.GetStats)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
