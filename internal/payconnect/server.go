package payconnect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"payconnect/internal/payconnect/handlers"
	"payconnect/internal/payconnect/middleware"
	"payconnect/pkg/logging"
)

type Config struct {
	ServerAddress   string
	PublicBaseURL   string
	ShutdownTimeout time.Duration
}

type Server struct {
	logger     *logging.ZapLogger
	httpServer *http.Server
	cfg        Config
}

func NewServer(
	cfg Config,
	checkoutService handlers.CheckoutService,
	reconciler handlers.Reconciler,
	statusChecker handlers.StatusChecker,
	logger *logging.ZapLogger,
) *Server {
	srv := &http.Server{
		Addr: cfg.ServerAddress,
		Handler: NewRouter(
			cfg,
			checkoutService,
			reconciler,
			statusChecker,
			logger,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		cfg:        cfg,
		logger:     logger,
		httpServer: srv,
	}
}

func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server ListenAndServe failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func NewRouter(
	cfg Config,
	checkoutService handlers.CheckoutService,
	reconciler handlers.Reconciler,
	statusChecker handlers.StatusChecker,
	logger *logging.ZapLogger,
) *chi.Mux {
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, cfg.PublicBaseURL, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, logger)
	statusCheckingHandler := handlers.NewStatusCheckingHandler(statusChecker, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.NewLoggerContext().CreateHandler)
	router.Use(middleware.NewPanicRecover(logger).CreateHandler)

	router.Get("/health", handlers.Health)

	router.Post("/checkout", checkoutHandler.ServeHTTP)
	router.Post(handlers.WebhookPath, webhookHandler.ServeHTTP)
	router.Get("/check-status/{"+handlers.TransactionIDParam+"}", statusCheckingHandler.ServeHTTP)

	router.Route("/api", func(router chi.Router) {
		router.Post("/start-checkout", checkoutHandler.ServeHTTP)
		router.Post("/bulkclix/webhook", webhookHandler.ServeHTTP)
	})

	return router
}
