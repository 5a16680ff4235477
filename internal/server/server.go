// Пакет server — HTTP-сервер datashare с graceful shutdown.
// Без TLS: TLS termination выполняется на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/datashare/internal/api/errors"
	"github.com/bigkaa/datashare/internal/api/handlers"
	"github.com/bigkaa/datashare/internal/config"
)

// Handlers — обработчики, из которых собирается роутер.
type Handlers struct {
	Health   *handlers.HealthHandler
	Files    *handlers.FilesHandler
	Download *handlers.DownloadHandler
	// Auth — JWT middleware для маршрутов владельца
	Auth func(http.Handler) http.Handler
}

// Server — HTTP-сервер datashare.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// middlewares применяются ко всем маршрутам в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(h, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер. Маршруты владельца закрыты JWT,
// маршруты скачивания по токену публичны.
func NewRouter(h Handlers, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.MethodNotAllowed(w, "Метод не поддерживается")
	})

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/api/files", func(r chi.Router) {
		if h.Auth != nil {
			r.Use(h.Auth)
		}
		r.Post("/upload", h.Files.UploadFile)
		r.Get("/", h.Files.ListFiles)
		r.Delete("/{id}", h.Files.DeleteFile)
	})

	for _, prefix := range []string{"/api/download", "/download"} {
		router.Route(prefix+"/{token}", func(r chi.Router) {
			r.Get("/meta", h.Download.GetMeta)
			r.Get("/", h.Download.Download)
			r.Post("/", h.Download.DownloadWithPassword)
		})
	}

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
