package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"posprint/internal/config"
	"posprint/internal/domain/ports"
	"posprint/internal/infrastructure/driver"
	"posprint/internal/infrastructure/metrics"
	"posprint/internal/infrastructure/storage"
	httpapi "posprint/internal/interfaces/http"
	"posprint/internal/service/connection"
	"posprint/internal/service/monitor"
	"posprint/internal/service/printing"
	"posprint/internal/service/session"
)

const shutdownTimeout = 10 * time.Second

// App собирает зависимости шлюза печати.
type App struct {
	Config     *config.Config
	Logger     ports.Logger
	Registry   ports.DeviceRegistry
	Gateway    *session.Gateway
	Printing   *printing.Service
	Connection *connection.ConnectionService
	Monitor    *monitor.Service
	Metrics    *prometheus.Registry
}

// NewApp создает новый экземпляр приложения.
func NewApp(cfg *config.Config, logger ports.Logger) (*App, error) {
	registry, err := storage.NewFileDeviceRegistry(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	dialer := driver.NewDialer(cfg.DeviceTimeout, logger)
	gateway := session.NewGateway(registry, dialer, logger, session.Options{
		AcquireWait: cfg.AcquireWait,
		Metrics:     rec,
	})

	conn := connection.NewConnectionService(gateway, registry, cfg.PrintTimeout)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   registry,
		Gateway:    gateway,
		Printing:   printing.NewService(gateway, logger, rec, cfg.PrintTimeout),
		Connection: conn,
		Monitor: monitor.NewService(registry, conn, logger, rec, monitor.Config{
			PollInterval: cfg.PollInterval,
			ProbeTimeout: cfg.DeviceTimeout + cfg.AcquireWait,
		}),
		Metrics: reg,
	}, nil
}

// Handler возвращает HTTP маршруты приложения.
func (a *App) Handler() (http.Handler, error) {
	h, err := httpapi.NewHandler(a.Printing, a.Connection, a.Logger)
	if err != nil {
		return nil, err
	}
	if a.Config.PollInterval > 0 {
		h.WithStates(a.Monitor)
	}
	return httpapi.NewRouter(h, a.Metrics), nil
}

// Serve запускает HTTP сервер и останавливает его при отмене ctx.
func (a *App) Serve(ctx context.Context) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("HTTP сервер слушает %s", a.Config.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.Monitor.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Logger.Info("остановка HTTP сервера")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
